package fleet

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const moneyPlaces = 2

// FormatMoney renders an amount as dollars with two decimals, e.g. $60.00 or -$12.50.
func FormatMoney(amount decimal.Decimal) string {
	if amount.IsNegative() {
		return "-$" + amount.Abs().StringFixed(moneyPlaces)
	}
	return "$" + amount.StringFixed(moneyPlaces)
}

// FormatSignedMoney renders a ledger entry amount with an explicit sign.
func FormatSignedMoney(entry LedgerEntry) string {
	sign := "+"
	if entry.Type == EntryDebit {
		sign = "-"
	}
	return sign + "$" + entry.Amount.Abs().StringFixed(moneyPlaces)
}

// LedgerBalance returns the signed sum of the entries.
func LedgerBalance(entries []LedgerEntry) decimal.Decimal {
	total := decimal.Zero
	for _, entry := range entries {
		total = total.Add(entry.Signed())
	}
	return total
}

// CheckBalance reports ErrBalanceMismatch when the driver's balance differs
// from the signed sum of the supplied entries.
func CheckBalance(driver Driver, entries []LedgerEntry) error {
	computed := LedgerBalance(entries)
	if !computed.Equal(driver.Balance) {
		return fmt.Errorf("%w: driver %s balance %s, ledger sum %s", ErrBalanceMismatch, driver.ID, driver.Balance, computed)
	}
	return nil
}

// NewAmount validates a non-negative amount.
func NewAmount(raw decimal.Decimal) (decimal.Decimal, error) {
	if raw.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: must not be negative", ErrInvalidAmount)
	}
	return raw, nil
}
