package fleet

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ApplicationStatus is the vetting state of a driver application.
type ApplicationStatus string

const (
	ApplicationPending    ApplicationStatus = "pending"
	ApplicationApproved   ApplicationStatus = "approved"
	ApplicationDeclined   ApplicationStatus = "declined"
	ApplicationHold       ApplicationStatus = "hold"
	ApplicationOnboarding ApplicationStatus = "onboarding"
)

// ApplicationStatuses lists every status in lifecycle order.
func ApplicationStatuses() []ApplicationStatus {
	return []ApplicationStatus{
		ApplicationPending,
		ApplicationApproved,
		ApplicationDeclined,
		ApplicationHold,
		ApplicationOnboarding,
	}
}

// ParseApplicationStatus validates a raw status value.
func ParseApplicationStatus(raw string) (ApplicationStatus, error) {
	normalized := ApplicationStatus(strings.ToLower(strings.TrimSpace(raw)))
	for _, status := range ApplicationStatuses() {
		if status == normalized {
			return status, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidApplicationStatus, raw)
}

// String returns the raw status value.
func (status ApplicationStatus) String() string {
	return string(status)
}

// EntryType enumerates ledger entry kinds.
type EntryType string

const (
	EntryCredit EntryType = "credit"
	EntryDebit  EntryType = "debit"
)

// ParseEntryType validates a raw entry type.
func ParseEntryType(raw string) (EntryType, error) {
	switch EntryType(strings.ToLower(strings.TrimSpace(raw))) {
	case EntryCredit:
		return EntryCredit, nil
	case EntryDebit:
		return EntryDebit, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidEntryType, raw)
	}
}

// String returns the raw entry type.
func (entryType EntryType) String() string {
	return string(entryType)
}

// PaymentSource names the payment network a payment arrived through.
type PaymentSource string

const (
	SourceZelle   PaymentSource = "zelle"
	SourceVenmo   PaymentSource = "venmo"
	SourceCashApp PaymentSource = "cashapp"
	SourceChime   PaymentSource = "chime"
	SourceStripe  PaymentSource = "stripe"
)

// ParsePaymentSource validates a raw payment source.
func ParsePaymentSource(raw string) (PaymentSource, error) {
	switch source := PaymentSource(strings.ToLower(strings.TrimSpace(raw))); source {
	case SourceZelle, SourceVenmo, SourceCashApp, SourceChime, SourceStripe:
		return source, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPaymentSource, raw)
	}
}

// String returns the raw source value.
func (source PaymentSource) String() string {
	return string(source)
}

// BillingType is the recurring billing period of a driver.
type BillingType string

const (
	BillingDaily  BillingType = "daily"
	BillingWeekly BillingType = "weekly"
)

// ParseBillingType validates a raw billing type.
func ParseBillingType(raw string) (BillingType, error) {
	switch billingType := BillingType(strings.ToLower(strings.TrimSpace(raw))); billingType {
	case BillingDaily, BillingWeekly:
		return billingType, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidBillingType, raw)
	}
}

// String returns the raw billing type.
func (billingType BillingType) String() string {
	return string(billingType)
}

// NewIdentifier validates and normalizes an entity identifier.
func NewIdentifier(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty value", ErrInvalidIdentifier)
	}
	return trimmed, nil
}

// Application is a submitted driver application form.
type Application struct {
	ID        string            `json:"id"`
	Status    ApplicationStatus `json:"status"`
	FormData  map[string]any    `json:"form_data"`
	CreatedAt time.Time         `json:"created_at"`
}

// DisplayName returns the applicant's name from the form data.
func (application Application) DisplayName() string {
	first := formString(application.FormData, "first_name")
	last := formString(application.FormData, "last_name")
	if first != "" || last != "" {
		return strings.TrimSpace(first + " " + last)
	}
	switch names := application.FormData["names"].(type) {
	case string:
		return strings.TrimSpace(names)
	case map[string]any:
		return strings.TrimSpace(formString(names, "first_name") + " " + formString(names, "last_name"))
	}
	return ""
}

// Email returns the applicant's email from the form data.
func (application Application) Email() string {
	return formString(application.FormData, "email")
}

// Phone returns the applicant's phone number from the form data.
func (application Application) Phone() string {
	return formString(application.FormData, "phone")
}

func formString(data map[string]any, key string) string {
	value, ok := data[key]
	if !ok || value == nil {
		return ""
	}
	if text, ok := value.(string); ok {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(fmt.Sprint(value))
}

// Driver is a renter billed through the ledger.
type Driver struct {
	ID            string          `json:"id"`
	FirstName     string          `json:"first_name"`
	LastName      string          `json:"last_name"`
	Email         string          `json:"email"`
	Phone         string          `json:"phone"`
	BillingType   BillingType     `json:"billing_type"`
	BillingRate   decimal.Decimal `json:"billing_rate"`
	BillingActive bool            `json:"billing_active"`
	Balance       decimal.Decimal `json:"balance"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Name returns the driver's full name.
func (driver Driver) Name() string {
	return strings.TrimSpace(driver.FirstName + " " + driver.LastName)
}

// LedgerEntry is an immutable credit or debit attributed to a driver.
type LedgerEntry struct {
	ID          string          `json:"id"`
	DriverID    string          `json:"driver_id,omitempty"`
	Type        EntryType       `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Signed returns the amount with the sign implied by the entry type.
func (entry LedgerEntry) Signed() decimal.Decimal {
	if entry.Type == EntryDebit {
		return entry.Amount.Neg()
	}
	return entry.Amount
}

// PaymentAlias is a payment-network handle known to belong to a driver.
type PaymentAlias struct {
	ID         string `json:"id"`
	DriverID   string `json:"driver_id,omitempty"`
	AliasType  string `json:"alias_type"`
	AliasValue string `json:"alias_value"`
}

// Payment is an incoming payment awaiting or holding a driver match.
type Payment struct {
	ID               string          `json:"id"`
	Source           PaymentSource   `json:"source"`
	Amount           decimal.Decimal `json:"amount"`
	SenderName       string          `json:"sender_name"`
	SenderIdentifier *string         `json:"sender_identifier"`
	TransactionID    *string         `json:"transaction_id"`
	Memo             *string         `json:"memo"`
	ReceivedAt       time.Time       `json:"received_at"`
	Matched          bool            `json:"matched"`
	DriverID         *string         `json:"driver_id"`
}

// Validate checks the amount and the matched/driver invariant.
func (payment Payment) Validate() error {
	if !payment.Amount.IsPositive() {
		return fmt.Errorf("%w: payment %s amount %s must be positive", ErrInvalidPayment, payment.ID, payment.Amount)
	}
	hasDriver := payment.DriverID != nil && strings.TrimSpace(*payment.DriverID) != ""
	if payment.Matched != hasDriver {
		return fmt.Errorf("%w: payment %s matched=%t but driver assigned=%t", ErrInvalidPayment, payment.ID, payment.Matched, hasDriver)
	}
	return nil
}

// Stats is the externally aggregated payment summary.
type Stats struct {
	TotalPayments     int64           `json:"total_payments"`
	MatchedPayments   int64           `json:"matched_payments"`
	UnmatchedPayments int64           `json:"unmatched_payments"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	MatchedAmount     decimal.Decimal `json:"matched_amount"`
}

// Validate checks the count and amount invariants of a stats snapshot.
func (stats Stats) Validate() error {
	if stats.TotalPayments < 0 || stats.MatchedPayments < 0 || stats.UnmatchedPayments < 0 {
		return fmt.Errorf("%w: negative counts", ErrInvalidStats)
	}
	if stats.MatchedPayments+stats.UnmatchedPayments != stats.TotalPayments {
		return fmt.Errorf("%w: matched %d + unmatched %d != total %d", ErrInvalidStats, stats.MatchedPayments, stats.UnmatchedPayments, stats.TotalPayments)
	}
	if stats.MatchedAmount.IsNegative() {
		return fmt.Errorf("%w: negative matched amount", ErrInvalidStats)
	}
	if stats.MatchedAmount.GreaterThan(stats.TotalAmount) {
		return fmt.Errorf("%w: matched amount %s exceeds total %s", ErrInvalidStats, stats.MatchedAmount, stats.TotalAmount)
	}
	return nil
}

// UnmatchedAmount returns the amount still awaiting a driver.
func (stats Stats) UnmatchedAmount() decimal.Decimal {
	return stats.TotalAmount.Sub(stats.MatchedAmount)
}

// Recipient addresses an outbound message.
type Recipient struct {
	ApplicationID string `json:"application_id"`
	Phone         string `json:"phone"`
}

// SendResult is the outcome reported by the messaging endpoint.
type SendResult struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}
