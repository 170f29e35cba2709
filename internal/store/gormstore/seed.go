package gormstore

import (
	"context"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/gonzofleet/pkg/fleet"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// SeedData is a consistent set of records loaded in one transaction.
type SeedData struct {
	Drivers      []fleet.Driver
	Ledger       []fleet.LedgerEntry
	Aliases      []fleet.PaymentAlias
	Applications []fleet.Application
	Payments     []fleet.Payment
}

// Seed inserts data in dependency order. Balances on the supplied drivers are
// ignored; they are always derived from the ledger.
func (store *Store) Seed(ctx context.Context, data SeedData) error {
	return store.WithTx(ctx, func(ctx context.Context, txStore *Store) error {
		for _, driver := range data.Drivers {
			if _, err := txStore.CreateDriver(ctx, driver); err != nil {
				return err
			}
		}
		for _, entry := range data.Ledger {
			if _, err := txStore.AppendLedgerEntry(ctx, entry); err != nil {
				return err
			}
		}
		for _, alias := range data.Aliases {
			if _, err := txStore.CreateAlias(ctx, alias); err != nil {
				return err
			}
		}
		for _, application := range data.Applications {
			if err := txStore.insertApplication(ctx, application); err != nil {
				return err
			}
		}
		for _, payment := range data.Payments {
			if _, err := txStore.InsertPayment(ctx, payment); err != nil {
				return err
			}
		}
		return nil
	})
}

func (store *Store) insertApplication(ctx context.Context, application fleet.Application) error {
	status, err := fleet.ParseApplicationStatus(application.Status.String())
	if err != nil {
		return wrapStoreError(errorSubjectApplication, errorCodeInvalid, fmt.Errorf("%w: %w", fleet.ErrValidation, err))
	}
	createdAt := application.CreatedAt
	if createdAt.IsZero() {
		createdAt = store.now()
	}
	formData := application.FormData
	if formData == nil {
		formData = map[string]any{}
	}
	row := Application{
		ID:        application.ID,
		Status:    status.String(),
		FormData:  datatypes.JSONMap(formData),
		CreatedAt: createdAt,
	}
	if err := store.db.WithContext(ctx).Create(&row).Error; err != nil {
		return wrapStoreError(errorSubjectApplication, errorCodeCreate, err)
	}
	return nil
}

// DemoSeed returns a small fleet for local development: two drivers with
// ledgers, applications in every status and three unrecognized payments.
func DemoSeed(now time.Time) SeedData {
	day := 24 * time.Hour
	anaID := "7f1c2a52-4a0e-4c39-9d7e-0b6f1a6f0a01"
	benID := "7f1c2a52-4a0e-4c39-9d7e-0b6f1a6f0a02"
	memo := "week 12 rent"
	zelleHandle := "ana.diaz@example.com"
	return SeedData{
		Drivers: []fleet.Driver{
			{ID: anaID, FirstName: "Ana", LastName: "Diaz", Email: "ana.diaz@example.com", Phone: "+15555550101", BillingType: fleet.BillingWeekly, BillingRate: decimal.RequireFromString("350"), BillingActive: true, CreatedAt: now.Add(-60 * day)},
			{ID: benID, FirstName: "Ben", LastName: "Okafor", Email: "ben.okafor@example.com", Phone: "+15555550102", BillingType: fleet.BillingDaily, BillingRate: decimal.RequireFromString("55"), BillingActive: false, CreatedAt: now.Add(-30 * day)},
		},
		Ledger: []fleet.LedgerEntry{
			{DriverID: anaID, Type: fleet.EntryCredit, Amount: decimal.RequireFromString("100"), Description: "Zelle payment", CreatedAt: now.Add(-3 * day)},
			{DriverID: anaID, Type: fleet.EntryDebit, Amount: decimal.RequireFromString("40"), Description: "Toll charges", CreatedAt: now.Add(-2 * day)},
			{DriverID: benID, Type: fleet.EntryDebit, Amount: decimal.RequireFromString("55"), Description: "Daily rent", CreatedAt: now.Add(-day)},
		},
		Aliases: []fleet.PaymentAlias{
			{DriverID: anaID, AliasType: fleet.SourceZelle.String(), AliasValue: zelleHandle},
		},
		Applications: []fleet.Application{
			{Status: fleet.ApplicationPending, CreatedAt: now.Add(-5 * day), FormData: map[string]any{"first_name": "Cara", "last_name": "Ng", "email": "cara@example.com", "phone": "+15555550103", "uber_lyft": "Yes", "_wp_http_referer": "/apply"}},
			{Status: fleet.ApplicationApproved, CreatedAt: now.Add(-4 * day), FormData: map[string]any{"names": map[string]any{"first_name": "Dev", "last_name": "Patel"}, "email": "dev@example.com", "phone": "+15555550104"}},
			{Status: fleet.ApplicationDeclined, CreatedAt: now.Add(-3 * day), FormData: map[string]any{"first_name": "Eli", "last_name": "Stone", "phone": "+15555550105"}},
			{Status: fleet.ApplicationHold, CreatedAt: now.Add(-2 * day), FormData: map[string]any{"first_name": "Fay", "last_name": "Moss", "phone": "+15555550106"}},
			{Status: fleet.ApplicationOnboarding, CreatedAt: now.Add(-day), FormData: map[string]any{"first_name": "Gus", "last_name": "Lee", "phone": "+15555550107"}},
		},
		Payments: []fleet.Payment{
			{Source: fleet.SourceZelle, Amount: decimal.RequireFromString("350"), SenderName: "ANA M DIAZ", SenderIdentifier: &zelleHandle, Memo: &memo, ReceivedAt: now.Add(-6 * time.Hour)},
			{Source: fleet.SourceCashApp, Amount: decimal.RequireFromString("55"), SenderName: "$bokafor", ReceivedAt: now.Add(-4 * time.Hour)},
			{Source: fleet.SourceVenmo, Amount: decimal.RequireFromString("120.5"), SenderName: "Unknown Sender", ReceivedAt: now.Add(-2 * time.Hour)},
		},
	}
}
