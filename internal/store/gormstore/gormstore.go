package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/gonzofleet/pkg/fleet"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	pgUniqueViolationCode       = "23505"
	sqliteConstraintUniqueCode  = 2067
	moneyPlaces                 = 2
	dialectPostgres             = "postgres"
	defaultListLimit            = 100
	smsStatusSent               = "sent"
	smsStatusFailed             = "failed"
	assignmentDescriptionFormat = "Payment via %s from %s"
	errorOperationStore         = "store"
	errorSubjectAlias           = "alias"
	errorSubjectApplication     = "application"
	errorSubjectDriver          = "driver"
	errorSubjectLedger          = "ledger"
	errorSubjectPayment         = "payment"
	errorSubjectSMS             = "sms"
	errorSubjectStats           = "stats"
	errorCodeAssign             = "assign"
	errorCodeCreate             = "create"
	errorCodeDelete             = "delete"
	errorCodeDuplicate          = "duplicate"
	errorCodeGet                = "get"
	errorCodeInsert             = "insert"
	errorCodeInvalid            = "invalid"
	errorCodeList               = "list"
	errorCodeSum                = "sum"
	errorCodeUpdate             = "update"
)

// Store persists the fleet back-office data using GORM.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore *Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction, now: store.now})
	})
}

// Page bounds a list query.
type Page struct {
	Skip  int
	Limit int
}

func (page Page) limit() int {
	if page.Limit <= 0 {
		return defaultListLimit
	}
	return page.Limit
}

func (page Page) offset() int {
	if page.Skip < 0 {
		return 0
	}
	return page.Skip
}

// DriverFilter narrows ListDrivers.
type DriverFilter struct {
	BillingActive *bool
	Page          Page
}

// DriverUpdate carries the profile fields to change; nil fields are left as
// they are.
type DriverUpdate struct {
	FirstName     *string
	LastName      *string
	Email         *string
	Phone         *string
	BillingType   *fleet.BillingType
	BillingRate   *decimal.Decimal
	BillingActive *bool
}

// ListApplications returns applications newest first, optionally by status.
func (store *Store) ListApplications(ctx context.Context, status fleet.ApplicationStatus) ([]fleet.Application, error) {
	query := store.db.WithContext(ctx).Order("created_at DESC")
	if status != "" {
		query = query.Where("status = ?", status.String())
	}
	var rows []Application
	if err := query.Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectApplication, errorCodeList, err)
	}
	applications := make([]fleet.Application, 0, len(rows))
	for _, row := range rows {
		application, err := mapApplication(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectApplication, errorCodeInvalid, err)
		}
		applications = append(applications, application)
	}
	return applications, nil
}

// GetApplication returns one application.
func (store *Store) GetApplication(ctx context.Context, applicationID string) (fleet.Application, error) {
	var row Application
	err := store.db.WithContext(ctx).Where("id = ?", applicationID).Take(&row).Error
	if err != nil {
		return fleet.Application{}, wrapStoreError(errorSubjectApplication, errorCodeGet, notFound(err))
	}
	application, err := mapApplication(row)
	if err != nil {
		return fleet.Application{}, wrapStoreError(errorSubjectApplication, errorCodeInvalid, err)
	}
	return application, nil
}

// CreateApplication stores a submitted form as a pending application.
func (store *Store) CreateApplication(ctx context.Context, formData map[string]any) (fleet.Application, error) {
	if formData == nil {
		formData = map[string]any{}
	}
	row := Application{
		Status:    fleet.ApplicationPending.String(),
		FormData:  datatypes.JSONMap(formData),
		CreatedAt: store.now(),
	}
	if err := store.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fleet.Application{}, wrapStoreError(errorSubjectApplication, errorCodeCreate, err)
	}
	return mapApplication(row)
}

// ListDrivers returns drivers with their computed balances.
func (store *Store) ListDrivers(ctx context.Context, filter DriverFilter) ([]fleet.Driver, error) {
	query := store.db.WithContext(ctx).Order("created_at ASC").Offset(filter.Page.offset()).Limit(filter.Page.limit())
	if filter.BillingActive != nil {
		query = query.Where("billing_active = ?", *filter.BillingActive)
	}
	var rows []Driver
	if err := query.Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectDriver, errorCodeList, err)
	}
	driverIDs := make([]string, 0, len(rows))
	for _, row := range rows {
		driverIDs = append(driverIDs, row.ID)
	}
	balances, err := store.balances(ctx, driverIDs)
	if err != nil {
		return nil, err
	}
	drivers := make([]fleet.Driver, 0, len(rows))
	for _, row := range rows {
		driver, err := mapDriver(row, balances[row.ID])
		if err != nil {
			return nil, wrapStoreError(errorSubjectDriver, errorCodeInvalid, err)
		}
		drivers = append(drivers, driver)
	}
	return drivers, nil
}

// GetDriver returns one driver with the balance computed from the ledger.
func (store *Store) GetDriver(ctx context.Context, driverID string) (fleet.Driver, error) {
	row, err := store.driverRow(ctx, driverID)
	if err != nil {
		return fleet.Driver{}, err
	}
	balances, err := store.balances(ctx, []string{row.ID})
	if err != nil {
		return fleet.Driver{}, err
	}
	driver, err := mapDriver(row, balances[row.ID])
	if err != nil {
		return fleet.Driver{}, wrapStoreError(errorSubjectDriver, errorCodeInvalid, err)
	}
	return driver, nil
}

// CreateDriver stores a new driver. ID and CreatedAt are assigned when empty.
func (store *Store) CreateDriver(ctx context.Context, driver fleet.Driver) (fleet.Driver, error) {
	if _, err := fleet.ParseBillingType(driver.BillingType.String()); err != nil {
		return fleet.Driver{}, wrapStoreError(errorSubjectDriver, errorCodeInvalid, fmt.Errorf("%w: %w", fleet.ErrValidation, err))
	}
	if _, err := fleet.NewAmount(driver.BillingRate); err != nil {
		return fleet.Driver{}, wrapStoreError(errorSubjectDriver, errorCodeInvalid, fmt.Errorf("%w: %w", fleet.ErrValidation, err))
	}
	createdAt := driver.CreatedAt
	if createdAt.IsZero() {
		createdAt = store.now()
	}
	row := Driver{
		ID:            driver.ID,
		FirstName:     driver.FirstName,
		LastName:      driver.LastName,
		Email:         driver.Email,
		Phone:         driver.Phone,
		BillingType:   driver.BillingType.String(),
		BillingRate:   driver.BillingRate,
		BillingActive: driver.BillingActive,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}
	// Select keeps an explicit false from being replaced by the column default.
	if err := store.db.WithContext(ctx).Select("*").Create(&row).Error; err != nil {
		return fleet.Driver{}, wrapStoreError(errorSubjectDriver, errorCodeCreate, err)
	}
	return mapDriver(row, decimal.Zero)
}

// UpdateDriver applies a partial profile update and returns the driver with
// its current balance.
func (store *Store) UpdateDriver(ctx context.Context, driverID string, update DriverUpdate) (fleet.Driver, error) {
	changes, err := update.columns()
	if err != nil {
		return fleet.Driver{}, wrapStoreError(errorSubjectDriver, errorCodeInvalid, fmt.Errorf("%w: %w", fleet.ErrValidation, err))
	}
	err = store.WithTx(ctx, func(ctx context.Context, txStore *Store) error {
		row, err := txStore.driverRow(ctx, driverID)
		if err != nil {
			return err
		}
		if len(changes) == 0 {
			return nil
		}
		changes["updated_at"] = txStore.now()
		if updateErr := txStore.db.WithContext(ctx).Model(&Driver{}).Where("id = ?", row.ID).Updates(changes).Error; updateErr != nil {
			return wrapStoreError(errorSubjectDriver, errorCodeUpdate, updateErr)
		}
		return nil
	})
	if err != nil {
		return fleet.Driver{}, err
	}
	return store.GetDriver(ctx, driverID)
}

func (update DriverUpdate) columns() (map[string]any, error) {
	changes := map[string]any{}
	names := []struct {
		column string
		value  *string
	}{{"first_name", update.FirstName}, {"last_name", update.LastName}}
	for _, name := range names {
		if name.value == nil {
			continue
		}
		trimmed := strings.TrimSpace(*name.value)
		if trimmed == "" {
			return nil, fmt.Errorf("%s must not be blank", name.column)
		}
		changes[name.column] = trimmed
	}
	if update.Email != nil {
		changes["email"] = strings.TrimSpace(*update.Email)
	}
	if update.Phone != nil {
		changes["phone"] = strings.TrimSpace(*update.Phone)
	}
	if update.BillingType != nil {
		billingType, err := fleet.ParseBillingType(update.BillingType.String())
		if err != nil {
			return nil, err
		}
		changes["billing_type"] = billingType.String()
	}
	if update.BillingRate != nil {
		rate, err := fleet.NewAmount(*update.BillingRate)
		if err != nil {
			return nil, err
		}
		changes["billing_rate"] = rate
	}
	if update.BillingActive != nil {
		changes["billing_active"] = *update.BillingActive
	}
	return changes, nil
}

// SetBillingActive stores billing_active for a driver. A nil value toggles
// the current state.
func (store *Store) SetBillingActive(ctx context.Context, driverID string, active *bool) (fleet.Driver, error) {
	err := store.WithTx(ctx, func(ctx context.Context, txStore *Store) error {
		row, err := txStore.driverRow(ctx, driverID)
		if err != nil {
			return err
		}
		target := !row.BillingActive
		if active != nil {
			target = *active
		}
		updateErr := txStore.db.WithContext(ctx).
			Model(&Driver{}).
			Where("id = ?", row.ID).
			Updates(map[string]any{"billing_active": target, "updated_at": txStore.now()}).Error
		if updateErr != nil {
			return wrapStoreError(errorSubjectDriver, errorCodeUpdate, updateErr)
		}
		return nil
	})
	if err != nil {
		return fleet.Driver{}, err
	}
	return store.GetDriver(ctx, driverID)
}

// ListLedger returns a driver's entries newest first.
func (store *Store) ListLedger(ctx context.Context, driverID string, page Page) ([]fleet.LedgerEntry, error) {
	if _, err := store.driverRow(ctx, driverID); err != nil {
		return nil, err
	}
	var rows []LedgerEntry
	err := store.db.WithContext(ctx).
		Where("driver_id = ?", driverID).
		Order("created_at DESC").
		Offset(page.offset()).
		Limit(page.limit()).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectLedger, errorCodeList, err)
	}
	entries := make([]fleet.LedgerEntry, 0, len(rows))
	for _, row := range rows {
		entry, err := mapLedgerEntry(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectLedger, errorCodeInvalid, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// AppendLedgerEntry adds an immutable entry to a driver's ledger.
func (store *Store) AppendLedgerEntry(ctx context.Context, entry fleet.LedgerEntry) (fleet.LedgerEntry, error) {
	entryType, err := fleet.ParseEntryType(entry.Type.String())
	if err != nil {
		return fleet.LedgerEntry{}, wrapStoreError(errorSubjectLedger, errorCodeInvalid, fmt.Errorf("%w: %w", fleet.ErrValidation, err))
	}
	if !entry.Amount.IsPositive() {
		return fleet.LedgerEntry{}, wrapStoreError(errorSubjectLedger, errorCodeInvalid, fmt.Errorf("%w: %w: must be positive", fleet.ErrValidation, fleet.ErrInvalidAmount))
	}
	if _, err := store.driverRow(ctx, entry.DriverID); err != nil {
		return fleet.LedgerEntry{}, err
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = store.now()
	}
	row := LedgerEntry{
		ID:          entry.ID,
		DriverID:    entry.DriverID,
		Type:        entryType.String(),
		Amount:      entry.Amount,
		Description: entry.Description,
		CreatedAt:   createdAt,
	}
	if err := store.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fleet.LedgerEntry{}, wrapStoreError(errorSubjectLedger, errorCodeInsert, err)
	}
	return mapLedgerEntry(row)
}

// ListAliases returns a driver's payment aliases.
func (store *Store) ListAliases(ctx context.Context, driverID string) ([]fleet.PaymentAlias, error) {
	if _, err := store.driverRow(ctx, driverID); err != nil {
		return nil, err
	}
	var rows []PaymentAlias
	if err := store.db.WithContext(ctx).Where("driver_id = ?", driverID).Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectAlias, errorCodeList, err)
	}
	aliases := make([]fleet.PaymentAlias, 0, len(rows))
	for _, row := range rows {
		aliases = append(aliases, mapAlias(row))
	}
	return aliases, nil
}

// CreateAlias links a payment handle to a driver. A handle already linked to
// any driver is a conflict.
func (store *Store) CreateAlias(ctx context.Context, alias fleet.PaymentAlias) (fleet.PaymentAlias, error) {
	if alias.AliasType == "" || alias.AliasValue == "" {
		return fleet.PaymentAlias{}, wrapStoreError(errorSubjectAlias, errorCodeInvalid, fmt.Errorf("%w: alias type and value are required", fleet.ErrValidation))
	}
	if _, err := store.driverRow(ctx, alias.DriverID); err != nil {
		return fleet.PaymentAlias{}, err
	}
	row := PaymentAlias{
		ID:         alias.ID,
		DriverID:   alias.DriverID,
		AliasType:  alias.AliasType,
		AliasValue: alias.AliasValue,
		CreatedAt:  store.now(),
	}
	err := store.db.WithContext(ctx).Create(&row).Error
	if isUniqueViolation(err, constraintAliasTypeValue) {
		return fleet.PaymentAlias{}, wrapStoreError(errorSubjectAlias, errorCodeDuplicate, fmt.Errorf("%w: alias already exists", fleet.ErrConflict))
	}
	if err != nil {
		return fleet.PaymentAlias{}, wrapStoreError(errorSubjectAlias, errorCodeCreate, err)
	}
	return mapAlias(row), nil
}

// DeleteAlias removes one of a driver's aliases.
func (store *Store) DeleteAlias(ctx context.Context, driverID string, aliasID string) error {
	result := store.db.WithContext(ctx).Where("id = ? AND driver_id = ?", aliasID, driverID).Delete(&PaymentAlias{})
	if result.Error != nil {
		return wrapStoreError(errorSubjectAlias, errorCodeDelete, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectAlias, errorCodeDelete, fmt.Errorf("%w: alias %s", fleet.ErrNotFound, aliasID))
	}
	return nil
}

// InsertPayment records an incoming payment.
func (store *Store) InsertPayment(ctx context.Context, payment fleet.Payment) (fleet.Payment, error) {
	if _, err := fleet.ParsePaymentSource(payment.Source.String()); err != nil {
		return fleet.Payment{}, wrapStoreError(errorSubjectPayment, errorCodeInvalid, fmt.Errorf("%w: %w", fleet.ErrValidation, err))
	}
	if err := payment.Validate(); err != nil {
		return fleet.Payment{}, wrapStoreError(errorSubjectPayment, errorCodeInvalid, fmt.Errorf("%w: %w", fleet.ErrValidation, err))
	}
	receivedAt := payment.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = store.now()
	}
	row := Payment{
		ID:               payment.ID,
		Source:           payment.Source.String(),
		Amount:           payment.Amount,
		SenderName:       payment.SenderName,
		SenderIdentifier: payment.SenderIdentifier,
		TransactionID:    payment.TransactionID,
		Memo:             payment.Memo,
		ReceivedAt:       receivedAt,
		Matched:          payment.Matched,
		DriverID:         payment.DriverID,
	}
	err := store.db.WithContext(ctx).Select("*").Create(&row).Error
	if isUniqueViolation(err, constraintPaymentTransaction) {
		return fleet.Payment{}, wrapStoreError(errorSubjectPayment, errorCodeDuplicate, fmt.Errorf("%w: transaction already recorded", fleet.ErrConflict))
	}
	if err != nil {
		return fleet.Payment{}, wrapStoreError(errorSubjectPayment, errorCodeInsert, err)
	}
	return mapPayment(row)
}

// ListUnrecognizedPayments returns unmatched payments newest first.
func (store *Store) ListUnrecognizedPayments(ctx context.Context) ([]fleet.Payment, error) {
	var rows []Payment
	if err := store.db.WithContext(ctx).Where("matched = ?", false).Order("received_at DESC").Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectPayment, errorCodeList, err)
	}
	payments := make([]fleet.Payment, 0, len(rows))
	for _, row := range rows {
		payment, err := mapPayment(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectPayment, errorCodeInvalid, err)
		}
		payments = append(payments, payment)
	}
	return payments, nil
}

// PaymentStats aggregates counts and amounts over every payment.
func (store *Store) PaymentStats(ctx context.Context) (fleet.Stats, error) {
	var sums struct {
		TotalPayments   int64
		MatchedPayments int64
		TotalAmount     decimal.NullDecimal
		MatchedAmount   decimal.NullDecimal
	}
	err := store.db.WithContext(ctx).
		Model(&Payment{}).
		Select("count(*) as total_payments, " +
			"coalesce(sum(case when matched then 1 else 0 end),0) as matched_payments, " +
			"coalesce(sum(amount),0) as total_amount, " +
			"coalesce(sum(case when matched then amount else 0 end),0) as matched_amount").
		Scan(&sums).Error
	if err != nil {
		return fleet.Stats{}, wrapStoreError(errorSubjectStats, errorCodeSum, err)
	}
	stats := fleet.Stats{
		TotalPayments:     sums.TotalPayments,
		MatchedPayments:   sums.MatchedPayments,
		UnmatchedPayments: sums.TotalPayments - sums.MatchedPayments,
		TotalAmount:       sums.TotalAmount.Decimal.Round(moneyPlaces),
		MatchedAmount:     sums.MatchedAmount.Decimal.Round(moneyPlaces),
	}
	if err := stats.Validate(); err != nil {
		return fleet.Stats{}, wrapStoreError(errorSubjectStats, errorCodeInvalid, err)
	}
	return stats, nil
}

// AssignPayment matches an unmatched payment to a driver and credits the
// driver's ledger with the payment amount.
func (store *Store) AssignPayment(ctx context.Context, paymentID string, driverID string) (fleet.Payment, error) {
	var assigned Payment
	err := store.WithTx(ctx, func(ctx context.Context, txStore *Store) error {
		if err := txStore.lockingQuery(ctx).Where("id = ?", paymentID).Take(&assigned).Error; err != nil {
			return wrapStoreError(errorSubjectPayment, errorCodeGet, notFound(err))
		}
		if _, err := txStore.driverRow(ctx, driverID); err != nil {
			return err
		}
		result := txStore.db.WithContext(ctx).
			Model(&Payment{}).
			Where("id = ? AND matched = ?", paymentID, false).
			Updates(map[string]any{"matched": true, "driver_id": driverID})
		if result.Error != nil {
			return wrapStoreError(errorSubjectPayment, errorCodeAssign, result.Error)
		}
		if result.RowsAffected == 0 {
			return wrapStoreError(errorSubjectPayment, errorCodeAssign, fmt.Errorf("%w: payment %s is already matched", fleet.ErrConflict, paymentID))
		}
		_, err := txStore.AppendLedgerEntry(ctx, fleet.LedgerEntry{
			DriverID:    driverID,
			Type:        fleet.EntryCredit,
			Amount:      assigned.Amount,
			Description: fmt.Sprintf(assignmentDescriptionFormat, assigned.Source, assigned.SenderName),
		})
		if err != nil {
			return err
		}
		assigned.Matched = true
		assigned.DriverID = &driverID
		return nil
	})
	if err != nil {
		return fleet.Payment{}, err
	}
	return mapPayment(assigned)
}

// SMSRecord describes one outbound message attempt.
type SMSRecord struct {
	ApplicationID string
	Phone         string
	Result        fleet.SendResult
}

// RecordSMS logs an outbound message attempt with the provider response.
func (store *Store) RecordSMS(ctx context.Context, record SMSRecord, message string) error {
	status := smsStatusSent
	if !record.Result.Success {
		status = smsStatusFailed
	}
	row := SmsLog{
		Phone:            record.Phone,
		Message:          message,
		Status:           status,
		ProviderResponse: datatypes.JSONMap{"message_id": record.Result.MessageID, "error": record.Result.Error},
		CreatedAt:        store.now(),
	}
	if record.ApplicationID != "" {
		applicationID := record.ApplicationID
		row.ApplicationID = &applicationID
	}
	if err := store.db.WithContext(ctx).Create(&row).Error; err != nil {
		return wrapStoreError(errorSubjectSMS, errorCodeInsert, err)
	}
	return nil
}

// CountSMS returns how many messages were logged for a phone number.
func (store *Store) CountSMS(ctx context.Context, phone string) (int64, error) {
	var count int64
	if err := store.db.WithContext(ctx).Model(&SmsLog{}).Where("phone = ?", phone).Count(&count).Error; err != nil {
		return 0, wrapStoreError(errorSubjectSMS, errorCodeList, err)
	}
	return count, nil
}

// lockingQuery takes a row lock where the dialect supports one.
func (store *Store) lockingQuery(ctx context.Context) *gorm.DB {
	query := store.db.WithContext(ctx)
	if store.db.Dialector.Name() == dialectPostgres {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return query
}

func (store *Store) driverRow(ctx context.Context, driverID string) (Driver, error) {
	var row Driver
	if err := store.db.WithContext(ctx).Where("id = ?", driverID).Take(&row).Error; err != nil {
		return Driver{}, wrapStoreError(errorSubjectDriver, errorCodeGet, notFound(err))
	}
	return row, nil
}

type driverBalance struct {
	DriverID string
	Balance  decimal.NullDecimal
}

func (store *Store) balances(ctx context.Context, driverIDs []string) (map[string]decimal.Decimal, error) {
	balances := make(map[string]decimal.Decimal, len(driverIDs))
	if len(driverIDs) == 0 {
		return balances, nil
	}
	var rows []driverBalance
	err := store.db.WithContext(ctx).
		Model(&LedgerEntry{}).
		Select("driver_id, coalesce(sum(case when type = ? then amount else -amount end),0) as balance", fleet.EntryCredit.String()).
		Where("driver_id IN ?", driverIDs).
		Group("driver_id").
		Scan(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectDriver, errorCodeSum, err)
	}
	for _, row := range rows {
		balances[row.DriverID] = row.Balance.Decimal.Round(moneyPlaces)
	}
	return balances, nil
}

func wrapStoreError(subject string, code string, err error) error {
	return fleet.WrapError(errorOperationStore, subject, code, err)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %w", fleet.ErrNotFound, err)
	}
	return err
}

func mapApplication(row Application) (fleet.Application, error) {
	status, err := fleet.ParseApplicationStatus(row.Status)
	if err != nil {
		return fleet.Application{}, err
	}
	formData := map[string]any(row.FormData)
	if formData == nil {
		formData = map[string]any{}
	}
	return fleet.Application{ID: row.ID, Status: status, FormData: formData, CreatedAt: row.CreatedAt.UTC()}, nil
}

func mapDriver(row Driver, balance decimal.Decimal) (fleet.Driver, error) {
	billingType, err := fleet.ParseBillingType(row.BillingType)
	if err != nil {
		return fleet.Driver{}, err
	}
	return fleet.Driver{
		ID:            row.ID,
		FirstName:     row.FirstName,
		LastName:      row.LastName,
		Email:         row.Email,
		Phone:         row.Phone,
		BillingType:   billingType,
		BillingRate:   row.BillingRate.Round(moneyPlaces),
		BillingActive: row.BillingActive,
		Balance:       balance,
		CreatedAt:     row.CreatedAt.UTC(),
	}, nil
}

func mapLedgerEntry(row LedgerEntry) (fleet.LedgerEntry, error) {
	entryType, err := fleet.ParseEntryType(row.Type)
	if err != nil {
		return fleet.LedgerEntry{}, err
	}
	return fleet.LedgerEntry{
		ID:          row.ID,
		DriverID:    row.DriverID,
		Type:        entryType,
		Amount:      row.Amount.Round(moneyPlaces),
		Description: row.Description,
		CreatedAt:   row.CreatedAt.UTC(),
	}, nil
}

func mapAlias(row PaymentAlias) fleet.PaymentAlias {
	return fleet.PaymentAlias{ID: row.ID, DriverID: row.DriverID, AliasType: row.AliasType, AliasValue: row.AliasValue}
}

func mapPayment(row Payment) (fleet.Payment, error) {
	source, err := fleet.ParsePaymentSource(row.Source)
	if err != nil {
		return fleet.Payment{}, err
	}
	return fleet.Payment{
		ID:               row.ID,
		Source:           source,
		Amount:           row.Amount.Round(moneyPlaces),
		SenderName:       row.SenderName,
		SenderIdentifier: row.SenderIdentifier,
		TransactionID:    row.TransactionID,
		Memo:             row.Memo,
		ReceivedAt:       row.ReceivedAt.UTC(),
		Matched:          row.Matched,
		DriverID:         row.DriverID,
	}, nil
}

// uniqueConstraint names a unique index the way each backend reports it:
// postgres by index name, sqlite by the qualified column list.
type uniqueConstraint struct {
	name    string
	columns string
}

var (
	constraintAliasTypeValue     = uniqueConstraint{name: "idx_alias_type_value", columns: "payment_aliases.alias_type, payment_aliases.alias_value"}
	constraintPaymentTransaction = uniqueConstraint{name: "idx_payments_raw_transaction_id", columns: "payments_raw.transaction_id"}
)

func isUniqueViolation(err error, constraint uniqueConstraint) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraint.name
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqliteConstraintUniqueCode && strings.Contains(sqliteErr.Error(), "UNIQUE constraint failed: "+constraint.columns)
	}
	return false
}
