package gormstore

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Driver mirrors the drivers table.
type Driver struct {
	ID            string          `gorm:"type:uuid;primaryKey"`
	FirstName     string          `gorm:"not null"`
	LastName      string          `gorm:"not null"`
	Email         string          `gorm:"index"`
	Phone         string          `gorm:""`
	BillingType   string          `gorm:"not null"`
	BillingRate   decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	BillingActive bool            `gorm:"not null;default:true"`
	CreatedAt     time.Time       `gorm:"not null"`
	UpdatedAt     time.Time       `gorm:"not null"`
}

func (Driver) TableName() string { return "drivers" }

func (driver *Driver) BeforeCreate(tx *gorm.DB) error {
	if driver.ID == "" {
		driver.ID = uuid.NewString()
	}
	return nil
}

// LedgerEntry mirrors the ledger_entries table.
type LedgerEntry struct {
	ID          string          `gorm:"type:uuid;primaryKey"`
	DriverID    string          `gorm:"type:uuid;not null;index:idx_ledger_driver_created,priority:1"`
	Type        string          `gorm:"not null"`
	Amount      decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	Description string          `gorm:""`
	CreatedAt   time.Time       `gorm:"not null;index:idx_ledger_driver_created,priority:2"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

func (entry *LedgerEntry) BeforeCreate(tx *gorm.DB) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	return nil
}

// PaymentAlias mirrors the payment_aliases table. (alias_type, alias_value)
// is unique across drivers.
type PaymentAlias struct {
	ID         string    `gorm:"type:uuid;primaryKey"`
	DriverID   string    `gorm:"type:uuid;not null;index"`
	AliasType  string    `gorm:"not null;uniqueIndex:idx_alias_type_value,priority:1"`
	AliasValue string    `gorm:"not null;uniqueIndex:idx_alias_type_value,priority:2"`
	CreatedAt  time.Time `gorm:"not null"`
}

func (PaymentAlias) TableName() string { return "payment_aliases" }

func (alias *PaymentAlias) BeforeCreate(tx *gorm.DB) error {
	if alias.ID == "" {
		alias.ID = uuid.NewString()
	}
	return nil
}

// Application mirrors the applications table.
type Application struct {
	ID        string            `gorm:"type:uuid;primaryKey"`
	Status    string            `gorm:"not null;index"`
	FormData  datatypes.JSONMap `gorm:"not null"`
	DriverID  *string           `gorm:"type:uuid;index"`
	CreatedAt time.Time         `gorm:"not null;index"`
}

func (Application) TableName() string { return "applications" }

func (application *Application) BeforeCreate(tx *gorm.DB) error {
	if application.ID == "" {
		application.ID = uuid.NewString()
	}
	return nil
}

// Payment mirrors the payments_raw table.
type Payment struct {
	ID               string          `gorm:"type:uuid;primaryKey"`
	Source           string          `gorm:"not null"`
	Amount           decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	SenderName       string          `gorm:"not null"`
	SenderIdentifier *string         `gorm:""`
	TransactionID    *string         `gorm:"uniqueIndex:idx_payments_raw_transaction_id"`
	Memo             *string         `gorm:""`
	ReceivedAt       time.Time       `gorm:"not null;index"`
	Matched          bool            `gorm:"not null;default:false;index"`
	DriverID         *string         `gorm:"type:uuid;index"`
}

func (Payment) TableName() string { return "payments_raw" }

func (payment *Payment) BeforeCreate(tx *gorm.DB) error {
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	return nil
}

// SmsLog mirrors the sms_logs table.
type SmsLog struct {
	ID               string            `gorm:"type:uuid;primaryKey"`
	ApplicationID    *string           `gorm:"type:uuid;index"`
	Phone            string            `gorm:"not null"`
	Message          string            `gorm:"not null"`
	Status           string            `gorm:"not null"`
	ProviderResponse datatypes.JSONMap `gorm:""`
	CreatedAt        time.Time         `gorm:"not null"`
}

func (SmsLog) TableName() string { return "sms_logs" }

func (log *SmsLog) BeforeCreate(tx *gorm.DB) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	return nil
}

// Models lists every table for AutoMigrate.
func Models() []any {
	return []any{&Driver{}, &LedgerEntry{}, &PaymentAlias{}, &Application{}, &Payment{}, &SmsLog{}}
}
