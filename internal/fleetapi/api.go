// Package fleetapi binds the GonzoFleet REST API consumed by the back-office.
package fleetapi

import (
	"context"

	"github.com/MarkoPoloResearchLab/gonzofleet/pkg/fleet"
)

// API is the subset of the fleet REST API the back-office depends on.
type API interface {
	GetApplications(ctx context.Context, status fleet.ApplicationStatus) ([]fleet.Application, error)
	GetApplication(ctx context.Context, applicationID string) (fleet.Application, error)
	GetDriver(ctx context.Context, driverID string) (fleet.Driver, error)
	GetDrivers(ctx context.Context) ([]fleet.Driver, error)
	GetDriverLedger(ctx context.Context, driverID string) ([]fleet.LedgerEntry, error)
	GetDriverAliases(ctx context.Context, driverID string) ([]fleet.PaymentAlias, error)
	UpdateDriverBilling(ctx context.Context, driverID string, active bool) error
	GetUnrecognizedPayments(ctx context.Context) ([]fleet.Payment, error)
	GetPaymentStats(ctx context.Context) (fleet.Stats, error)
	AssignPayment(ctx context.Context, paymentID string, driverID string, matched bool) error
	SendMessage(ctx context.Context, recipient fleet.Recipient, message string) (fleet.SendResult, error)
}

const (
	pathApplications        = "/applications"
	pathApplication         = "/applications/{id}"
	pathDrivers             = "/drivers"
	pathDriver              = "/drivers/{id}"
	pathDriverLedger        = "/drivers/{id}/ledger"
	pathDriverAliases       = "/drivers/{id}/aliases"
	pathDriverBilling       = "/drivers/{id}/billing"
	pathUnrecognizedPayment = "/payments/unrecognized"
	pathPaymentStats        = "/payments/stats"
	pathPaymentAssign       = "/payments/{id}/assign"
	pathSendSMS             = "/sms/send"
)

// BillingUpdateRequest is the body of PATCH /drivers/{id}/billing.
type BillingUpdateRequest struct {
	BillingActive bool `json:"billing_active"`
}

// AssignPaymentRequest is the body of POST /payments/{id}/assign.
type AssignPaymentRequest struct {
	DriverID string `json:"driver_id"`
	Matched  bool   `json:"matched"`
}

// SendMessageRequest is the body of POST /sms/send.
type SendMessageRequest struct {
	ApplicationID string `json:"application_id,omitempty"`
	Phone         string `json:"phone"`
	Message       string `json:"message"`
}
