package backoffice

import (
	"context"
	"slices"
	"sync"

	"github.com/MarkoPoloResearchLab/gonzofleet/internal/fleetapi"
	"github.com/MarkoPoloResearchLab/gonzofleet/pkg/fleet"
)

type assignCall struct {
	paymentID string
	driverID  string
	matched   bool
}

type sendCall struct {
	recipient fleet.Recipient
	message   string
}

// stubAPI serves canned collections and records mutating calls. Hooks, when
// set, intercept a single operation: read hooks replace the canned result,
// the billing and payments hooks run before it.
type stubAPI struct {
	mu sync.Mutex

	applications []fleet.Application
	drivers      map[string]fleet.Driver
	ledgers      map[string][]fleet.LedgerEntry
	aliases      map[string][]fleet.PaymentAlias
	payments     []fleet.Payment
	stats        fleet.Stats

	applicationsHook func(ctx context.Context, status fleet.ApplicationStatus) ([]fleet.Application, error)
	driverHook       func(ctx context.Context, driverID string) (fleet.Driver, error)
	billingHook      func(ctx context.Context, driverID string)
	paymentsHook     func(ctx context.Context)
	billingErr       error
	assignErr        error
	sendErr          error
	statsErr         error

	applicationQueries []fleet.ApplicationStatus
	billingCalls       []bool
	assignCalls        []assignCall
	sendCalls          []sendCall
}

var _ fleetapi.API = (*stubAPI)(nil)

func newStubAPI() *stubAPI {
	return &stubAPI{
		drivers: map[string]fleet.Driver{},
		ledgers: map[string][]fleet.LedgerEntry{},
		aliases: map[string][]fleet.PaymentAlias{},
	}
}

func (stub *stubAPI) GetApplications(ctx context.Context, status fleet.ApplicationStatus) ([]fleet.Application, error) {
	stub.mu.Lock()
	stub.applicationQueries = append(stub.applicationQueries, status)
	hook := stub.applicationsHook
	stub.mu.Unlock()
	if hook != nil {
		return hook(ctx, status)
	}
	stub.mu.Lock()
	defer stub.mu.Unlock()
	result := []fleet.Application{}
	for _, application := range stub.applications {
		if status == "" || application.Status == status {
			result = append(result, application)
		}
	}
	return result, nil
}

func (stub *stubAPI) GetApplication(_ context.Context, applicationID string) (fleet.Application, error) {
	stub.mu.Lock()
	defer stub.mu.Unlock()
	for _, application := range stub.applications {
		if application.ID == applicationID {
			return application, nil
		}
	}
	return fleet.Application{}, fleet.ErrNotFound
}

func (stub *stubAPI) GetDriver(ctx context.Context, driverID string) (fleet.Driver, error) {
	stub.mu.Lock()
	hook := stub.driverHook
	stub.mu.Unlock()
	if hook != nil {
		return hook(ctx, driverID)
	}
	stub.mu.Lock()
	defer stub.mu.Unlock()
	driver, ok := stub.drivers[driverID]
	if !ok {
		return fleet.Driver{}, fleet.ErrNotFound
	}
	return driver, nil
}

func (stub *stubAPI) GetDrivers(context.Context) ([]fleet.Driver, error) {
	stub.mu.Lock()
	defer stub.mu.Unlock()
	drivers := make([]fleet.Driver, 0, len(stub.drivers))
	driverIDs := make([]string, 0, len(stub.drivers))
	for driverID := range stub.drivers {
		driverIDs = append(driverIDs, driverID)
	}
	slices.Sort(driverIDs)
	for _, driverID := range driverIDs {
		drivers = append(drivers, stub.drivers[driverID])
	}
	return drivers, nil
}

func (stub *stubAPI) GetDriverLedger(_ context.Context, driverID string) ([]fleet.LedgerEntry, error) {
	stub.mu.Lock()
	defer stub.mu.Unlock()
	return append([]fleet.LedgerEntry{}, stub.ledgers[driverID]...), nil
}

func (stub *stubAPI) GetDriverAliases(_ context.Context, driverID string) ([]fleet.PaymentAlias, error) {
	stub.mu.Lock()
	defer stub.mu.Unlock()
	return append([]fleet.PaymentAlias{}, stub.aliases[driverID]...), nil
}

func (stub *stubAPI) UpdateDriverBilling(ctx context.Context, driverID string, active bool) error {
	stub.mu.Lock()
	hook := stub.billingHook
	stub.mu.Unlock()
	if hook != nil {
		hook(ctx, driverID)
	}
	stub.mu.Lock()
	defer stub.mu.Unlock()
	stub.billingCalls = append(stub.billingCalls, active)
	if stub.billingErr != nil {
		return stub.billingErr
	}
	driver := stub.drivers[driverID]
	driver.BillingActive = active
	stub.drivers[driverID] = driver
	return nil
}

func (stub *stubAPI) GetUnrecognizedPayments(ctx context.Context) ([]fleet.Payment, error) {
	stub.mu.Lock()
	hook := stub.paymentsHook
	stub.mu.Unlock()
	if hook != nil {
		hook(ctx)
	}
	stub.mu.Lock()
	defer stub.mu.Unlock()
	payments := []fleet.Payment{}
	for _, payment := range stub.payments {
		if !payment.Matched {
			payments = append(payments, payment)
		}
	}
	return payments, nil
}

func (stub *stubAPI) GetPaymentStats(context.Context) (fleet.Stats, error) {
	stub.mu.Lock()
	defer stub.mu.Unlock()
	return stub.stats, stub.statsErr
}

func (stub *stubAPI) AssignPayment(_ context.Context, paymentID string, driverID string, matched bool) error {
	stub.mu.Lock()
	defer stub.mu.Unlock()
	stub.assignCalls = append(stub.assignCalls, assignCall{paymentID: paymentID, driverID: driverID, matched: matched})
	if stub.assignErr != nil {
		return stub.assignErr
	}
	for index := range stub.payments {
		if stub.payments[index].ID == paymentID {
			assigned := driverID
			stub.payments[index].Matched = matched
			stub.payments[index].DriverID = &assigned
		}
	}
	return nil
}

func (stub *stubAPI) SendMessage(_ context.Context, recipient fleet.Recipient, message string) (fleet.SendResult, error) {
	stub.mu.Lock()
	defer stub.mu.Unlock()
	stub.sendCalls = append(stub.sendCalls, sendCall{recipient: recipient, message: message})
	if stub.sendErr != nil {
		return fleet.SendResult{}, stub.sendErr
	}
	return fleet.SendResult{Success: true, MessageID: "msg-1"}, nil
}

func (stub *stubAPI) recordedAssignCalls() []assignCall {
	stub.mu.Lock()
	defer stub.mu.Unlock()
	return append([]assignCall{}, stub.assignCalls...)
}

func (stub *stubAPI) recordedSendCalls() []sendCall {
	stub.mu.Lock()
	defer stub.mu.Unlock()
	return append([]sendCall{}, stub.sendCalls...)
}

func (stub *stubAPI) recordedBillingCalls() []bool {
	stub.mu.Lock()
	defer stub.mu.Unlock()
	return append([]bool{}, stub.billingCalls...)
}

type recordingActionLogger struct {
	mu      sync.Mutex
	entries []fleet.ActionLog
}

func (logger *recordingActionLogger) LogAction(_ context.Context, entry fleet.ActionLog) {
	logger.mu.Lock()
	defer logger.mu.Unlock()
	logger.entries = append(logger.entries, entry)
}

func (logger *recordingActionLogger) recorded() []fleet.ActionLog {
	logger.mu.Lock()
	defer logger.mu.Unlock()
	return append([]fleet.ActionLog{}, logger.entries...)
}
