package backoffice

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/MarkoPoloResearchLab/gonzofleet/internal/fleetapi"
	"github.com/MarkoPoloResearchLab/gonzofleet/pkg/fleet"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	memoPlaceholder = "-"
	receivedLayout  = "Jan 2, 2006 3:04 PM"
)

// StatsCard is the rendered payment summary.
type StatsCard struct {
	TotalPayments   int64  `json:"total_payments"`
	TotalAmount     string `json:"total_amount"`
	Matched         int64  `json:"matched"`
	MatchedAmount   string `json:"matched_amount"`
	Unmatched       int64  `json:"unmatched"`
	UnmatchedAmount string `json:"unmatched_amount"`
}

// PaymentRow is one rendered unrecognized payment.
type PaymentRow struct {
	ID        string              `json:"id"`
	Source    fleet.PaymentSource `json:"source"`
	Sender    string              `json:"sender"`
	Memo      string              `json:"memo"`
	Received  string              `json:"received"`
	Amount    string              `json:"amount"`
	Assigning bool                `json:"assigning"`
}

// DriverOption is one entry of the driver picker.
type DriverOption struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ReconciliationState is a point-in-time copy of the reconciliation view.
type ReconciliationState struct {
	Loading            bool           `json:"loading"`
	Stats              *StatsCard     `json:"stats,omitempty"`
	Payments           []PaymentRow   `json:"payments"`
	Drivers            []DriverOption `json:"drivers"`
	AssigningPaymentID string         `json:"assigning_payment_id,omitempty"`
	SelectedDriverID   string         `json:"selected_driver_id,omitempty"`
	Submitting         bool           `json:"submitting"`
	CanConfirm         bool           `json:"can_confirm"`
	Empty              bool           `json:"empty"`
}

// Reconciliation lists unrecognized payments and assigns them to drivers.
// At most one row is in assign mode and the driver selection is shared by it.
type Reconciliation struct {
	api     fleetapi.API
	logger  *zap.Logger
	actions fleet.ActionLogger

	mu             sync.Mutex
	payments       []fleet.Payment
	drivers        []fleet.Driver
	stats          *fleet.Stats
	loading        bool
	assigning      string
	selectedDriver string
	submitting     bool
	generation     generation
}

// NewReconciliation returns an empty reconciliation view.
func NewReconciliation(api fleetapi.API, options ...Option) (*Reconciliation, error) {
	cfg, err := newViewConfig(api, options)
	if err != nil {
		return nil, err
	}
	return &Reconciliation{api: api, logger: cfg.logger, actions: cfg.actions}, nil
}

// Load fetches unrecognized payments, the driver roster and stats together.
// Stats that break their invariants fail the load. Payments that break theirs
// are dropped and logged.
func (view *Reconciliation) Load(ctx context.Context) error {
	view.mu.Lock()
	token, err := view.generation.next()
	if err != nil {
		view.mu.Unlock()
		return err
	}
	view.loading = true
	view.mu.Unlock()

	var (
		payments []fleet.Payment
		drivers  []fleet.Driver
		stats    fleet.Stats
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var fetchErr error
		payments, fetchErr = view.api.GetUnrecognizedPayments(groupCtx)
		return fetchErr
	})
	group.Go(func() error {
		var fetchErr error
		drivers, fetchErr = view.api.GetDrivers(groupCtx)
		return fetchErr
	})
	group.Go(func() error {
		var fetchErr error
		stats, fetchErr = view.api.GetPaymentStats(groupCtx)
		if fetchErr != nil {
			return fetchErr
		}
		return stats.Validate()
	})
	loadErr := group.Wait()

	view.mu.Lock()
	defer view.mu.Unlock()
	if !view.generation.accepts(token) {
		view.logger.Debug("discarded stale reconciliation response")
		return ErrStaleResponse
	}
	view.loading = false
	if loadErr != nil {
		view.logger.Warn("reconciliation load failed", zap.Error(loadErr))
		return loadErr
	}
	view.payments = view.unmatchedPayments(payments)
	view.drivers = drivers
	view.stats = &stats
	if view.assigning != "" && !view.submitting && view.paymentIndexLocked(view.assigning) < 0 {
		view.assigning = ""
		view.selectedDriver = ""
	}
	return nil
}

func (view *Reconciliation) unmatchedPayments(payments []fleet.Payment) []fleet.Payment {
	kept := make([]fleet.Payment, 0, len(payments))
	for _, payment := range payments {
		if err := payment.Validate(); err != nil {
			view.logger.Warn("dropping invalid payment", zap.String("payment_id", payment.ID), zap.Error(err))
			continue
		}
		if payment.Matched {
			view.logger.Warn("dropping matched payment from unrecognized list", zap.String("payment_id", payment.ID))
			continue
		}
		kept = append(kept, payment)
	}
	return kept
}

// BeginAssign puts one payment row in assign mode and resets the selection.
func (view *Reconciliation) BeginAssign(paymentID string) error {
	view.mu.Lock()
	defer view.mu.Unlock()
	if view.submitting {
		return fleet.ErrActionPending
	}
	if view.paymentIndexLocked(paymentID) < 0 {
		return fmt.Errorf("%w: payment %q", fleet.ErrNotFound, paymentID)
	}
	view.assigning = paymentID
	view.selectedDriver = ""
	return nil
}

// SelectDriver chooses the driver for the row in assign mode.
func (view *Reconciliation) SelectDriver(driverID string) error {
	view.mu.Lock()
	defer view.mu.Unlock()
	if view.submitting {
		return fleet.ErrActionPending
	}
	if view.assigning == "" {
		return fmt.Errorf("%w: no payment in assign mode", fleet.ErrValidation)
	}
	if !slices.ContainsFunc(view.drivers, func(driver fleet.Driver) bool { return driver.ID == driverID }) {
		return fmt.Errorf("%w: driver %q", fleet.ErrNotFound, driverID)
	}
	view.selectedDriver = driverID
	return nil
}

// CancelAssign leaves assign mode without calling the API.
func (view *Reconciliation) CancelAssign() error {
	view.mu.Lock()
	defer view.mu.Unlock()
	if view.submitting {
		return fleet.ErrActionPending
	}
	view.assigning = ""
	view.selectedDriver = ""
	return nil
}

// ConfirmAssign assigns the payment in assign mode to the selected driver
// and reloads. On failure assign mode is kept for a retry.
func (view *Reconciliation) ConfirmAssign(ctx context.Context) error {
	view.mu.Lock()
	if view.submitting {
		view.mu.Unlock()
		return fleet.ErrActionPending
	}
	if view.assigning == "" || view.selectedDriver == "" {
		view.mu.Unlock()
		return fmt.Errorf("%w: select a driver before confirming", fleet.ErrValidation)
	}
	paymentID := view.assigning
	driverID := view.selectedDriver
	view.submitting = true
	view.mu.Unlock()

	defer func() {
		view.mu.Lock()
		view.submitting = false
		view.mu.Unlock()
	}()

	err := view.api.AssignPayment(ctx, paymentID, driverID, true)
	view.actions.LogAction(ctx, fleet.NewActionLog(fleet.ActionAssignPayment, paymentID, driverID, "", err))
	if err != nil {
		return err
	}

	view.mu.Lock()
	if view.assigning == paymentID {
		view.assigning = ""
		view.selectedDriver = ""
	}
	view.mu.Unlock()

	if err := view.Load(ctx); err != nil {
		view.logger.Warn("reload after assignment failed", zap.String("payment_id", paymentID), zap.Error(err))
	}
	return nil
}

// Close drops any response still in flight.
func (view *Reconciliation) Close() {
	view.mu.Lock()
	defer view.mu.Unlock()
	view.generation.close()
	view.loading = false
}

// Payments returns the loaded unrecognized payments.
func (view *Reconciliation) Payments() []fleet.Payment {
	view.mu.Lock()
	defer view.mu.Unlock()
	return slices.Clone(view.payments)
}

// Drivers returns the loaded roster.
func (view *Reconciliation) Drivers() []fleet.Driver {
	view.mu.Lock()
	defer view.mu.Unlock()
	return slices.Clone(view.drivers)
}

// Stats returns the loaded stats, or false before the first successful load.
func (view *Reconciliation) Stats() (fleet.Stats, bool) {
	view.mu.Lock()
	defer view.mu.Unlock()
	if view.stats == nil {
		return fleet.Stats{}, false
	}
	return *view.stats, true
}

// CanConfirm reports whether ConfirmAssign would call the API.
func (view *Reconciliation) CanConfirm() bool {
	view.mu.Lock()
	defer view.mu.Unlock()
	return view.canConfirmLocked()
}

// Snapshot returns the full rendered state.
func (view *Reconciliation) Snapshot() ReconciliationState {
	view.mu.Lock()
	defer view.mu.Unlock()
	state := ReconciliationState{
		Loading:            view.loading,
		Payments:           make([]PaymentRow, 0, len(view.payments)),
		Drivers:            make([]DriverOption, 0, len(view.drivers)),
		AssigningPaymentID: view.assigning,
		SelectedDriverID:   view.selectedDriver,
		Submitting:         view.submitting,
		CanConfirm:         view.canConfirmLocked(),
		Empty:              len(view.payments) == 0,
	}
	if view.stats != nil {
		state.Stats = &StatsCard{
			TotalPayments:   view.stats.TotalPayments,
			TotalAmount:     fleet.FormatMoney(view.stats.TotalAmount),
			Matched:         view.stats.MatchedPayments,
			MatchedAmount:   fleet.FormatMoney(view.stats.MatchedAmount),
			Unmatched:       view.stats.UnmatchedPayments,
			UnmatchedAmount: fleet.FormatMoney(view.stats.UnmatchedAmount()),
		}
	}
	for _, payment := range view.payments {
		memo := memoPlaceholder
		if payment.Memo != nil && *payment.Memo != "" {
			memo = *payment.Memo
		}
		state.Payments = append(state.Payments, PaymentRow{
			ID:        payment.ID,
			Source:    payment.Source,
			Sender:    payment.SenderName,
			Memo:      memo,
			Received:  payment.ReceivedAt.Format(receivedLayout),
			Amount:    fleet.FormatMoney(payment.Amount),
			Assigning: payment.ID == view.assigning,
		})
	}
	for _, driver := range view.drivers {
		state.Drivers = append(state.Drivers, DriverOption{ID: driver.ID, Name: driver.Name()})
	}
	return state
}

func (view *Reconciliation) canConfirmLocked() bool {
	return view.assigning != "" && view.selectedDriver != "" && !view.submitting
}

func (view *Reconciliation) paymentIndexLocked(paymentID string) int {
	return slices.IndexFunc(view.payments, func(payment fleet.Payment) bool { return payment.ID == paymentID })
}
