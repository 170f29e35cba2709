package backoffice

import (
	"context"
	"slices"
	"sync"

	"github.com/MarkoPoloResearchLab/gonzofleet/internal/fleetapi"
	"github.com/MarkoPoloResearchLab/gonzofleet/pkg/fleet"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Tones classify money for rendering.
const (
	TonePositive = "positive"
	ToneNegative = "negative"

	billingLabelActive  = "Active"
	billingLabelPaused  = "Paused"
	billingActionPause  = "Pause"
	billingActionResume = "Resume"
)

// DriverCard is the rendered driver header.
type DriverCard struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	Since         string `json:"since"`
	Balance       string `json:"balance"`
	BalanceTone   string `json:"balance_tone"`
	BillingRate   string `json:"billing_rate"`
	BillingActive bool   `json:"billing_active"`
	BillingStatus string `json:"billing_status"`
	BillingAction string `json:"billing_action"`
}

// LedgerRow is one rendered ledger entry.
type LedgerRow struct {
	ID          string          `json:"id"`
	Date        string          `json:"date"`
	Description string          `json:"description"`
	Type        fleet.EntryType `json:"type"`
	Amount      string          `json:"amount"`
	Tone        string          `json:"tone"`
}

// AliasRow is one rendered payment alias.
type AliasRow struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// DriverDetailState is a point-in-time copy of the driver view. Driver is nil
// while nothing has loaded or after a failed load.
type DriverDetailState struct {
	DriverID  string      `json:"driver_id"`
	Loading   bool        `json:"loading"`
	Found     bool        `json:"found"`
	Driver    *DriverCard `json:"driver,omitempty"`
	Ledger    []LedgerRow `json:"ledger"`
	Aliases   []AliasRow  `json:"aliases"`
	Updating  bool        `json:"updating"`
	CanToggle bool        `json:"can_toggle"`
}

// DriverDetail shows one driver with their ledger and aliases.
type DriverDetail struct {
	api     fleetapi.API
	logger  *zap.Logger
	actions fleet.ActionLogger

	mu         sync.Mutex
	driverID   string
	driver     *fleet.Driver
	ledger     []fleet.LedgerEntry
	aliases    []fleet.PaymentAlias
	loading    bool
	updating   bool
	generation generation
}

// NewDriverDetail returns an empty driver view.
func NewDriverDetail(api fleetapi.API, options ...Option) (*DriverDetail, error) {
	cfg, err := newViewConfig(api, options)
	if err != nil {
		return nil, err
	}
	return &DriverDetail{api: api, logger: cfg.logger, actions: cfg.actions}, nil
}

// Load fetches the driver, ledger and aliases together. The snapshot is
// replaced only when all three succeed; otherwise the view is left without a
// driver.
func (detail *DriverDetail) Load(ctx context.Context, rawDriverID string) error {
	driverID, err := fleet.NewIdentifier(rawDriverID)
	if err != nil {
		return err
	}

	detail.mu.Lock()
	token, err := detail.generation.next()
	if err != nil {
		detail.mu.Unlock()
		return err
	}
	if driverID != detail.driverID {
		detail.clearLocked()
		detail.driverID = driverID
	}
	detail.loading = true
	detail.mu.Unlock()

	var (
		driver  fleet.Driver
		ledger  []fleet.LedgerEntry
		aliases []fleet.PaymentAlias
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var fetchErr error
		driver, fetchErr = detail.api.GetDriver(groupCtx, driverID)
		return fetchErr
	})
	group.Go(func() error {
		var fetchErr error
		ledger, fetchErr = detail.api.GetDriverLedger(groupCtx, driverID)
		return fetchErr
	})
	group.Go(func() error {
		var fetchErr error
		aliases, fetchErr = detail.api.GetDriverAliases(groupCtx, driverID)
		return fetchErr
	})
	loadErr := group.Wait()

	detail.mu.Lock()
	defer detail.mu.Unlock()
	if !detail.generation.accepts(token) {
		detail.logger.Debug("discarded stale driver response", zap.String("driver_id", driverID))
		return ErrStaleResponse
	}
	detail.loading = false
	if loadErr != nil {
		detail.clearLocked()
		detail.logger.Warn("driver load failed", zap.String("driver_id", driverID), zap.Error(loadErr))
		return loadErr
	}
	if err := fleet.CheckBalance(driver, ledger); err != nil {
		detail.logger.Debug("driver balance differs from loaded ledger page", zap.String("driver_id", driverID), zap.Error(err))
	}
	detail.driver = &driver
	detail.ledger = ledger
	detail.aliases = aliases
	return nil
}

// ToggleBilling flips billing_active on the server and reloads. It is refused
// while another toggle is in flight.
func (detail *DriverDetail) ToggleBilling(ctx context.Context) error {
	detail.mu.Lock()
	if detail.updating {
		detail.mu.Unlock()
		return fleet.ErrActionPending
	}
	if detail.driver == nil {
		detail.mu.Unlock()
		return fleet.ErrNotFound
	}
	driverID := detail.driver.ID
	target := !detail.driver.BillingActive
	detail.updating = true
	detail.mu.Unlock()

	defer func() {
		detail.mu.Lock()
		detail.updating = false
		detail.mu.Unlock()
	}()

	err := detail.api.UpdateDriverBilling(ctx, driverID, target)
	detail.actions.LogAction(ctx, fleet.NewActionLog(fleet.ActionToggleBilling, "driver", driverID, billingStatusLabel(target), err))
	if err != nil {
		return err
	}
	detail.mu.Lock()
	current := detail.driverID == driverID && !detail.generation.closed
	detail.mu.Unlock()
	if !current {
		detail.logger.Debug("view moved on during billing toggle, skipping reload", zap.String("driver_id", driverID))
		return nil
	}
	// updating stays set through the reload.
	if err := detail.Load(ctx, driverID); err != nil {
		detail.logger.Warn("reload after billing toggle failed", zap.String("driver_id", driverID), zap.Error(err))
	}
	return nil
}

// Close drops any response still in flight.
func (detail *DriverDetail) Close() {
	detail.mu.Lock()
	defer detail.mu.Unlock()
	detail.generation.close()
	detail.loading = false
}

// Driver returns a copy of the loaded driver or nil.
func (detail *DriverDetail) Driver() *fleet.Driver {
	detail.mu.Lock()
	defer detail.mu.Unlock()
	if detail.driver == nil {
		return nil
	}
	driver := *detail.driver
	return &driver
}

// Ledger returns the loaded ledger in fetch order.
func (detail *DriverDetail) Ledger() []fleet.LedgerEntry {
	detail.mu.Lock()
	defer detail.mu.Unlock()
	return slices.Clone(detail.ledger)
}

// Aliases returns the loaded aliases.
func (detail *DriverDetail) Aliases() []fleet.PaymentAlias {
	detail.mu.Lock()
	defer detail.mu.Unlock()
	return slices.Clone(detail.aliases)
}

// Updating reports whether a billing toggle is in flight.
func (detail *DriverDetail) Updating() bool {
	detail.mu.Lock()
	defer detail.mu.Unlock()
	return detail.updating
}

// Snapshot returns the full rendered state.
func (detail *DriverDetail) Snapshot() DriverDetailState {
	detail.mu.Lock()
	defer detail.mu.Unlock()
	state := DriverDetailState{
		DriverID: detail.driverID,
		Loading:  detail.loading,
		Found:    detail.driver != nil,
		Ledger:   ledgerRows(detail.ledger),
		Aliases:  aliasRows(detail.aliases),
		Updating: detail.updating,
	}
	if detail.driver != nil {
		card := driverCard(*detail.driver)
		state.Driver = &card
		state.CanToggle = !detail.updating
	}
	return state
}

func (detail *DriverDetail) clearLocked() {
	detail.driver = nil
	detail.ledger = nil
	detail.aliases = nil
}

func driverCard(driver fleet.Driver) DriverCard {
	return DriverCard{
		ID:            driver.ID,
		Name:          driver.Name(),
		Email:         driver.Email,
		Phone:         driver.Phone,
		Since:         driver.CreatedAt.Format(displayDateLayout),
		Balance:       fleet.FormatMoney(driver.Balance),
		BalanceTone:   toneOf(!driver.Balance.IsNegative()),
		BillingRate:   fleet.FormatMoney(driver.BillingRate) + " / " + driver.BillingType.String(),
		BillingActive: driver.BillingActive,
		BillingStatus: billingStatusLabel(driver.BillingActive),
		BillingAction: billingActionLabel(driver.BillingActive),
	}
}

func ledgerRows(entries []fleet.LedgerEntry) []LedgerRow {
	rows := make([]LedgerRow, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, LedgerRow{
			ID:          entry.ID,
			Date:        entry.CreatedAt.Format(displayDateLayout),
			Description: entry.Description,
			Type:        entry.Type,
			Amount:      fleet.FormatSignedMoney(entry),
			Tone:        toneOf(entry.Type == fleet.EntryCredit),
		})
	}
	return rows
}

func aliasRows(aliases []fleet.PaymentAlias) []AliasRow {
	rows := make([]AliasRow, 0, len(aliases))
	for _, alias := range aliases {
		rows = append(rows, AliasRow{Type: alias.AliasType, Value: alias.AliasValue})
	}
	return rows
}

func toneOf(positive bool) string {
	if positive {
		return TonePositive
	}
	return ToneNegative
}

func billingStatusLabel(active bool) string {
	if active {
		return billingLabelActive
	}
	return billingLabelPaused
}

func billingActionLabel(active bool) string {
	if active {
		return billingActionPause
	}
	return billingActionResume
}
