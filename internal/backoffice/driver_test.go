package backoffice

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/gonzofleet/pkg/fleet"
	"github.com/shopspring/decimal"
)

func seededDriverAPI() *stubAPI {
	api := newStubAPI()
	created := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	api.drivers["d1"] = fleet.Driver{
		ID: "d1", FirstName: "Ben", LastName: "Okafor", Phone: "+15550002",
		BillingType: fleet.BillingWeekly, BillingRate: decimal.RequireFromString("350"),
		BillingActive: true, Balance: decimal.RequireFromString("60"), CreatedAt: created,
	}
	api.ledgers["d1"] = []fleet.LedgerEntry{
		{ID: "l1", Type: fleet.EntryCredit, Amount: decimal.RequireFromString("100"), Description: "Zelle payment", CreatedAt: created},
		{ID: "l2", Type: fleet.EntryDebit, Amount: decimal.RequireFromString("40"), Description: "Weekly rent", CreatedAt: created},
	}
	api.aliases["d1"] = []fleet.PaymentAlias{{ID: "al1", AliasType: "zelle", AliasValue: "ben@example.com"}}
	return api
}

func TestDriverDetailRendersLedger(test *testing.T) {
	test.Parallel()
	detail, _ := NewDriverDetail(seededDriverAPI())
	if err := detail.Load(context.Background(), "d1"); err != nil {
		test.Fatalf("load failed: %v", err)
	}
	state := detail.Snapshot()
	if !state.Found || state.Driver == nil || state.Loading {
		test.Fatalf("expected loaded driver, got %+v", state)
	}
	if state.Driver.Balance != "$60.00" || state.Driver.BalanceTone != TonePositive {
		test.Fatalf("unexpected balance: %+v", state.Driver)
	}
	if state.Driver.BillingRate != "$350.00 / weekly" || state.Driver.BillingStatus != "Active" || state.Driver.BillingAction != "Pause" {
		test.Fatalf("unexpected billing labels: %+v", state.Driver)
	}
	if len(state.Ledger) != 2 {
		test.Fatalf("expected two ledger rows, got %d", len(state.Ledger))
	}
	if state.Ledger[0].Amount != "+$100.00" || state.Ledger[0].Tone != TonePositive {
		test.Fatalf("unexpected credit row: %+v", state.Ledger[0])
	}
	if state.Ledger[1].Amount != "-$40.00" || state.Ledger[1].Tone != ToneNegative {
		test.Fatalf("unexpected debit row: %+v", state.Ledger[1])
	}
	if len(state.Aliases) != 1 || state.Aliases[0].Value != "ben@example.com" {
		test.Fatalf("unexpected aliases: %+v", state.Aliases)
	}
	if !state.CanToggle {
		test.Fatalf("expected toggle enabled")
	}
}

func TestDriverDetailNotFoundIsTerminal(test *testing.T) {
	test.Parallel()
	api := seededDriverAPI()
	detail, _ := NewDriverDetail(api)
	if err := detail.Load(context.Background(), "d1"); err != nil {
		test.Fatalf("load failed: %v", err)
	}
	if err := detail.Load(context.Background(), "missing"); !errors.Is(err, fleet.ErrNotFound) {
		test.Fatalf("expected not found, got %v", err)
	}
	state := detail.Snapshot()
	if state.Found || state.Driver != nil || len(state.Ledger) != 0 || state.CanToggle {
		test.Fatalf("expected empty not-found state, got %+v", state)
	}
	if err := detail.ToggleBilling(context.Background()); !errors.Is(err, fleet.ErrNotFound) {
		test.Fatalf("expected toggle to be refused without a driver, got %v", err)
	}
	if err := detail.Load(context.Background(), "  "); !errors.Is(err, fleet.ErrInvalidIdentifier) {
		test.Fatalf("expected identifier error, got %v", err)
	}
}

func TestDriverDetailToggleBillingReloads(test *testing.T) {
	test.Parallel()
	api := seededDriverAPI()
	actions := &recordingActionLogger{}
	detail, _ := NewDriverDetail(api, WithActionLogger(actions))
	if err := detail.Load(context.Background(), "d1"); err != nil {
		test.Fatalf("load failed: %v", err)
	}
	if err := detail.ToggleBilling(context.Background()); err != nil {
		test.Fatalf("toggle failed: %v", err)
	}
	if calls := api.recordedBillingCalls(); len(calls) != 1 || calls[0] {
		test.Fatalf("expected one call with billing_active=false, got %v", calls)
	}
	state := detail.Snapshot()
	if state.Driver.BillingStatus != "Paused" || state.Driver.BillingAction != "Resume" || state.Updating {
		test.Fatalf("expected reloaded paused driver, got %+v", state)
	}
	entries := actions.recorded()
	if len(entries) != 1 || entries[0].Action != fleet.ActionToggleBilling || entries[0].Status != fleet.ActionStatusOK {
		test.Fatalf("unexpected action log: %+v", entries)
	}
}

func TestDriverDetailToggleFailureKeepsServerState(test *testing.T) {
	test.Parallel()
	api := seededDriverAPI()
	api.billingErr = fleet.ErrNetwork
	detail, _ := NewDriverDetail(api)
	if err := detail.Load(context.Background(), "d1"); err != nil {
		test.Fatalf("load failed: %v", err)
	}
	if err := detail.ToggleBilling(context.Background()); !errors.Is(err, fleet.ErrNetwork) {
		test.Fatalf("expected network error, got %v", err)
	}
	state := detail.Snapshot()
	if state.Driver.BillingStatus != "Active" || state.Updating || !state.CanToggle {
		test.Fatalf("expected unchanged driver with toggle re-enabled, got %+v", state)
	}
}

func TestDriverDetailTogglePendingGuard(test *testing.T) {
	test.Parallel()
	api := seededDriverAPI()
	detail, _ := NewDriverDetail(api)
	if err := detail.Load(context.Background(), "d1"); err != nil {
		test.Fatalf("load failed: %v", err)
	}
	release := make(chan struct{})
	started := make(chan struct{})
	var calls int
	api.mu.Lock()
	api.driverHook = func(_ context.Context, driverID string) (fleet.Driver, error) {
		api.mu.Lock()
		calls++
		first := calls == 1
		driver := api.drivers[driverID]
		api.mu.Unlock()
		if first {
			close(started)
			<-release
		}
		return driver, nil
	}
	api.mu.Unlock()

	result := make(chan error, 1)
	go func() { result <- detail.ToggleBilling(context.Background()) }()
	<-started
	if !detail.Updating() || detail.Snapshot().CanToggle {
		test.Fatalf("expected toggle disabled while in flight")
	}
	if err := detail.ToggleBilling(context.Background()); !errors.Is(err, fleet.ErrActionPending) {
		test.Fatalf("expected pending error, got %v", err)
	}
	close(release)
	if err := <-result; err != nil {
		test.Fatalf("toggle failed: %v", err)
	}
	if calls := api.recordedBillingCalls(); len(calls) != 1 {
		test.Fatalf("expected exactly one billing call, got %v", calls)
	}
}

func TestDriverDetailToggleSkipsReloadAfterNavigation(test *testing.T) {
	test.Parallel()
	api := seededDriverAPI()
	api.drivers["d2"] = fleet.Driver{ID: "d2", FirstName: "Cleo", LastName: "Ruiz", BillingActive: true}
	detail, _ := NewDriverDetail(api)
	if err := detail.Load(context.Background(), "d1"); err != nil {
		test.Fatalf("load failed: %v", err)
	}
	release := make(chan struct{})
	started := make(chan struct{})
	api.mu.Lock()
	api.billingHook = func(context.Context, string) {
		close(started)
		<-release
	}
	api.mu.Unlock()

	result := make(chan error, 1)
	go func() { result <- detail.ToggleBilling(context.Background()) }()
	<-started
	if err := detail.Load(context.Background(), "d2"); err != nil {
		test.Fatalf("load of second driver failed: %v", err)
	}
	close(release)
	if err := <-result; err != nil {
		test.Fatalf("toggle failed: %v", err)
	}
	state := detail.Snapshot()
	if state.DriverID != "d2" || state.Driver == nil || state.Driver.ID != "d2" {
		test.Fatalf("expected view to stay on d2, got %+v", state)
	}
	if state.Updating {
		test.Fatalf("expected updating cleared after toggle returned")
	}
}

func TestDriverDetailCloseDropsInFlightResponse(test *testing.T) {
	test.Parallel()
	api := seededDriverAPI()
	release := make(chan struct{})
	started := make(chan struct{})
	api.driverHook = func(_ context.Context, driverID string) (fleet.Driver, error) {
		close(started)
		<-release
		api.mu.Lock()
		defer api.mu.Unlock()
		return api.drivers[driverID], nil
	}
	detail, _ := NewDriverDetail(api)
	result := make(chan error, 1)
	go func() { result <- detail.Load(context.Background(), "d1") }()
	<-started
	detail.Close()
	close(release)
	if err := <-result; !errors.Is(err, ErrStaleResponse) {
		test.Fatalf("expected stale response, got %v", err)
	}
	state := detail.Snapshot()
	if state.Found || state.Driver != nil || len(state.Ledger) != 0 || state.Loading {
		test.Fatalf("expected closed view to stay empty, got %+v", state)
	}
	if err := detail.Load(context.Background(), "d1"); !errors.Is(err, ErrStaleResponse) {
		test.Fatalf("expected closed view to refuse loads, got %v", err)
	}
}
