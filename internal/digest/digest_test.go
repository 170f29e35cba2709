package digest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/gonzofleet/pkg/fleet"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type queueAPI struct {
	payments []fleet.Payment
	stats    fleet.Stats
	err      error
}

func (api *queueAPI) GetApplications(context.Context, fleet.ApplicationStatus) ([]fleet.Application, error) {
	return nil, nil
}

func (api *queueAPI) GetApplication(context.Context, string) (fleet.Application, error) {
	return fleet.Application{}, fleet.ErrNotFound
}

func (api *queueAPI) GetDriver(context.Context, string) (fleet.Driver, error) {
	return fleet.Driver{}, fleet.ErrNotFound
}

func (api *queueAPI) GetDrivers(context.Context) ([]fleet.Driver, error) {
	return []fleet.Driver{}, nil
}

func (api *queueAPI) GetDriverLedger(context.Context, string) ([]fleet.LedgerEntry, error) {
	return nil, nil
}

func (api *queueAPI) GetDriverAliases(context.Context, string) ([]fleet.PaymentAlias, error) {
	return nil, nil
}

func (api *queueAPI) UpdateDriverBilling(context.Context, string, bool) error {
	return nil
}

func (api *queueAPI) GetUnrecognizedPayments(context.Context) ([]fleet.Payment, error) {
	return api.payments, api.err
}

func (api *queueAPI) GetPaymentStats(context.Context) (fleet.Stats, error) {
	return api.stats, nil
}

func (api *queueAPI) AssignPayment(context.Context, string, string, bool) error {
	return nil
}

func (api *queueAPI) SendMessage(context.Context, fleet.Recipient, string) (fleet.SendResult, error) {
	return fleet.SendResult{}, nil
}

func seededQueue() *queueAPI {
	base := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	return &queueAPI{
		payments: []fleet.Payment{
			{ID: "p2", Source: fleet.SourceCashApp, Amount: decimal.RequireFromString("55"), SenderName: "$bokafor", ReceivedAt: base.Add(-4 * time.Hour)},
			{ID: "p1", Source: fleet.SourceZelle, Amount: decimal.RequireFromString("350"), SenderName: "ANA M DIAZ", ReceivedAt: base.Add(-6 * time.Hour)},
			{ID: "p3", Source: fleet.SourceZelle, Amount: decimal.RequireFromString("120.5"), SenderName: "Unknown", ReceivedAt: base.Add(-2 * time.Hour)},
		},
		stats: fleet.Stats{
			TotalPayments:     4,
			MatchedPayments:   1,
			UnmatchedPayments: 3,
			TotalAmount:       decimal.RequireFromString("625.5"),
			MatchedAmount:     decimal.RequireFromString("100"),
		},
	}
}

func TestRunOnceSummarizesQueue(t *testing.T) {
	runner, err := NewRunner(seededQueue(), Config{}, zap.NewNop())
	if err != nil {
		t.Fatalf("runner init failed: %v", err)
	}
	summary, err := runner.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if summary.Unmatched != 3 || summary.Listed != 3 {
		t.Fatalf("unexpected counts: %+v", summary)
	}
	if !summary.UnmatchedAmount.Equal(decimal.RequireFromString("525.5")) {
		t.Fatalf("unexpected unmatched amount %s", summary.UnmatchedAmount)
	}
	if summary.OldestPaymentID != "p1" {
		t.Fatalf("expected p1 as oldest, got %s", summary.OldestPaymentID)
	}
	if summary.BySource[fleet.SourceZelle] != 2 || summary.BySource[fleet.SourceCashApp] != 1 {
		t.Fatalf("unexpected source breakdown %v", summary.BySource)
	}
}

func TestRunOnceEmptyQueue(t *testing.T) {
	runner, _ := NewRunner(&queueAPI{}, Config{}, zap.NewNop())
	summary, err := runner.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if summary.Listed != 0 || summary.OldestPaymentID != "" {
		t.Fatalf("expected empty summary, got %+v", summary)
	}
}

func TestRunOnceReportsLoadFailure(t *testing.T) {
	api := seededQueue()
	api.err = fleet.ErrNetwork
	runner, _ := NewRunner(api, Config{}, zap.NewNop())
	if _, err := runner.RunOnce(context.Background()); !errors.Is(err, fleet.ErrNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	testCases := []struct {
		name     string
		schedule string
		wantErr  bool
	}{
		{name: "default", schedule: ""},
		{name: "descriptor", schedule: "@hourly"},
		{name: "five field", schedule: "*/5 * * * *"},
		{name: "garbage", schedule: "every so often", wantErr: true},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			cfg := Config{Schedule: testCase.schedule}
			err := cfg.Validate()
			if (err != nil) != testCase.wantErr {
				t.Fatalf("unexpected validation result: %v", err)
			}
			if err == nil && cfg.Schedule == "" {
				t.Fatalf("expected default schedule")
			}
		})
	}
	if _, err := NewRunner(nil, Config{}, nil); err == nil {
		t.Fatalf("expected nil api to be rejected")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	runner, _ := NewRunner(seededQueue(), Config{Schedule: "@every 1h"}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("scheduler did not stop")
	}
}
