// Package digest periodically summarizes unrecognized payments for operators.
package digest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/gonzofleet/internal/backoffice"
	"github.com/MarkoPoloResearchLab/gonzofleet/internal/fleetapi"
	"github.com/MarkoPoloResearchLab/gonzofleet/pkg/fleet"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultSchedule   = "@every 15m"
	defaultRunTimeout = time.Minute
)

// Config controls the digest schedule.
type Config struct {
	Schedule   string
	RunTimeout time.Duration
}

// Validate fills defaults and checks that the schedule parses.
func (cfg *Config) Validate() error {
	if strings.TrimSpace(cfg.Schedule) == "" {
		cfg.Schedule = defaultSchedule
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = defaultRunTimeout
	}
	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		return fmt.Errorf("invalid digest schedule %q: %w", cfg.Schedule, err)
	}
	return nil
}

// Summary is one digest of the reconciliation queue.
type Summary struct {
	Unmatched        int64                       `json:"unmatched"`
	UnmatchedAmount  decimal.Decimal             `json:"unmatched_amount"`
	Listed           int                         `json:"listed"`
	BySource         map[fleet.PaymentSource]int `json:"by_source"`
	OldestPaymentID  string                      `json:"oldest_payment_id,omitempty"`
	OldestReceivedAt time.Time                   `json:"oldest_received_at,omitempty"`
	Stats            fleet.Stats                 `json:"stats"`
}

// Runner loads the reconciliation view on a schedule and logs a Summary.
type Runner struct {
	api    fleetapi.API
	cfg    Config
	logger *zap.Logger
}

// NewRunner validates cfg and returns a Runner.
func NewRunner(api fleetapi.API, cfg Config, logger *zap.Logger) (*Runner, error) {
	if api == nil {
		return nil, errors.New("api dependency is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{api: api, cfg: cfg, logger: logger}, nil
}

// RunOnce loads a fresh reconciliation view and logs its summary.
func (runner *Runner) RunOnce(ctx context.Context) (Summary, error) {
	view, err := backoffice.NewReconciliation(runner.api, backoffice.WithLogger(runner.logger))
	if err != nil {
		return Summary{}, err
	}
	defer view.Close()
	if err := view.Load(ctx); err != nil {
		runner.logger.Error("reconciliation digest failed", zap.Error(err))
		return Summary{}, err
	}
	stats, _ := view.Stats()
	summary := summarize(view.Payments(), stats)

	fields := []zap.Field{
		zap.Int64("unmatched", summary.Unmatched),
		zap.String("unmatched_amount", fleet.FormatMoney(summary.UnmatchedAmount)),
		zap.Int("listed", summary.Listed),
		zap.Int64("total_payments", stats.TotalPayments),
		zap.String("matched_amount", fleet.FormatMoney(stats.MatchedAmount)),
		zap.Any("by_source", summary.BySource),
	}
	if summary.OldestPaymentID != "" {
		fields = append(fields,
			zap.String("oldest_payment_id", summary.OldestPaymentID),
			zap.Time("oldest_received_at", summary.OldestReceivedAt),
		)
	}
	runner.logger.Info("reconciliation digest", fields...)
	return summary, nil
}

// Run schedules RunOnce until ctx is cancelled. A run still in progress when
// the next one is due causes that tick to be skipped.
func (runner *Runner) Run(ctx context.Context) error {
	cronLogger := zapCronLogger{logger: runner.logger}
	scheduler := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	_, err := scheduler.AddFunc(runner.cfg.Schedule, func() {
		runCtx, cancel := context.WithTimeout(ctx, runner.cfg.RunTimeout)
		defer cancel()
		_, _ = runner.RunOnce(runCtx)
	})
	if err != nil {
		return fmt.Errorf("register digest job: %w", err)
	}
	runner.logger.Info("digest scheduler started", zap.String("schedule", runner.cfg.Schedule))
	scheduler.Start()
	<-ctx.Done()
	<-scheduler.Stop().Done()
	runner.logger.Info("digest scheduler stopped")
	return nil
}

func summarize(payments []fleet.Payment, stats fleet.Stats) Summary {
	summary := Summary{
		Unmatched:       stats.UnmatchedPayments,
		UnmatchedAmount: stats.UnmatchedAmount(),
		Listed:          len(payments),
		BySource:        map[fleet.PaymentSource]int{},
		Stats:           stats,
	}
	for _, payment := range payments {
		summary.BySource[payment.Source]++
	}
	if len(payments) == 0 {
		return summary
	}
	oldest := slices.MinFunc(payments, func(left, right fleet.Payment) int {
		return left.ReceivedAt.Compare(right.ReceivedAt)
	})
	summary.OldestPaymentID = oldest.ID
	summary.OldestReceivedAt = oldest.ReceivedAt
	return summary
}

type zapCronLogger struct {
	logger *zap.Logger
}

func (adapter zapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	adapter.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (adapter zapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	adapter.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
