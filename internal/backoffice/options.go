// Package backoffice holds the view models of the GonzoFleet admin console:
// the application review list, the driver ledger view, payment reconciliation
// and applicant outreach. Each view owns a mutex-guarded snapshot that is only
// replaced by data fetched through fleetapi.API; no view applies optimistic
// updates.
package backoffice

import (
	"errors"
	"fmt"

	"github.com/MarkoPoloResearchLab/gonzofleet/internal/fleetapi"
	"github.com/MarkoPoloResearchLab/gonzofleet/pkg/fleet"
	"go.uber.org/zap"
)

var (
	// ErrStaleResponse reports a response that arrived after the view was
	// closed or after a newer load superseded it.
	ErrStaleResponse = errors.New("stale response discarded")
	// ErrInvalidViewConfig reports a view constructed without its API.
	ErrInvalidViewConfig = errors.New("invalid view configuration")
)

// Option configures a view model.
type Option func(*viewConfig)

type viewConfig struct {
	logger  *zap.Logger
	actions fleet.ActionLogger
}

// WithLogger routes diagnostics to logger.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *viewConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithActionLogger wires a logger that receives every mutating action.
func WithActionLogger(actions fleet.ActionLogger) Option {
	return func(cfg *viewConfig) {
		cfg.actions = actions
	}
}

func newViewConfig(api fleetapi.API, options []Option) (viewConfig, error) {
	if api == nil {
		return viewConfig{}, fmt.Errorf("%w: api dependency is nil", ErrInvalidViewConfig)
	}
	cfg := viewConfig{logger: zap.NewNop()}
	for _, option := range options {
		if option != nil {
			option(&cfg)
		}
	}
	if cfg.actions == nil {
		cfg.actions = NewZapActionLogger(cfg.logger)
	}
	return cfg, nil
}

// generation tags loads so that responses from superseded or closed loads
// are dropped. It is guarded by the owning view's mutex.
type generation struct {
	current uint64
	closed  bool
}

func (tracker *generation) next() (uint64, error) {
	if tracker.closed {
		return 0, ErrStaleResponse
	}
	tracker.current++
	return tracker.current, nil
}

func (tracker *generation) accepts(token uint64) bool {
	return !tracker.closed && token == tracker.current
}

func (tracker *generation) close() {
	tracker.closed = true
	tracker.current++
}
