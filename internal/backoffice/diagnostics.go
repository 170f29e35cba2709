package backoffice

import (
	"context"

	"github.com/MarkoPoloResearchLab/gonzofleet/pkg/fleet"
	"go.uber.org/zap"
)

// ZapActionLogger writes action logs as structured zap entries.
type ZapActionLogger struct {
	logger *zap.Logger
}

// NewZapActionLogger wraps logger; a nil logger discards entries.
func NewZapActionLogger(logger *zap.Logger) *ZapActionLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapActionLogger{logger: logger}
}

func (actionLogger *ZapActionLogger) LogAction(_ context.Context, entry fleet.ActionLog) {
	fields := []zap.Field{
		zap.String("action", entry.Action),
		zap.String("subject", entry.Subject),
		zap.String("status", entry.Status),
	}
	if entry.DriverID != "" {
		fields = append(fields, zap.String("driver_id", entry.DriverID))
	}
	if entry.Detail != "" {
		fields = append(fields, zap.String("detail", entry.Detail))
	}
	if entry.Error != nil {
		actionLogger.logger.Warn("back-office action failed", append(fields, zap.Error(entry.Error))...)
		return
	}
	actionLogger.logger.Info("back-office action", fields...)
}
