package devapi

import (
	"context"

	"github.com/MarkoPoloResearchLab/gonzofleet/pkg/fleet"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Messenger delivers an SMS through a provider.
type Messenger interface {
	Send(ctx context.Context, phone string, message string) (fleet.SendResult, error)
}

// LogMessenger accepts every message and writes it to the log instead of a
// carrier.
type LogMessenger struct {
	logger *zap.Logger
}

// NewLogMessenger returns a messenger that logs to logger.
func NewLogMessenger(logger *zap.Logger) *LogMessenger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogMessenger{logger: logger}
}

func (messenger *LogMessenger) Send(_ context.Context, phone string, message string) (fleet.SendResult, error) {
	messageID := uuid.NewString()
	messenger.logger.Info("sms accepted", zap.String("phone", phone), zap.String("message_id", messageID), zap.Int("length", len(message)))
	return fleet.SendResult{Success: true, MessageID: messageID}, nil
}
