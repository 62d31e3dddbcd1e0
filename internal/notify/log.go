package notify

import (
	"context"

	"go.uber.org/zap"

	"library/internal/models"
)

// LogSender writes notifications to the log instead of delivering them.
// Used in development and with the mock database.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, to models.Recipient, subject, body string) error {
	s.logger.Info("Notification (log channel)",
		zap.String("to", to.Email),
		zap.String("subject", subject),
		zap.String("body", body),
	)
	return nil
}
