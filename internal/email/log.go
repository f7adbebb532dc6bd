package email

import (
	"context"
	"log/slog"

	"github.com/utafrali/authgate/pkg/logger"
)

// LogSender writes messages to the log instead of delivering them. Bodies
// are never logged since they carry codes and reset links.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a sender for local development.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Name() string { return "log" }

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.logger.InfoContext(ctx, "email sent",
		logger.Email(msg.To),
		slog.String("subject", msg.Subject),
		slog.Int("text_bytes", len(msg.Text)),
	)
	return nil
}
