package notify

import (
	"context"
	"log/slog"

	"github.com/ericfisherdev/tokenkeeper/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Notifier = (*Log)(nil)

// Log writes alert messages to a logger. It is the channel of last resort
// when nothing else is configured, and always reports delivery.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a Log writing to logger, or to slog.Default when nil.
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

// Send logs message at error level.
func (l *Log) Send(ctx context.Context, message string) error {
	l.logger.ErrorContext(ctx, "credential alert", "message", message)
	return nil
}
