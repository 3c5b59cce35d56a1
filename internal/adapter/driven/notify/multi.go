package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ericfisherdev/tokenkeeper/internal/domain/port/driven"
)

// Named pairs a channel with the name used in logs.
type Named struct {
	Name     string
	Notifier driven.Notifier
}

// Compile-time interface satisfaction check.
var _ driven.Notifier = (*Multi)(nil)

// Multi fans a message out to several channels. The message counts as
// delivered when at least one channel confirms it.
type Multi struct {
	channels []Named
}

// NewMulti constructs a Multi. Nil notifiers are skipped.
func NewMulti(channels ...Named) *Multi {
	m := &Multi{}
	for _, ch := range channels {
		if ch.Notifier != nil {
			m.channels = append(m.channels, ch)
		}
	}
	return m
}

// Len returns the number of channels.
func (m *Multi) Len() int {
	return len(m.channels)
}

// Send tries every channel in order, even after one has delivered.
func (m *Multi) Send(ctx context.Context, message string) error {
	if len(m.channels) == 0 {
		return fmt.Errorf("%w: no channels configured", driven.ErrNotifierFailure)
	}

	var (
		delivered int
		errs      []error
	)
	for _, ch := range m.channels {
		if err := ch.Notifier.Send(ctx, message); err != nil {
			slog.Error("notification channel failed", "channel", ch.Name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name, err))
			continue
		}
		delivered++
	}

	if delivered == 0 {
		return fmt.Errorf("%w: all channels failed: %w", driven.ErrNotifierFailure, errors.Join(errs...))
	}
	if len(errs) > 0 {
		slog.Warn("notification partially delivered", "delivered", delivered, "failed", len(errs))
	}
	return nil
}
