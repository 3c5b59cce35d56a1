package driven

import (
	"context"
	"errors"
)

// ErrNotifierFailure is wrapped by Notifier errors when a message could not be
// confirmed as delivered.
var ErrNotifierFailure = errors.New("notification not delivered")

// Notifier delivers a human-readable message to an operator channel.
// A nil error means the channel confirmed delivery.
type Notifier interface {
	Send(ctx context.Context, message string) error
}
