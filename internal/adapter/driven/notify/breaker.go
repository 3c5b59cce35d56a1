package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/ericfisherdev/tokenkeeper/internal/domain/port/driven"
)

// Breaker defaults.
const (
	defaultBreakerFailures = 3
	defaultBreakerTimeout  = 5 * time.Minute
)

// Compile-time interface satisfaction check.
var _ driven.Notifier = (*Breaker)(nil)

// Breaker wraps a channel in a circuit breaker. After consecutive failures it
// rejects sends without contacting the channel until the timeout elapses,
// then lets one probe through.
type Breaker struct {
	name string
	next driven.Notifier
	cb   *gobreaker.CircuitBreaker
}

// NewBreaker wraps next. failures is the number of consecutive failures that
// opens the circuit and timeout how long it stays open. Non-positive values
// fall back to the defaults.
func NewBreaker(name string, next driven.Notifier, failures uint32, timeout time.Duration) *Breaker {
	if failures == 0 {
		failures = defaultBreakerFailures
	}
	if timeout <= 0 {
		timeout = defaultBreakerTimeout
	}

	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("notifier circuit state changed", "channel", name, "from", from.String(), "to", to.String())
		},
	}

	return &Breaker{name: name, next: next, cb: gobreaker.NewCircuitBreaker(st)}
}

// Send forwards message unless the circuit is open.
func (b *Breaker) Send(ctx context.Context, message string) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.Send(ctx, message)
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", driven.ErrNotifierFailure, b.name, err)
	}
	return nil
}

// State returns the circuit state name.
func (b *Breaker) State() string {
	return b.cb.State().String()
}
