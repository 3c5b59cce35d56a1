package driven

import (
	"context"

	"github.com/ericfisherdev/tokenkeeper/internal/domain/model"
)

// AlertStateStore persists the latest AlertDayState per trigger. It is shared
// by every process using the same backend, so neither a restart nor a second
// process repeats a delivered alert.
type AlertStateStore interface {
	// Get returns the most recent state for trigger.
	// Returns (nil, nil) if none has been saved.
	Get(ctx context.Context, trigger model.AlertTrigger) (*model.AlertDayState, error)

	// Save replaces the stored state for state.Trigger.
	Save(ctx context.Context, state model.AlertDayState) error

	// Claim atomically marks state.Trigger as sent for state.Date unless the
	// stored state for that date is already sent. It reports whether this
	// caller made the claim; only the claimant may deliver the alert.
	Claim(ctx context.Context, state model.AlertDayState) (bool, error)

	// Release clears a claim for date whose delivery failed, so the next
	// check can retry.
	Release(ctx context.Context, trigger model.AlertTrigger, date string) error
}
