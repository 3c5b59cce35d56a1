package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/tokenkeeper/internal/domain/model"
	"github.com/ericfisherdev/tokenkeeper/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.AlertStateStore = (*AlertStateRepo)(nil)

// AlertStateRepo is the SQLite implementation of the AlertStateStore port.
// It keeps one row per trigger.
type AlertStateRepo struct {
	db *DB
}

// NewAlertStateRepo creates a new AlertStateRepo.
func NewAlertStateRepo(db *DB) *AlertStateRepo {
	return &AlertStateRepo{db: db}
}

// Get returns the saved state for trigger, or (nil, nil) if there is none.
func (r *AlertStateRepo) Get(ctx context.Context, trigger model.AlertTrigger) (*model.AlertDayState, error) {
	const query = `SELECT day, sent, updated_at FROM alert_day_states WHERE trigger_name = ?`

	var (
		state     = model.AlertDayState{Trigger: trigger}
		updatedAt string
	)
	err := r.db.Reader.QueryRowContext(ctx, query, string(trigger)).Scan(&state.Date, &state.Sent, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get alert state %q: %w", trigger, err)
	}

	state.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at for alert state %q: %w", trigger, err)
	}
	return &state, nil
}

// Save replaces the row for state.Trigger.
func (r *AlertStateRepo) Save(ctx context.Context, state model.AlertDayState) error {
	const query = `
		INSERT INTO alert_day_states (trigger_name, day, sent, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(trigger_name) DO UPDATE SET
			day = excluded.day,
			sent = excluded.sent,
			updated_at = excluded.updated_at`

	updatedAt := state.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	_, err := r.db.Writer.ExecContext(ctx, query,
		string(state.Trigger), state.Date, state.Sent, updatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save alert state %q: %w", state.Trigger, err)
	}
	return nil
}

// Claim upserts a sent row for state.Date. An existing row is only taken over
// when it belongs to another day or is not yet sent; otherwise no row changes
// and the claim is refused.
func (r *AlertStateRepo) Claim(ctx context.Context, state model.AlertDayState) (bool, error) {
	const query = `
		INSERT INTO alert_day_states (trigger_name, day, sent, updated_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(trigger_name) DO UPDATE SET
			day = excluded.day,
			sent = 1,
			updated_at = excluded.updated_at
		WHERE alert_day_states.day <> excluded.day OR alert_day_states.sent = 0`

	updatedAt := state.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	res, err := r.db.Writer.ExecContext(ctx, query,
		string(state.Trigger), state.Date, updatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return false, fmt.Errorf("claim alert state %q: %w", state.Trigger, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim alert state %q: rows affected: %w", state.Trigger, err)
	}
	return n == 1, nil
}

// Release marks trigger as not sent for date. Rows for other dates are left
// alone.
func (r *AlertStateRepo) Release(ctx context.Context, trigger model.AlertTrigger, date string) error {
	const query = `UPDATE alert_day_states SET sent = 0, updated_at = ? WHERE trigger_name = ? AND day = ?`

	_, err := r.db.Writer.ExecContext(ctx, query,
		time.Now().UTC().Format(time.RFC3339Nano), string(trigger), date)
	if err != nil {
		return fmt.Errorf("release alert state %q: %w", trigger, err)
	}
	return nil
}

// parseTime reads timestamps written by this package or by SQLite's
// CURRENT_TIMESTAMP.
func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05Z"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
