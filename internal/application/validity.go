package application

import (
	"log/slog"
	"time"

	"github.com/ericfisherdev/tokenkeeper/internal/domain/model"
)

// ValidityReason explains the outcome of EvaluateValidity.
type ValidityReason string

const (
	ReasonAbsent      ValidityReason = "absent"
	ReasonMalformed   ValidityReason = "malformed"
	ReasonUnavailable ValidityReason = "store_unavailable"
	ReasonNotExpired  ValidityReason = "not_expired"
	ReasonExpired     ValidityReason = "expired"
	ReasonSameDay     ValidityReason = "stored_today"
	ReasonPreviousDay ValidityReason = "stored_previous_day"
)

// Validity is the result of evaluating a credential set at an instant.
type Validity struct {
	Valid  bool
	Reason ValidityReason
}

// EvaluateValidity decides whether creds are usable at now. An explicit
// expires_at always wins; without one, credentials are assumed to expire at
// exchange-local midnight, so they are valid only on the exchange-local date
// they were stored. Any unparsable timestamp makes the set invalid.
func EvaluateValidity(creds *model.CredentialSet, now time.Time, loc *time.Location) Validity {
	if creds == nil {
		return Validity{Reason: ReasonAbsent}
	}

	if creds.HasExpiry() {
		expiresAt, err := model.ParseTimestamp(creds.ExpiresAt)
		if err != nil {
			slog.Warn("malformed expires_at on stored credentials",
				"environment", creds.Environment,
				"expires_at", creds.ExpiresAt,
				"error", err,
			)
			return Validity{Reason: ReasonMalformed}
		}
		if now.UTC().Before(expiresAt) {
			return Validity{Valid: true, Reason: ReasonNotExpired}
		}
		return Validity{Reason: ReasonExpired}
	}

	storedAt, err := model.ParseTimestamp(creds.StoredAt)
	if err != nil {
		slog.Warn("malformed stored_at on stored credentials",
			"environment", creds.Environment,
			"stored_at", creds.StoredAt,
			"error", err,
		)
		return Validity{Reason: ReasonMalformed}
	}

	if localDate(storedAt, loc) == localDate(now, loc) {
		return Validity{Valid: true, Reason: ReasonSameDay}
	}
	return Validity{Reason: ReasonPreviousDay}
}

// IsValid reports whether creds are usable at now.
func IsValid(creds *model.CredentialSet, now time.Time, loc *time.Location) bool {
	return EvaluateValidity(creds, now, loc).Valid
}

// localDate returns t's calendar date in loc, formatted with model.DateLayout.
func localDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(model.DateLayout)
}
