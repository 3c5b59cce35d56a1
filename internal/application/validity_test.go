package application_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ericfisherdev/tokenkeeper/internal/application"
	"github.com/ericfisherdev/tokenkeeper/internal/domain/model"
)

func TestEvaluateValidity_Absent(t *testing.T) {
	v := application.EvaluateValidity(nil, time.Now(), newYork())

	assert.False(t, v.Valid)
	assert.Equal(t, application.ReasonAbsent, v.Reason)
}

func TestEvaluateValidity_ExplicitExpiry(t *testing.T) {
	now := time.Date(2025, 1, 6, 20, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		expiresAt time.Time
		want      bool
	}{
		{"one second ahead", now.Add(time.Second), true},
		{"a day ahead", now.Add(24 * time.Hour), true},
		{"exactly now", now, false},
		{"one second ago", now.Add(-time.Second), false},
		{"a week ago", now.Add(-7 * 24 * time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creds := &model.CredentialSet{
				StoredAt:  model.FormatTimestamp(now.Add(-30 * 24 * time.Hour)),
				ExpiresAt: model.FormatTimestamp(tt.expiresAt),
			}
			assert.Equal(t, tt.want, application.IsValid(creds, now, newYork()))
		})
	}
}

// Explicit expiry takes precedence over the same-day fallback in both directions.
func TestEvaluateValidity_ExpiryBeatsSameDay(t *testing.T) {
	now := time.Date(2025, 1, 6, 20, 0, 0, 0, time.UTC)

	storedYesterdayNotExpired := &model.CredentialSet{
		StoredAt:  "2025-01-05T14:00:00Z",
		ExpiresAt: "2025-01-07T04:59:59Z",
	}
	v := application.EvaluateValidity(storedYesterdayNotExpired, now, newYork())
	assert.True(t, v.Valid)
	assert.Equal(t, application.ReasonNotExpired, v.Reason)

	storedTodayExpired := &model.CredentialSet{
		StoredAt:  "2025-01-06T14:00:00Z",
		ExpiresAt: "2025-01-06T15:00:00Z",
	}
	v = application.EvaluateValidity(storedTodayExpired, now, newYork())
	assert.False(t, v.Valid)
	assert.Equal(t, application.ReasonExpired, v.Reason)
}

func TestEvaluateValidity_SameDayHeuristic(t *testing.T) {
	creds := &model.CredentialSet{StoredAt: "2025-01-06T14:00:00Z"}

	sameDay := application.EvaluateValidity(creds, time.Date(2025, 1, 6, 20, 0, 0, 0, time.UTC), newYork())
	assert.True(t, sameDay.Valid)
	assert.Equal(t, application.ReasonSameDay, sameDay.Reason)

	nextDay := application.EvaluateValidity(creds, time.Date(2025, 1, 7, 5, 5, 0, 0, time.UTC), newYork())
	assert.False(t, nextDay.Valid)
	assert.Equal(t, application.ReasonPreviousDay, nextDay.Reason)
}

// 2025-01-07T03:00Z is still Jan 6 in New York, so UTC date changes alone do
// not invalidate credentials.
func TestEvaluateValidity_SameDayUsesExchangeDate(t *testing.T) {
	creds := &model.CredentialSet{StoredAt: "2025-01-06T14:00:00Z"}

	assert.True(t, application.IsValid(creds, time.Date(2025, 1, 7, 3, 0, 0, 0, time.UTC), newYork()))
	assert.False(t, application.IsValid(creds, time.Date(2025, 1, 7, 3, 0, 0, 0, time.UTC), time.UTC))
}

func TestEvaluateValidity_Malformed(t *testing.T) {
	now := time.Date(2025, 1, 6, 20, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		creds model.CredentialSet
	}{
		{"bad expires_at", model.CredentialSet{StoredAt: "2025-01-06T14:00:00Z", ExpiresAt: "tomorrow"}},
		{"bad stored_at", model.CredentialSet{StoredAt: "06/01/2025"}},
		{"empty stored_at", model.CredentialSet{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := application.EvaluateValidity(&tt.creds, now, newYork())
			assert.False(t, v.Valid)
			assert.Equal(t, application.ReasonMalformed, v.Reason)
		})
	}
}
