package model

import (
	"errors"
	"fmt"
	"time"
)

// CredentialSet is the access-token pair issued by the brokerage for one
// environment, together with the metadata recorded when it was stored.
// Field names and JSON tags match the payload persisted by every store backend.
//
// StoredAt and ExpiresAt are kept as the ISO-8601 strings read from the
// backend so that a malformed value can be reported as invalid instead of
// failing the read.
type CredentialSet struct {
	Environment       Environment `json:"environment"`
	AccessToken       string      `json:"access_token"`
	AccessTokenSecret string      `json:"access_token_secret"`
	StoredAt          string      `json:"stored_at"`
	ExpiresAt         string      `json:"expires_at,omitempty"`
}

var (
	ErrMissingToken         = errors.New("access token and access token secret are required")
	ErrExpiryNotAfterStored = errors.New("expires_at must be after stored_at")
)

// Stamp returns a copy of c carrying env and storedAt, the metadata every
// backend injects when it appends a version. It rejects sets without tokens
// and sets whose expiry does not fall after storedAt.
func (c CredentialSet) Stamp(env Environment, storedAt time.Time) (CredentialSet, error) {
	if c.AccessToken == "" || c.AccessTokenSecret == "" {
		return CredentialSet{}, ErrMissingToken
	}

	c.Environment = env
	c.StoredAt = FormatTimestamp(storedAt)

	if c.HasExpiry() {
		expiresAt, err := ParseTimestamp(c.ExpiresAt)
		if err != nil {
			return CredentialSet{}, fmt.Errorf("parse expires_at %q: %w", c.ExpiresAt, err)
		}
		if !expiresAt.After(storedAt) {
			return CredentialSet{}, ErrExpiryNotAfterStored
		}
		c.ExpiresAt = FormatTimestamp(expiresAt)
	}

	return c, nil
}

// HasExpiry reports whether an explicit expiry was recorded.
func (c *CredentialSet) HasExpiry() bool {
	return c.ExpiresAt != ""
}

// FormatTimestamp renders t the way store backends write stored_at and expires_at.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseTimestamp parses an ISO-8601 timestamp. Offsets are honored; values
// without an offset are read as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.ParseInLocation("2006-01-02T15:04:05.999999999", s, time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}
