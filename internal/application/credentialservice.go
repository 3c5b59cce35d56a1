// Package application contains use-case orchestration services.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ericfisherdev/tokenkeeper/internal/domain/model"
	"github.com/ericfisherdev/tokenkeeper/internal/domain/port/driven"
	"github.com/ericfisherdev/tokenkeeper/internal/observability/metrics"
)

// CredentialStatus is the secret-free view of an environment's current
// credentials.
type CredentialStatus struct {
	Environment model.Environment
	Present     bool
	Valid       bool
	Reason      ValidityReason
	StoredAt    string
	ExpiresAt   string
	Versions    int
}

// CredentialService stores renewed credentials and reports their validity.
// It is the handoff point for whatever completes the brokerage OAuth flow.
type CredentialService struct {
	store   driven.CredentialStore
	loc     *time.Location
	now     Clock
	metrics *metrics.Metrics
}

// NewCredentialService creates a CredentialService evaluating validity in loc.
func NewCredentialService(store driven.CredentialStore, loc *time.Location, now Clock, m *metrics.Metrics) *CredentialService {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &CredentialService{store: store, loc: loc, now: now, metrics: m}
}

// Store appends a new credential version for env. expiresAt may be zero when
// the brokerage did not report an expiry.
func (s *CredentialService) Store(ctx context.Context, env model.Environment, accessToken, accessTokenSecret string, expiresAt time.Time) error {
	if !env.Valid() {
		return fmt.Errorf("%w: %q", driven.ErrUnknownEnvironment, env)
	}

	creds := model.CredentialSet{
		AccessToken:       accessToken,
		AccessTokenSecret: accessTokenSecret,
	}
	if !expiresAt.IsZero() {
		creds.ExpiresAt = model.FormatTimestamp(expiresAt)
	}

	if err := s.store.Store(ctx, env, creds); err != nil {
		return err
	}

	slog.Info("credentials stored", "environment", env, "has_expiry", creds.HasExpiry())
	return nil
}

// Status loads env's current credentials and evaluates them now.
func (s *CredentialService) Status(ctx context.Context, env model.Environment) (CredentialStatus, error) {
	if !env.Valid() {
		return CredentialStatus{}, fmt.Errorf("%w: %q", driven.ErrUnknownEnvironment, env)
	}

	res := LoadCredentials(ctx, s.store, env)
	if res.Status == LoadFailed {
		s.metrics.StoreUnavailable()
		return CredentialStatus{Environment: env, Reason: ReasonUnavailable}, res.Err
	}

	validity := EvaluateValidity(res.Credentials, s.now(), s.loc)
	s.metrics.CredentialsValid(string(env), validity.Valid)

	status := CredentialStatus{
		Environment: env,
		Present:     res.Status == LoadFound,
		Valid:       validity.Valid,
		Reason:      validity.Reason,
	}
	if res.Credentials != nil {
		status.StoredAt = res.Credentials.StoredAt
		status.ExpiresAt = res.Credentials.ExpiresAt
	}

	versions, err := s.store.Versions(ctx, env)
	if err != nil {
		slog.Warn("count credential versions failed", "environment", env, "error", err)
	}
	status.Versions = versions

	return status, nil
}

// ListStatuses returns the status of every environment known to the store.
func (s *CredentialService) ListStatuses(ctx context.Context) ([]CredentialStatus, error) {
	envs, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}

	statuses := make([]CredentialStatus, 0, len(envs))
	for _, env := range envs {
		status, err := s.Status(ctx, env)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// Delete removes env's credentials and every retained version.
func (s *CredentialService) Delete(ctx context.Context, env model.Environment) error {
	if !env.Valid() {
		return fmt.Errorf("%w: %q", driven.ErrUnknownEnvironment, env)
	}
	if err := s.store.Delete(ctx, env); err != nil {
		return err
	}
	slog.Info("credentials deleted", "environment", env)
	return nil
}
