package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ericfisherdev/tokenkeeper/internal/domain/model"
	"github.com/ericfisherdev/tokenkeeper/internal/domain/port/driven"
)

// LoadStatus is the outcome of reading the current credentials.
type LoadStatus int

const (
	// LoadFound means the latest version was read.
	LoadFound LoadStatus = iota
	// LoadAbsent means the environment has no stored credentials.
	LoadAbsent
	// LoadFailed means the backend could not be read.
	LoadFailed
)

// String returns a human-readable name for the load status.
func (s LoadStatus) String() string {
	switch s {
	case LoadFound:
		return "found"
	case LoadAbsent:
		return "absent"
	case LoadFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// LoadResult carries the credentials on LoadFound and the cause on LoadFailed.
type LoadResult struct {
	Status      LoadStatus
	Credentials *model.CredentialSet
	Err         error
}

// LoadCredentials reads the current credentials for env and folds the
// store's (value, error) pair into a LoadResult. Errors that do not already
// wrap driven.ErrStoreUnavailable (timeouts, cancellation) are wrapped so
// every failure is reported the same way.
func LoadCredentials(ctx context.Context, store driven.CredentialStore, env model.Environment) LoadResult {
	creds, err := store.Load(ctx, env)
	if err != nil {
		if !errors.Is(err, driven.ErrStoreUnavailable) {
			err = errors.Join(driven.ErrStoreUnavailable, err)
		}
		slog.Warn("credential load failed", "environment", env, "error", err)
		return LoadResult{Status: LoadFailed, Err: err}
	}
	if creds == nil {
		return LoadResult{Status: LoadAbsent}
	}
	return LoadResult{Status: LoadFound, Credentials: creds}
}
