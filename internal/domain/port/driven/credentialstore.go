package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/tokenkeeper/internal/domain/model"
)

// ErrStoreUnavailable is wrapped by CredentialStore errors when the backend is
// unreachable or refuses access. Callers treat the credentials as unknown.
var ErrStoreUnavailable = errors.New("credential store unavailable")

// ErrInvalidCredentials is returned by Store when the credential set violates
// its invariants (missing tokens, expiry not after the stored time).
var ErrInvalidCredentials = errors.New("invalid credential set")

// ErrUnknownEnvironment is returned when an environment outside the supported
// set is passed to a store operation.
var ErrUnknownEnvironment = errors.New("unknown environment")

// ContainerPrefix is the naming convention for per-environment containers.
// Backends only enumerate containers carrying this prefix.
const ContainerPrefix = "brokerage-tokens-"

// ContainerName returns the container name that holds env's credential versions.
func ContainerName(env model.Environment) string {
	return ContainerPrefix + string(env)
}

// CredentialStore defines the driven port for versioned credential storage.
// Each environment owns one container; every Store appends a version and only
// the latest version is ever read.
type CredentialStore interface {
	// Store creates the environment's container if it does not exist, then
	// appends a new version holding creds with stored_at and environment
	// injected. Backend failures wrap ErrStoreUnavailable.
	Store(ctx context.Context, env model.Environment, creds model.CredentialSet) error

	// Load returns the latest version for env.
	// Returns (nil, nil) if no container or no versions exist.
	Load(ctx context.Context, env model.Environment) (*model.CredentialSet, error)

	// Delete removes the container and all of its versions.
	Delete(ctx context.Context, env model.Environment) error

	// List returns the environments that currently have a container.
	List(ctx context.Context) ([]model.Environment, error)

	// Versions returns how many versions are retained for env.
	Versions(ctx context.Context, env model.Environment) (int, error)
}
