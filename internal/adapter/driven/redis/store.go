// Package redis implements the credential store on Redis lists. Each
// environment's container is a list keyed by its container name; versions
// are appended with RPUSH and the newest is the list tail.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ericfisherdev/tokenkeeper/internal/domain/model"
	"github.com/ericfisherdev/tokenkeeper/internal/domain/port/driven"
)

// scanCount is the COUNT hint passed to SCAN when listing containers.
const scanCount = 100

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*Store)(nil)

// Store is the Redis implementation of the CredentialStore port.
type Store struct {
	client goredis.UniversalClient
	now    func() time.Time
}

// Options configures the connection opened by Dial.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// Dial opens a client for opts and verifies it with PING.
func Dial(ctx context.Context, opts Options) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	return client, nil
}

// NewStore creates a Store over client.
func NewStore(client goredis.UniversalClient) *Store {
	return &Store{client: client, now: time.Now}
}

// Store appends a new version for env. RPUSH creates the list on first use.
func (s *Store) Store(ctx context.Context, env model.Environment, creds model.CredentialSet) error {
	if !env.Valid() {
		return fmt.Errorf("%w: %q", driven.ErrUnknownEnvironment, env)
	}

	stamped, err := creds.Stamp(env, s.now())
	if err != nil {
		return fmt.Errorf("%w: %w", driven.ErrInvalidCredentials, err)
	}

	payload, err := json.Marshal(stamped)
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}

	key := driven.ContainerName(env)
	n, err := s.client.RPush(ctx, key, string(payload)).Result()
	if err != nil {
		return unavailable("rpush "+key, err)
	}
	if n == 1 {
		slog.Info("credential container created", "container", key)
	}
	return nil
}

// Load returns the newest version for env, or (nil, nil) if there is none.
func (s *Store) Load(ctx context.Context, env model.Environment) (*model.CredentialSet, error) {
	if !env.Valid() {
		return nil, fmt.Errorf("%w: %q", driven.ErrUnknownEnvironment, env)
	}

	key := driven.ContainerName(env)
	payload, err := s.client.LIndex(ctx, key, -1).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("lindex "+key, err)
	}

	var creds model.CredentialSet
	if err := json.Unmarshal([]byte(payload), &creds); err != nil {
		return nil, unavailable("decode "+key, err)
	}
	return &creds, nil
}

// Delete removes env's list and with it every version.
func (s *Store) Delete(ctx context.Context, env model.Environment) error {
	if !env.Valid() {
		return fmt.Errorf("%w: %q", driven.ErrUnknownEnvironment, env)
	}

	key := driven.ContainerName(env)
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return unavailable("del "+key, err)
	}
	return nil
}

// List scans for container keys and returns their environments sorted by
// name.
func (s *Store) List(ctx context.Context) ([]model.Environment, error) {
	found := make(map[model.Environment]struct{})

	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, driven.ContainerPrefix+"*", scanCount).Result()
		if err != nil {
			return nil, unavailable("scan containers", err)
		}
		for _, key := range keys {
			env, err := model.ParseEnvironment(strings.TrimPrefix(key, driven.ContainerPrefix))
			if err != nil {
				slog.Warn("ignoring container with unknown environment", "container", key)
				continue
			}
			found[env] = struct{}{}
		}
		if next == 0 {
			break
		}
		cursor = next
	}

	envs := slices.Collect(maps.Keys(found))
	slices.Sort(envs)
	return envs, nil
}

// Versions returns the length of env's list.
func (s *Store) Versions(ctx context.Context, env model.Environment) (int, error) {
	key := driven.ContainerName(env)
	n, err := s.client.LLen(ctx, key).Result()
	if err != nil {
		return 0, unavailable("llen "+key, err)
	}
	return int(n), nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: redis %s: %w", driven.ErrStoreUnavailable, op, err)
}
