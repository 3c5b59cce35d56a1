// Package wiring builds the adapters selected by configuration. Both binaries
// use it so the daemon and the operator CLI always open the same backend.
package wiring

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	githubadapter "github.com/ericfisherdev/tokenkeeper/internal/adapter/driven/github"
	"github.com/ericfisherdev/tokenkeeper/internal/adapter/driven/notify"
	redisadapter "github.com/ericfisherdev/tokenkeeper/internal/adapter/driven/redis"
	sqliteadapter "github.com/ericfisherdev/tokenkeeper/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/tokenkeeper/internal/config"
	"github.com/ericfisherdev/tokenkeeper/internal/domain/port/driven"
)

// Backend bundles the opened store and its companions.
type Backend struct {
	Store driven.CredentialStore
	// AlertState is nil for backends that do not persist alert state.
	AlertState driven.AlertStateStore
	Pinger     interface {
		Ping(ctx context.Context) error
	}
	closer io.Closer
}

// Close releases the backend's connections.
func (b *Backend) Close() error {
	if b.closer == nil {
		return nil
	}
	return b.closer.Close()
}

// OpenBackend opens the store selected by cfg.StoreBackend. SQLite databases
// are migrated before use.
func OpenBackend(ctx context.Context, cfg *config.Config) (*Backend, error) {
	switch cfg.StoreBackend {
	case config.BackendRedis:
		client, err := redisadapter.Dial(ctx, redisadapter.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		if cfg.SecretKey != nil {
			slog.Warn("TOKENKEEPER_SECRET_KEY is ignored by the redis backend")
		}
		store := redisadapter.NewStore(client)
		slog.Info("credential store opened", "backend", config.BackendRedis, "addr", cfg.RedisAddr)
		return &Backend{Store: store, Pinger: store, closer: client}, nil

	case config.BackendSQLite, "":
		db, err := sqliteadapter.NewDB(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
			_ = db.Close()
			return nil, err
		}
		slog.Info("credential store opened",
			"backend", config.BackendSQLite,
			"path", db.Path(),
			"encrypted", cfg.SecretKey != nil,
		)
		return &Backend{
			Store:      sqliteadapter.NewCredentialRepo(db, cfg.SecretKey),
			AlertState: sqliteadapter.NewAlertStateRepo(db),
			Pinger:     db,
			closer:     db,
		}, nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// BuildNotifier assembles every configured channel, each behind its own
// circuit breaker, into one fan-out notifier. With no channel configured,
// alerts are written to logger.
func BuildNotifier(cfg *config.Config, logger *slog.Logger) (driven.Notifier, error) {
	var channels []notify.Named

	if cfg.HasWebhook() {
		format, err := notify.ParseWebhookFormat(cfg.WebhookFormat)
		if err != nil {
			return nil, err
		}
		w, err := notify.NewWebhook(cfg.WebhookURL, notify.WithFormat(format))
		if err != nil {
			return nil, err
		}
		channels = append(channels, breakered("webhook", w))
	}

	if cfg.HasTwilio() {
		sms, err := notify.NewSMS(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFrom, cfg.TwilioTo)
		if err != nil {
			return nil, err
		}
		channels = append(channels, breakered("sms", sms))
	}

	if cfg.HasGitHub() {
		gh, err := githubadapter.NewIssueNotifier(cfg.GitHubToken, cfg.GitHubRepo, cfg.GitHubIssue)
		if err != nil {
			return nil, err
		}
		channels = append(channels, breakered("github", gh))
	}

	if len(channels) == 0 {
		slog.Warn("no notification channel configured, alerts will only be logged")
		return notify.NewLog(logger), nil
	}

	names := make([]string, 0, len(channels))
	for _, ch := range channels {
		names = append(names, ch.Name)
	}
	slog.Info("notification channels configured", "channels", names)
	return notify.NewMulti(channels...), nil
}

func breakered(name string, n driven.Notifier) notify.Named {
	return notify.Named{Name: name, Notifier: notify.NewBreaker(name, n, 0, 0)}
}

// NewLogger returns the slog logger described by cfg.
func NewLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
