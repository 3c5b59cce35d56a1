// Package config loads application configuration from environment variables.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ericfisherdev/tokenkeeper/internal/domain/model"
)

// Store backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// expiryWindowEnd is where the midnight expiry window closes, as an offset
// from exchange-local midnight.
const expiryWindowEnd = 2 * time.Minute

// Config holds the application configuration loaded from environment variables.
type Config struct {
	ListenAddr string
	DBPath     string

	StoreBackend  string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SecretKey     []byte // nil when TOKENKEEPER_SECRET_KEY is unset

	Environments       []model.Environment
	ExchangeLocation   *time.Location
	MarketOpen         time.Duration // offset from exchange-local midnight
	FallbackCheckpoint time.Duration // offset from exchange-local midnight

	KeepAliveInterval time.Duration
	AlertPollInterval time.Duration
	CheckTimeout      time.Duration
	AlertCatchUp      bool

	WebhookURL    string
	WebhookFormat string

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFrom       string
	TwilioTo         []string

	GitHubToken string
	GitHubRepo  string
	GitHubIssue int

	LogLevel  slog.Level
	LogFormat string
}

// HasWebhook reports whether the webhook channel is configured.
func (c *Config) HasWebhook() bool {
	return c.WebhookURL != ""
}

// HasTwilio reports whether every setting the SMS channel needs is present.
func (c *Config) HasTwilio() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioFrom != "" && len(c.TwilioTo) > 0
}

// HasGitHub reports whether the GitHub issue channel is configured.
func (c *Config) HasGitHub() bool {
	return c.GitHubToken != "" && c.GitHubRepo != "" && c.GitHubIssue > 0
}

// LoadDotEnv loads variables from the given .env files, or ./.env when none
// are named, without overriding variables already set. A missing file is not
// an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}

	var present []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("stat %s: %w", f, err)
		}
	}
	if len(present) == 0 {
		slog.Debug("no .env file found, using environment only")
		return nil
	}

	if err := godotenv.Load(present...); err != nil {
		return fmt.Errorf("load %s: %w", strings.Join(present, ", "), err)
	}
	slog.Debug("loaded .env", "files", present)
	return nil
}

// Load reads TOKENKEEPER_* environment variables and returns a validated Config.
// Every variable is optional. Notification channels are enabled only when
// their settings are present; with none, alerts go to the log.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:    envOr("TOKENKEEPER_LISTEN_ADDR", "127.0.0.1:8080"),
		DBPath:        envOr("TOKENKEEPER_DB_PATH", "tokenkeeper.db"),
		StoreBackend:  strings.ToLower(envOr("TOKENKEEPER_STORE_BACKEND", BackendSQLite)),
		RedisAddr:     envOr("TOKENKEEPER_REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("TOKENKEEPER_REDIS_PASSWORD"),
		WebhookURL:    os.Getenv("TOKENKEEPER_WEBHOOK_URL"),
		WebhookFormat: strings.ToLower(envOr("TOKENKEEPER_WEBHOOK_FORMAT", "text")),

		TwilioAccountSID: os.Getenv("TOKENKEEPER_TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:  os.Getenv("TOKENKEEPER_TWILIO_AUTH_TOKEN"),
		TwilioFrom:       os.Getenv("TOKENKEEPER_TWILIO_FROM"),
		TwilioTo:         splitList(os.Getenv("TOKENKEEPER_TWILIO_TO")),

		GitHubToken: os.Getenv("TOKENKEEPER_GITHUB_TOKEN"),
		GitHubRepo:  os.Getenv("TOKENKEEPER_GITHUB_REPO"),

		LogFormat: strings.ToLower(envOr("TOKENKEEPER_LOG_FORMAT", "text")),
	}

	var err error

	switch cfg.StoreBackend {
	case BackendSQLite, BackendRedis:
	default:
		return nil, fmt.Errorf("TOKENKEEPER_STORE_BACKEND must be %q or %q, got %q", BackendSQLite, BackendRedis, cfg.StoreBackend)
	}

	if cfg.RedisDB, err = intEnv("TOKENKEEPER_REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.GitHubIssue, err = intEnv("TOKENKEEPER_GITHUB_ISSUE", 0); err != nil {
		return nil, err
	}

	if v := os.Getenv("TOKENKEEPER_SECRET_KEY"); v != "" {
		key, err := hex.DecodeString(v)
		if err != nil || len(key) != 32 {
			return nil, errors.New("TOKENKEEPER_SECRET_KEY must be 64 hex characters (32 bytes)")
		}
		cfg.SecretKey = key
	}

	if cfg.Environments, err = environmentsEnv("TOKENKEEPER_ENVIRONMENTS"); err != nil {
		return nil, err
	}

	tz := envOr("TOKENKEEPER_EXCHANGE_TZ", "America/New_York")
	if cfg.ExchangeLocation, err = time.LoadLocation(tz); err != nil {
		return nil, fmt.Errorf("TOKENKEEPER_EXCHANGE_TZ has unknown time zone %q: %w", tz, err)
	}

	if cfg.MarketOpen, err = timeOfDayEnv("TOKENKEEPER_MARKET_OPEN", "09:30"); err != nil {
		return nil, err
	}
	if cfg.FallbackCheckpoint, err = timeOfDayEnv("TOKENKEEPER_FALLBACK_CHECKPOINT", "07:30"); err != nil {
		return nil, err
	}
	if cfg.FallbackCheckpoint < expiryWindowEnd {
		return nil, errors.New("TOKENKEEPER_FALLBACK_CHECKPOINT must be 00:02 or later, after the midnight expiry window")
	}
	if cfg.FallbackCheckpoint >= cfg.MarketOpen {
		return nil, errors.New("TOKENKEEPER_FALLBACK_CHECKPOINT must be before TOKENKEEPER_MARKET_OPEN")
	}

	if cfg.KeepAliveInterval, err = durationEnv("TOKENKEEPER_KEEPALIVE_INTERVAL", 90*time.Minute); err != nil {
		return nil, err
	}
	if cfg.AlertPollInterval, err = durationEnv("TOKENKEEPER_ALERT_POLL_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.CheckTimeout, err = durationEnv("TOKENKEEPER_CHECK_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}

	if cfg.AlertCatchUp, err = boolEnv("TOKENKEEPER_ALERT_CATCH_UP", true); err != nil {
		return nil, err
	}

	if cfg.WebhookFormat != "text" && cfg.WebhookFormat != "html" {
		return nil, fmt.Errorf("TOKENKEEPER_WEBHOOK_FORMAT must be text or html, got %q", cfg.WebhookFormat)
	}
	if cfg.GitHubToken != "" && cfg.GitHubRepo != "" && cfg.GitHubIssue <= 0 {
		return nil, errors.New("TOKENKEEPER_GITHUB_ISSUE is required when TOKENKEEPER_GITHUB_REPO is set")
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(envOr("TOKENKEEPER_LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("TOKENKEEPER_LOG_LEVEL: %w", err)
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("TOKENKEEPER_LOG_FORMAT must be text or json, got %q", cfg.LogFormat)
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func intEnv(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid integer %q: %w", key, v, err)
	}
	return n, nil
}

func boolEnv(key string, fallback bool) (bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s has invalid boolean %q: %w", key, v, err)
	}
	return b, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid duration %q: %w", key, v, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, d)
	}
	return d, nil
}

// timeOfDayEnv parses an HH:MM wall-clock time into an offset from midnight.
func timeOfDayEnv(key, fallback string) (time.Duration, error) {
	v := envOr(key, fallback)
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, fmt.Errorf("%s must be HH:MM, got %q", key, v)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func environmentsEnv(key string) ([]model.Environment, error) {
	raw := splitList(os.Getenv(key))
	if len(raw) == 0 {
		return append([]model.Environment(nil), model.Environments...), nil
	}

	envs := make([]model.Environment, 0, len(raw))
	for _, s := range raw {
		env, err := model.ParseEnvironment(s)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		envs = append(envs, env)
	}
	return envs, nil
}
