package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/tokenkeeper/internal/domain/model"
)

// allConfigKeys lists every TOKENKEEPER_ env var that Load() reads.
var allConfigKeys = []string{
	"TOKENKEEPER_LISTEN_ADDR",
	"TOKENKEEPER_DB_PATH",
	"TOKENKEEPER_STORE_BACKEND",
	"TOKENKEEPER_REDIS_ADDR",
	"TOKENKEEPER_REDIS_PASSWORD",
	"TOKENKEEPER_REDIS_DB",
	"TOKENKEEPER_SECRET_KEY",
	"TOKENKEEPER_ENVIRONMENTS",
	"TOKENKEEPER_EXCHANGE_TZ",
	"TOKENKEEPER_MARKET_OPEN",
	"TOKENKEEPER_FALLBACK_CHECKPOINT",
	"TOKENKEEPER_KEEPALIVE_INTERVAL",
	"TOKENKEEPER_ALERT_POLL_INTERVAL",
	"TOKENKEEPER_CHECK_TIMEOUT",
	"TOKENKEEPER_ALERT_CATCH_UP",
	"TOKENKEEPER_WEBHOOK_URL",
	"TOKENKEEPER_WEBHOOK_FORMAT",
	"TOKENKEEPER_TWILIO_ACCOUNT_SID",
	"TOKENKEEPER_TWILIO_AUTH_TOKEN",
	"TOKENKEEPER_TWILIO_FROM",
	"TOKENKEEPER_TWILIO_TO",
	"TOKENKEEPER_GITHUB_TOKEN",
	"TOKENKEEPER_GITHUB_REPO",
	"TOKENKEEPER_GITHUB_ISSUE",
	"TOKENKEEPER_LOG_LEVEL",
	"TOKENKEEPER_LOG_FORMAT",
}

// isolateConfigEnv saves and unsets all TOKENKEEPER_ env vars so tests don't
// inherit values from the host environment.
// t.Cleanup restores original values after the test.
func isolateConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range allConfigKeys {
		if orig, ok := os.LookupEnv(key); ok {
			t.Cleanup(func() { os.Setenv(key, orig) })
		} else {
			t.Cleanup(func() { os.Unsetenv(key) })
		}
		os.Unsetenv(key)
	}
}

func TestLoad_Defaults(t *testing.T) {
	isolateConfigEnv(t)

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.ListenAddr)
	assert.Equal(t, "tokenkeeper.db", cfg.DBPath)
	assert.Equal(t, BackendSQLite, cfg.StoreBackend)
	assert.Nil(t, cfg.SecretKey)
	assert.Equal(t, []model.Environment{model.EnvironmentSandbox, model.EnvironmentProd}, cfg.Environments)
	assert.Equal(t, "America/New_York", cfg.ExchangeLocation.String())
	assert.Equal(t, 9*time.Hour+30*time.Minute, cfg.MarketOpen)
	assert.Equal(t, 7*time.Hour+30*time.Minute, cfg.FallbackCheckpoint)
	assert.Equal(t, 90*time.Minute, cfg.KeepAliveInterval)
	assert.Equal(t, time.Minute, cfg.AlertPollInterval)
	assert.Equal(t, 10*time.Second, cfg.CheckTimeout)
	assert.True(t, cfg.AlertCatchUp)
	assert.Equal(t, "text", cfg.WebhookFormat)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.False(t, cfg.HasWebhook())
	assert.False(t, cfg.HasTwilio())
	assert.False(t, cfg.HasGitHub())
}

func TestLoad_Success(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("TOKENKEEPER_LISTEN_ADDR", "0.0.0.0:9090")
	t.Setenv("TOKENKEEPER_STORE_BACKEND", "Redis")
	t.Setenv("TOKENKEEPER_REDIS_DB", "2")
	t.Setenv("TOKENKEEPER_SECRET_KEY", strings.Repeat("ab", 32))
	t.Setenv("TOKENKEEPER_ENVIRONMENTS", "prod")
	t.Setenv("TOKENKEEPER_EXCHANGE_TZ", "America/Chicago")
	t.Setenv("TOKENKEEPER_MARKET_OPEN", "08:30")
	t.Setenv("TOKENKEEPER_FALLBACK_CHECKPOINT", "06:45")
	t.Setenv("TOKENKEEPER_KEEPALIVE_INTERVAL", "30m")
	t.Setenv("TOKENKEEPER_ALERT_CATCH_UP", "false")
	t.Setenv("TOKENKEEPER_WEBHOOK_URL", "https://hooks.example.com/x")
	t.Setenv("TOKENKEEPER_WEBHOOK_FORMAT", "html")
	t.Setenv("TOKENKEEPER_TWILIO_ACCOUNT_SID", "AC123")
	t.Setenv("TOKENKEEPER_TWILIO_AUTH_TOKEN", "secret")
	t.Setenv("TOKENKEEPER_TWILIO_FROM", "+15550000000")
	t.Setenv("TOKENKEEPER_TWILIO_TO", "+15551111111, +15552222222")
	t.Setenv("TOKENKEEPER_GITHUB_TOKEN", "ghp_x")
	t.Setenv("TOKENKEEPER_GITHUB_REPO", "acme/ops")
	t.Setenv("TOKENKEEPER_GITHUB_ISSUE", "12")
	t.Setenv("TOKENKEEPER_LOG_LEVEL", "debug")
	t.Setenv("TOKENKEEPER_LOG_FORMAT", "json")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9090", cfg.ListenAddr)
	assert.Equal(t, BackendRedis, cfg.StoreBackend)
	assert.Equal(t, 2, cfg.RedisDB)
	assert.Len(t, cfg.SecretKey, 32)
	assert.Equal(t, []model.Environment{model.EnvironmentProd}, cfg.Environments)
	assert.Equal(t, "America/Chicago", cfg.ExchangeLocation.String())
	assert.Equal(t, 8*time.Hour+30*time.Minute, cfg.MarketOpen)
	assert.Equal(t, 6*time.Hour+45*time.Minute, cfg.FallbackCheckpoint)
	assert.Equal(t, 30*time.Minute, cfg.KeepAliveInterval)
	assert.False(t, cfg.AlertCatchUp)
	assert.Equal(t, []string{"+15551111111", "+15552222222"}, cfg.TwilioTo)
	assert.True(t, cfg.HasWebhook())
	assert.True(t, cfg.HasTwilio())
	assert.True(t, cfg.HasGitHub())
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"TOKENKEEPER_STORE_BACKEND", "postgres"},
		{"TOKENKEEPER_REDIS_DB", "zero"},
		{"TOKENKEEPER_SECRET_KEY", "abcd"},
		{"TOKENKEEPER_SECRET_KEY", strings.Repeat("zz", 32)},
		{"TOKENKEEPER_ENVIRONMENTS", "prod,staging"},
		{"TOKENKEEPER_EXCHANGE_TZ", "Mars/Olympus"},
		{"TOKENKEEPER_MARKET_OPEN", "9am"},
		{"TOKENKEEPER_FALLBACK_CHECKPOINT", "10:00"},
		{"TOKENKEEPER_FALLBACK_CHECKPOINT", "00:00"},
		{"TOKENKEEPER_FALLBACK_CHECKPOINT", "00:01"},
		{"TOKENKEEPER_KEEPALIVE_INTERVAL", "often"},
		{"TOKENKEEPER_ALERT_POLL_INTERVAL", "-1m"},
		{"TOKENKEEPER_CHECK_TIMEOUT", "0s"},
		{"TOKENKEEPER_ALERT_CATCH_UP", "maybe"},
		{"TOKENKEEPER_WEBHOOK_FORMAT", "xml"},
		{"TOKENKEEPER_LOG_LEVEL", "loud"},
		{"TOKENKEEPER_LOG_FORMAT", "yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			isolateConfigEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load()

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestLoad_FallbackCheckpointAfterExpiryWindow(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("TOKENKEEPER_FALLBACK_CHECKPOINT", "00:02")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, cfg.FallbackCheckpoint)
}

func TestLoad_GitHubIssueRequired(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("TOKENKEEPER_GITHUB_TOKEN", "ghp_x")
	t.Setenv("TOKENKEEPER_GITHUB_REPO", "acme/ops")

	_, err := Load()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "TOKENKEEPER_GITHUB_ISSUE")
}

func TestLoadDotEnv(t *testing.T) {
	isolateConfigEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("TOKENKEEPER_DB_PATH=/data/from-dotenv.db\nTOKENKEEPER_LISTEN_ADDR=:7000\n"), 0o600))
	t.Setenv("TOKENKEEPER_LISTEN_ADDR", ":8000")

	require.NoError(t, LoadDotEnv(path))
	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "/data/from-dotenv.db", cfg.DBPath)
	assert.Equal(t, ":8000", cfg.ListenAddr, "existing variables win over .env")
}

func TestLoadDotEnv_MissingFile(t *testing.T) {
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")))
}
