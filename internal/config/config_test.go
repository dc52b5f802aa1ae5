package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"CONFIG_PATH", "APP_NAME", "ENV", "BASE_URL", "LOG_LEVEL",
		"REQUEST_TIMEOUT", "EXTERNAL_REQUEST_TIMEOUT", "REFRESH_TIMEOUT", "EXPIRY_BUFFER",
		"USER_AGENT", "PROACTIVE_REFRESH", "STORAGE_PATH", "STORAGE_KEY",
		"REFRESH_PATH", "OAUTH_ISSUER", "OAUTH_TOKEN_URL", "OAUTH_CLIENT_ID", "OAUTH_CLIENT_SECRET",
	} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, "Go API Client", cfg.GetAppName())
	require.Equal(t, "DEV", cfg.GetEnv())
	require.Equal(t, "http://localhost:8080", cfg.GetBaseURL())
	require.Equal(t, 15*time.Second, cfg.GetRequestTimeout())
	require.Equal(t, 30*time.Second, cfg.GetExternalRequestTimeout())
	require.Equal(t, 15*time.Second, cfg.GetRefreshTimeout())
	require.Equal(t, 30*time.Second, cfg.GetExpiryBuffer())
	require.False(t, cfg.GetProactiveRefresh())
	require.Equal(t, "/auth/refresh", cfg.GetRefreshPath())
	require.False(t, cfg.UseOAuthRefresh())
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("BASE_URL", "https://api.example.com/v1/")
	t.Setenv("REQUEST_TIMEOUT", "5s")
	t.Setenv("PROACTIVE_REFRESH", "true")
	t.Setenv("OAUTH_TOKEN_URL", "https://auth.example.com/oauth2/token")
	t.Setenv("ENV", "prod")
	t.Setenv("STORAGE_KEY", "k")

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, "https://api.example.com/v1", cfg.GetBaseURL())
	require.Equal(t, 5*time.Second, cfg.GetRequestTimeout())
	require.True(t, cfg.GetProactiveRefresh())
	require.True(t, cfg.UseOAuthRefresh())
	require.Equal(t, "PROD", cfg.GetEnv())
}

func TestLoad_YAMLFileWithEnvOverlay(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "client.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
app:
  name: Delivery
  env: DEV
  base_url: https://delivery.example.com
client:
  request_timeout: 7s
storage:
  path: /tmp/creds.json
oauth:
  client_id: mobile
`), 0o600))

	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "Delivery", cfg.GetAppName())
	require.Equal(t, "https://delivery.example.com", cfg.GetBaseURL())
	require.Equal(t, 7*time.Second, cfg.GetRequestTimeout())
	require.Equal(t, "/tmp/creds.json", cfg.GetStoragePath())
	require.Equal(t, "mobile", cfg.GetOAuthClientID())
	require.Equal(t, "debug", cfg.GetLogLevel())
}

func TestLoad_Invalid(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		clearEnv(t)
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
	})

	t.Run("relative base url", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("BASE_URL", "api.example.com")
		_, err := Load("")
		require.ErrorIs(t, err, apperrors.ErrInvalidConfig)
	})

	t.Run("storage key required outside dev", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ENV", "PROD")
		_, err := Load("")
		require.ErrorIs(t, err, apperrors.ErrInvalidConfig)
	})

	t.Run("must load panics", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("BASE_URL", "nope")
		require.Panics(t, func() { MustLoad("") })
	})
}
