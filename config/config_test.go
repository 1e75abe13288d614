package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	for _, key := range []string{"SERVER_PORT", "ALLOWED_ORIGINS", "RATE_LIMIT_PER_MINUTE", "FETCH_LIMIT", "PROXY_TIMEOUT_SECONDS", "PROXY_INSECURE_TLS"} {
		t.Setenv(key, "")
	}

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, DefaultServerPort, cfg.ServerPort)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, DefaultRateLimit, cfg.RateLimitPerMinute)
	assert.Equal(t, DefaultFetchLimit, cfg.FetchLimit)
	assert.Equal(t, DefaultProxyTimeout, cfg.ProxyTimeout)
	assert.False(t, cfg.ProxyInsecureTLS)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("SERVER_PORT", ":9090")
	t.Setenv("ALLOWED_ORIGINS", "http://localhost:4200, https://dash.example.org")
	t.Setenv("FETCH_LIMIT", "200")
	t.Setenv("PROXY_TIMEOUT_SECONDS", "5")
	t.Setenv("PROXY_INSECURE_TLS", "true")
	t.Setenv("ODK_SERVER_URL", "https://odk.example.org/")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, []string{"http://localhost:4200", "https://dash.example.org"}, cfg.AllowedOrigins)
	assert.Equal(t, 200, cfg.FetchLimit)
	assert.Equal(t, 5*time.Second, cfg.ProxyTimeout)
	assert.True(t, cfg.ProxyInsecureTLS)
	assert.Equal(t, "https://odk.example.org", cfg.OdkServerURL)
}

func TestLoadConfigInvalidNumbersFallBack(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("SERVER_PORT", "")
	t.Setenv("FETCH_LIMIT", "lots")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "-3")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, DefaultFetchLimit, cfg.FetchLimit)
	assert.Equal(t, DefaultRateLimit, cfg.RateLimitPerMinute)
}
