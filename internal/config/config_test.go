package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GIN_MODE", "debug")
	t.Setenv("SESSION_STORE", "")
	t.Setenv("SESSION_COOKIE_NAME", "")
	t.Setenv("SESSION_MAX_AGE_MINUTES", "")
	t.Setenv("SESSION_IDLE_MINUTES", "")
	t.Setenv("SESSION_ENCRYPTION_KEY", "")
	t.Setenv("DATABASE_DRIVER", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("TRUSTED_PROXIES", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "user_id", cfg.SessionCookieName)
	assert.Equal(t, SessionStoreRedis, cfg.SessionStore)
	assert.Equal(t, 12*time.Hour, cfg.SessionMaxAge())
	assert.Equal(t, 30*time.Minute, cfg.SessionIdleTimeout())
	assert.False(t, cfg.IsRelease())
	assert.Nil(t, cfg.TrustedProxyList())
}

func TestValidateReleaseRequiresSecret(t *testing.T) {
	cfg := &Config{
		GinMode:              "release",
		SessionStore:         SessionStoreMemory,
		DatabaseDriver:       "sqlite3",
		DatabaseURL:          "file::memory:",
		SessionMaxAgeMinutes: 60,
		SessionIdleMinutes:   10,
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SESSION_SECRET")

	cfg.SessionSecret = "short"
	require.Error(t, cfg.Validate())

	cfg.SessionSecret = strings.Repeat("s", minSessionSecretLength)
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsUnknownStore(t *testing.T) {
	cfg := &Config{
		SessionStore:         "memcached",
		DatabaseDriver:       "sqlite3",
		SessionMaxAgeMinutes: 60,
		SessionIdleMinutes:   10,
	}
	assert.Error(t, cfg.Validate())
}

func TestValidateEncryptionKeyLength(t *testing.T) {
	cfg := &Config{
		SessionStore:         SessionStoreMemory,
		DatabaseDriver:       "sqlite3",
		SessionEncryptionKey: "not-a-valid-length",
		SessionMaxAgeMinutes: 60,
		SessionIdleMinutes:   10,
	}
	assert.Error(t, cfg.Validate())

	cfg.SessionEncryptionKey = strings.Repeat("k", 32)
	assert.NoError(t, cfg.Validate())
}

func TestAllowedOrigins(t *testing.T) {
	cfg := &Config{CORSAllowedOrigins: "http://a.example, ,http://b.example"}
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.AllowedOrigins())
}

func TestTrustedProxyList(t *testing.T) {
	t.Setenv("TRUSTED_PROXIES", " 10.0.0.1, 172.16.0.0/12 ,")
	t.Setenv("REDIS_URL", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1", "172.16.0.0/12"}, cfg.TrustedProxyList())
}
