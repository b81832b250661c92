package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HEALTHWATCH_DATABASE_URL", "postgres://localhost/healthwatch")
	t.Setenv("HEALTHWATCH_JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, StoreDriverPostgres, cfg.StoreDriver)
	require.Equal(t, AuthProviderJWT, cfg.AuthProvider)
	require.Equal(t, 2*time.Minute, cfg.FeedCacheTTL)
	require.Equal(t, 25*time.Second, cfg.SSEKeepAlive)
	require.Equal(t, 60, cfg.RateLimitMax)
	require.False(t, cfg.SeedEnabled)
	require.Equal(t, 20, cfg.DatabaseMaxConns)
	require.Empty(t, cfg.CORSAllowOrigins)
	require.Equal(t, ":8080", cfg.HTTPAddress())
}

func TestLoadOverridesAndValidation(t *testing.T) {
	t.Setenv("HEALTHWATCH_STORE_DRIVER", "SQLite")
	t.Setenv("HEALTHWATCH_SQLITE_PATH", "/tmp/hw.db")
	t.Setenv("HEALTHWATCH_AUTH_PROVIDER", "firebase")
	t.Setenv("HEALTHWATCH_FIREBASE_PROJECT", "healthwatch-dev")
	t.Setenv("HEALTHWATCH_FEED_CACHE_TTL", "30s")
	t.Setenv("HEALTHWATCH_APP_PORT", ":9090")
	t.Setenv("HEALTHWATCH_SEED_ENABLED", "true")
	t.Setenv("HEALTHWATCH_CORS_ALLOW_ORIGINS", "https://app.healthwatch.ng, ,http://localhost:5173")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, StoreDriverSQLite, cfg.StoreDriver)
	require.Equal(t, AuthProviderFirebase, cfg.AuthProvider)
	require.Equal(t, 30*time.Second, cfg.FeedCacheTTL)
	require.Equal(t, ":9090", cfg.HTTPAddress())
	require.True(t, cfg.SeedEnabled)
	require.Equal(t, []string{"https://app.healthwatch.ng", "http://localhost:5173"}, cfg.CORSAllowOrigins)

	t.Setenv("HEALTHWATCH_FEED_CACHE_TTL", "soon")
	_, err = Load()
	require.ErrorContains(t, err, "feed.cache_ttl")

	t.Setenv("HEALTHWATCH_FEED_CACHE_TTL", "30s")
	t.Setenv("HEALTHWATCH_STORE_DRIVER", "cassandra")
	_, err = Load()
	require.ErrorContains(t, err, "unknown store driver")

	t.Setenv("HEALTHWATCH_STORE_DRIVER", "mongodb")
	_, err = Load()
	require.ErrorContains(t, err, "mongodb uri")
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv("HEALTHWATCH_DATABASE_URL", "postgres://localhost/healthwatch")
	t.Setenv("HEALTHWATCH_JWT_SECRET", "")

	_, err := Load()
	require.ErrorContains(t, err, "jwt secret")
}
