package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("DB_TYPE", "")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, DBMemory, cfg.Database.Type)
	assert.Equal(t, 10*time.Second, cfg.Core.NotificationPollInterval)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestFromEnvPostgresParts(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("DB_TYPE", "postgres")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_USER", "snap")
	t.Setenv("DB_PASSWORD", "pw")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_SSL_MODE", "disable")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "postgresql://snap:pw@db:5432/postgres?sslmode=disable", cfg.Database.URI)
}

func TestFromEnvPostgresURL(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("DB_TYPE", "postgres")
	t.Setenv("DATABASE_URL", "postgres://u:p@h/db?sslmode=disable&connect_timeout=5")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
}

func TestFromEnvRejects(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("DB_TYPE", "cassandra")
	_, err := FromEnv()
	assert.Error(t, err)

	t.Setenv("DB_TYPE", "firestore")
	t.Setenv("FIREBASE_PROJECT_ID", "")
	_, err = FromEnv()
	assert.Error(t, err)

	t.Setenv("DB_TYPE", "memory")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("DEBUG", "")
	_, err = FromEnv()
	assert.Error(t, err)
}

func TestFromEnvCoreOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("DEBUG", "true")
	t.Setenv("DB_TYPE", "")
	t.Setenv("NOTIFICATION_POLL_INTERVAL", "3")
	t.Setenv("NOTIFY_WORKERS", "8")
	t.Setenv("MOUNTED_THREADS", "16")
	t.Setenv("SEED_USERS", "20")
	t.Setenv("SEED_POSTS", "50")
	t.Setenv("LOG_FORMAT", "")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.Core.NotificationPollInterval)
	assert.Equal(t, 8, cfg.Core.NotifyWorkers)
	assert.Equal(t, 16, cfg.Core.MountedThreads)
	assert.Equal(t, 20, cfg.Core.SeedUsers)
	assert.Equal(t, 50, cfg.Core.SeedPosts)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.NotEmpty(t, cfg.JWTSecret)
}
