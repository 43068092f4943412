package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "user-service", cfg.App.Name)
	assert.Equal(t, "0.0.0.0:8000", cfg.App.Addr())
	assert.True(t, cfg.Database.PrePing)
	assert.Equal(t, time.Hour, cfg.Database.MaxLifetime)
	assert.Equal(t, 30*time.Second, cfg.Database.AcquireTimeout)
	assert.Equal(t, time.Duration(0), cfg.Database.QueryTimeout)
	assert.Equal(t, "user-service", cfg.Database.AppName)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Len(t, cfg.HTTP.CORSOrigins, 3)
}

func TestLoad_FromEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.env")
	content := "APP_NAME=users\nDATABASE_URL=postgresql+asyncpg://u:p@db:5432/app\nDB_POOL_RECYCLE_SECONDS=60\nKAFKA_BROKERS=k1:9092, k2:9092\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	for _, key := range []string{"APP_NAME", "DATABASE_URL", "DB_POOL_RECYCLE_SECONDS", "KAFKA_BROKERS"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "users", cfg.App.Name)
	assert.Equal(t, "users", cfg.Database.AppName)
	assert.Equal(t, "postgres://u:p@db:5432/app", cfg.Database.URL)
	assert.Equal(t, time.Minute, cfg.Database.MaxLifetime)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "bad pre ping", key: "DB_POOL_PRE_PING", val: "maybe"},
		{name: "bad recycle", key: "DB_POOL_RECYCLE_SECONDS", val: "soon"},
		{name: "negative max open", key: "DB_POOL_MAX_OPEN", val: "-1"},
		{name: "bad url scheme", key: "DATABASE_URL", val: "mysql://localhost/app"},
		{name: "unbounded acquire wait", key: "DB_POOL_ACQUIRE_TIMEOUT_SECONDS", val: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load("")
			assert.ErrorContains(t, err, tt.key)
		})
	}
}

func TestNormalizeURL(t *testing.T) {
	got, err := NormalizeURL("postgresql://u:p@localhost:5432/app?sslmode=disable")
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@localhost:5432/app?sslmode=disable", got)

	got, err = NormalizeURL("postgres+pgx://localhost/app")
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/app", got)
}
