package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "weighbridge.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "Asia/Bangkok", cfg.Ingest.ReportingTimezone)
	assert.Equal(t, "ton", cfg.Ingest.Unit)
	assert.Equal(t, 4, cfg.Ingest.Concurrency)
	assert.Equal(t, "Quantity (ton)", cfg.Ingest.Columns.QuantityTon)
	assert.Equal(t, 60, cfg.Fetch.TimeoutSecs)
	assert.Equal(t, ".xlsx", cfg.Fetch.FileSuffix)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("WEIGH_STORE_DRIVER", "postgres")
	t.Setenv("WEIGH_STORE_DATABASE_URL", "postgres://localhost/weigh")
	t.Setenv("WEIGH_INGEST_REPORTING_TIMEZONE", "UTC")
	t.Setenv("WEIGH_INGEST_CONCURRENCY", "8")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/weigh", cfg.Store.DatabaseURL)
	assert.Equal(t, "UTC", cfg.Ingest.ReportingTimezone)
	assert.Equal(t, 8, cfg.Ingest.Concurrency)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))

	err := InitLogger(LogConfig{Level: "not-a-level"})
	require.Error(t, err)
}
