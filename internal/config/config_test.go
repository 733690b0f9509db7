package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	assert.Equal(t, int64(100), cfg.Trade.FeeBps)
	assert.Equal(t, 3, cfg.Trade.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Trade.ResendInterval.Duration)
	assert.Equal(t, 15, cfg.Jito.MaxPolls)
	assert.Equal(t, 15, cfg.Dispatch.SwapWorkers)
	assert.Equal(t, 5, cfg.Dispatch.NotificationWorkers)
	assert.Equal(t, int32(20), cfg.Postgres.MaxConns)
	assert.Equal(t, 5*time.Second, cfg.Postgres.ConnectTimeout.Duration)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.toml")
	content := `
log_level = "debug"

[trade]
fee_address = "FeeAddr111"
router_program_id = "Router111"
poll_interval = "500ms"

[jito]
max_polls = 3
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("POSTGRES_DSN", "postgres://localhost/test")
	t.Setenv("PK_SALT", "secret")
	t.Setenv("POOL_API_URL", "http://pools")
	t.Setenv("JITO_MAX_POLLS", "7")
	t.Setenv("POSTGRES_MAX_CONNS", "8")
	t.Setenv("POSTGRES_STATEMENT_TIMEOUT", "3s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "FeeAddr111", cfg.Trade.FeeAddress)
	assert.Equal(t, 500*time.Millisecond, cfg.Trade.PollInterval.Duration)
	// Environment wins over the file
	assert.Equal(t, 7, cfg.Jito.MaxPolls)
	assert.Equal(t, int32(8), cfg.Postgres.MaxConns)
	assert.Equal(t, 3*time.Second, cfg.Postgres.StatementTimeout.Duration)
	// Untouched defaults survive
	assert.Equal(t, 2*time.Second, cfg.Trade.ResendInterval.Duration)

	require.NoError(t, cfg.Validate())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestValidate_ReportsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.LogLevel = "verbose"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log_level")
	assert.Contains(t, err.Error(), "fee_address")
	assert.Contains(t, err.Error(), "postgres")
	assert.Contains(t, err.Error(), "key_password")
}

func TestValidate_PostgresPoolBounds(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.DSN = "postgres://localhost/test"
	cfg.Postgres.MinConns = 30

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "min_conns")
}

func TestValidate_MemoryBackends(t *testing.T) {
	cfg := Defaults()
	cfg.Trade.FeeAddress = "FeeAddr111"
	cfg.Trade.RouterProgramID = "Router111"
	cfg.PoolAPI.BaseURL = "http://pools"
	cfg.Security.KeyPassword = "secret"
	cfg.Storage = "memory"
	cfg.Dispatch.Backend = "memory"
	require.NoError(t, cfg.Validate())

	cfg.Storage = "sqlite"
	cfg.Dispatch.Backend = "kafka"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown storage")
	assert.Contains(t, err.Error(), "unknown backend")
}
