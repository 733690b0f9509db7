package postgres

import (
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-trade-engine/internal/storage"
)

func TestPoolConfig(t *testing.T) {
	pc, err := poolConfig("postgres://user:pw@localhost:5432/engine?sslmode=disable", PoolConfig{
		MaxConns:         8,
		MinConns:         2,
		MaxConnLifetime:  time.Minute,
		ConnectTimeout:   3 * time.Second,
		StatementTimeout: 1500 * time.Millisecond,
	})
	require.NoError(t, err)

	assert.Equal(t, int32(8), pc.MaxConns)
	assert.Equal(t, int32(2), pc.MinConns)
	assert.Equal(t, time.Minute, pc.MaxConnLifetime)
	assert.Equal(t, 3*time.Second, pc.ConnConfig.ConnectTimeout)
	assert.Equal(t, "1500", pc.ConnConfig.RuntimeParams["statement_timeout"])
}

func TestPoolConfig_ZeroKeepsDefaults(t *testing.T) {
	def, err := poolConfig("postgres://localhost/engine", PoolConfig{})
	require.NoError(t, err)
	_, set := def.ConnConfig.RuntimeParams["statement_timeout"]
	assert.False(t, set)
	assert.Positive(t, def.MaxConns)

	_, err = poolConfig("postgres://localhost:notaport/engine", PoolConfig{})
	assert.Error(t, err)
}

func TestStoreError(t *testing.T) {
	assert.Same(t, storage.ErrNotFound, storeError("get", pgx.ErrNoRows))
	assert.Same(t, storage.ErrDuplicateKey, storeError("insert", &pgconn.PgError{Code: pgerrcode.UniqueViolation}))

	err := storeError("insert transaction", &pgconn.PgError{Code: pgerrcode.ForeignKeyViolation, Message: "wallet missing"})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
	assert.Contains(t, err.Error(), "wallet missing")

	boom := errors.New("conn reset")
	err = storeError("get wallet", boom)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "get wallet: conn reset", err.Error())
}
