package crypto

import (
	"testing"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, password string) *KeyManager {
	t.Helper()
	m, err := NewKeyManager(password, 1000)
	require.NoError(t, err)
	return m
}

func TestKeyManager_EncryptDecrypt(t *testing.T) {
	m := newTestManager(t, "hunter2")

	key, err := solanago.NewRandomPrivateKey()
	require.NoError(t, err)

	blob, err := m.Encrypt(key)
	require.NoError(t, err)
	assert.NotContains(t, string(blob), key.String())

	got, err := m.Decrypt(blob)
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey(), got.PublicKey())
}

func TestKeyManager_WrongPassword(t *testing.T) {
	key, err := solanago.NewRandomPrivateKey()
	require.NoError(t, err)

	blob, err := newTestManager(t, "right").Encrypt(key)
	require.NoError(t, err)

	_, err = newTestManager(t, "wrong").Decrypt(blob)
	assert.Error(t, err)
}

func TestKeyManager_ImportBase58(t *testing.T) {
	m := newTestManager(t, "pw")

	key, err := solanago.NewRandomPrivateKey()
	require.NoError(t, err)

	addr, blob, err := m.ImportBase58(key.String())
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey().String(), addr)

	got, err := m.Decrypt(blob)
	require.NoError(t, err)
	assert.Equal(t, addr, got.PublicKey().String())

	_, _, err = m.ImportBase58("not-a-key")
	assert.Error(t, err)
}

func TestNewKeyManager_EmptyPassword(t *testing.T) {
	_, err := NewKeyManager("", 0)
	assert.ErrorIs(t, err, ErrEmptyPassword)
}
