// Package crypto keeps wallet signing keys encrypted at rest.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	solanago "github.com/gagliardetto/solana-go"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// DefaultIterations is the OWASP-recommended minimum for HMAC-SHA256.
	DefaultIterations = 480_000
	// saltLen is the random salt length in bytes.
	saltLen = 16
	// aesKeyLen is the derived AES-256 key length.
	aesKeyLen = 32
	// currentVersion is the encrypted-key JSON schema version.
	currentVersion = 1
)

// ErrEmptyPassword is returned when the key manager has no password.
var ErrEmptyPassword = errors.New("crypto: password must not be empty")

// encryptedKeyJSON is the stored format of an encrypted wallet key.
type encryptedKeyJSON struct {
	Version    int    `json:"version"`
	Iterations int    `json:"iterations"`
	Salt       string `json:"salt"`       // base64 standard encoding
	Nonce      string `json:"nonce"`      // base64 standard encoding
	Ciphertext string `json:"ciphertext"` // base64 standard encoding
}

// KeyManager encrypts and decrypts 64-byte ed25519 wallet secrets with
// PBKDF2-HMAC-SHA256 key derivation and AES-256-GCM.
type KeyManager struct {
	password   []byte
	iterations int
}

// NewKeyManager creates a KeyManager. iterations <= 0 selects DefaultIterations.
func NewKeyManager(password string, iterations int) (*KeyManager, error) {
	if password == "" {
		return nil, ErrEmptyPassword
	}
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	return &KeyManager{password: []byte(password), iterations: iterations}, nil
}

// Encrypt seals a wallet secret and returns the JSON blob to store.
func (m *KeyManager) Encrypt(key solanago.PrivateKey) ([]byte, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("crypto: expected %d-byte key, got %d bytes", ed25519.PrivateKeySize, len(key))
	}

	// Generate random salt and derive AES key.
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: generating salt: %w", err)
	}

	gcm, err := m.cipher(salt, m.iterations)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: generating nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, key, nil)

	out := encryptedKeyJSON{
		Version:    currentVersion,
		Iterations: m.iterations,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
	}

	return json.Marshal(out)
}

// Decrypt opens a blob produced by Encrypt.
func (m *KeyManager) Decrypt(blob []byte) (solanago.PrivateKey, error) {
	var stored encryptedKeyJSON
	if err := json.Unmarshal(blob, &stored); err != nil {
		return nil, fmt.Errorf("crypto: parsing encrypted key JSON: %w", err)
	}
	if stored.Version != currentVersion {
		return nil, fmt.Errorf("crypto: unsupported version %d", stored.Version)
	}
	if stored.Iterations <= 0 {
		return nil, fmt.Errorf("crypto: invalid iteration count %d", stored.Iterations)
	}

	salt, err := base64.StdEncoding.DecodeString(stored.Salt)
	if err != nil {
		return nil, fmt.Errorf("crypto: decoding salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(stored.Nonce)
	if err != nil {
		return nil, fmt.Errorf("crypto: decoding nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(stored.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("crypto: decoding ciphertext: %w", err)
	}

	gcm, err := m.cipher(salt, stored.Iterations)
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("crypto: invalid nonce length %d", len(nonce))
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: decryption failed (wrong password?): %w", err)
	}
	if len(plaintext) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("crypto: decrypted key has %d bytes", len(plaintext))
	}

	return solanago.PrivateKey(plaintext), nil
}

// ImportBase58 validates a base58 wallet secret and encrypts it.
// It returns the wallet address together with the blob.
func (m *KeyManager) ImportBase58(secret string) (string, []byte, error) {
	key, err := solanago.PrivateKeyFromBase58(secret)
	if err != nil {
		return "", nil, fmt.Errorf("crypto: invalid base58 secret: %w", err)
	}
	blob, err := m.Encrypt(key)
	if err != nil {
		return "", nil, err
	}
	return key.PublicKey().String(), blob, nil
}

func (m *KeyManager) cipher(salt []byte, iterations int) (cipher.AEAD, error) {
	derivedKey := pbkdf2.Key(m.password, salt, iterations, aesKeyLen, sha256.New)

	block, err := aes.NewCipher(derivedKey)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating GCM: %w", err)
	}
	return gcm, nil
}
