package brokerapi

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

const (
	tokenKeySize      = 32 // AES-256
	tokenNonceSize    = 12 // GCM standard nonce
	tokenSaltSize     = 16
	tokenKDFIterations = 600000 // PBKDF2-HMAC-SHA256, OWASP minimum
	securePermissions = 0o600
)

// TokenStore persists the brokerage JWT encrypted at rest with AES-256-GCM,
// keyed by a PBKDF2-derived key from a salt the operator supplies out of
// band. In memory-only mode nothing touches disk.
type TokenStore struct {
	path       string
	memoryOnly bool
	saltBase   string

	mu             sync.Mutex
	cachedToken    string
	cachedExpiry   time.Time
}

// NewTokenStore builds a TokenStore. saltBase is ENCRYPTION_KEY_SALT; it must
// be non-empty unless memoryOnly is true.
func NewTokenStore(path, saltBase string, memoryOnly bool) (*TokenStore, error) {
	s := &TokenStore{
		path:       path,
		memoryOnly: memoryOnly,
		saltBase:   saltBase,
	}

	if !memoryOnly {
		if saltBase == "" {
			return nil, fmt.Errorf("brokerapi: ENCRYPTION_KEY_SALT is required unless running memory-only")
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("brokerapi: creating token store directory: %w", err)
		}
	}

	return s, nil
}

type tokenPayload struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *TokenStore) deriveKey() []byte {
	salt := []byte(s.saltBase)
	if len(salt) > tokenSaltSize {
		salt = salt[:tokenSaltSize]
	} else {
		padded := make([]byte, tokenSaltSize)
		copy(padded, salt)
		salt = padded
	}
	return pbkdf2.Key([]byte(s.saltBase), salt, tokenKDFIterations, tokenKeySize, sha256.New)
}

func (s *TokenStore) encrypt(payload tokenPayload) ([]byte, error) {
	plaintext, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshalling token payload: %w", err)
	}

	block, err := aes.NewCipher(s.deriveKey())
	if err != nil {
		return nil, fmt.Errorf("creating AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM mode: %w", err)
	}

	nonce := make([]byte, tokenNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)
	return append(nonce, ciphertext...), nil
}

func (s *TokenStore) decrypt(data []byte) (tokenPayload, error) {
	var payload tokenPayload

	if len(data) < tokenNonceSize {
		return payload, fmt.Errorf("brokerapi: encrypted token file is truncated")
	}
	nonce, ciphertext := data[:tokenNonceSize], data[tokenNonceSize:]

	block, err := aes.NewCipher(s.deriveKey())
	if err != nil {
		return payload, fmt.Errorf("creating AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return payload, fmt.Errorf("creating GCM mode: %w", err)
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return payload, fmt.Errorf("brokerapi: failed to decrypt token data (invalid key or corrupted file): %w", err)
	}

	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return payload, fmt.Errorf("unmarshalling token payload: %w", err)
	}

	return payload, nil
}

// Store encrypts and persists token/expiresAt, atomically replacing any
// existing file. In memory-only mode the token is cached but never written.
func (s *TokenStore) Store(token string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cachedToken = token
	s.cachedExpiry = expiresAt

	if s.memoryOnly {
		return nil
	}

	encrypted, err := s.encrypt(tokenPayload{Token: token, ExpiresAt: expiresAt})
	if err != nil {
		return fmt.Errorf("brokerapi: encrypting token: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, encrypted, securePermissions); err != nil {
		return fmt.Errorf("brokerapi: writing temp token file: %w", err)
	}
	if err := os.Chmod(tmpPath, securePermissions); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("brokerapi: setting token file permissions: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("brokerapi: finalizing token file: %w", err)
	}

	return nil
}

// Load returns the cached or on-disk token if present and unexpired. A
// missing or expired token returns ("", zero time, nil) — not an error.
func (s *TokenStore) Load() (string, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cachedToken != "" && s.cachedExpiry.After(time.Now()) {
		return s.cachedToken, s.cachedExpiry, nil
	}
	s.cachedToken = ""
	s.cachedExpiry = time.Time{}

	if s.memoryOnly {
		return "", time.Time{}, nil
	}

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return "", time.Time{}, nil
	}
	if err != nil {
		return "", time.Time{}, fmt.Errorf("brokerapi: reading token file: %w", err)
	}

	payload, err := s.decrypt(data)
	if err != nil {
		// Corrupted/unreadable store: remove it rather than keep returning errors forever.
		os.Remove(s.path)
		return "", time.Time{}, err
	}

	if payload.Token == "" || payload.ExpiresAt.IsZero() {
		return "", time.Time{}, nil
	}
	if !payload.ExpiresAt.After(time.Now()) {
		os.Remove(s.path)
		return "", time.Time{}, nil
	}

	s.cachedToken = payload.Token
	s.cachedExpiry = payload.ExpiresAt
	return payload.Token, payload.ExpiresAt, nil
}

// Clear deletes the cached token and, unless memory-only, the on-disk file.
func (s *TokenStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cachedToken = ""
	s.cachedExpiry = time.Time{}

	if s.memoryOnly {
		return nil
	}

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("brokerapi: deleting token file: %w", err)
	}
	return nil
}
