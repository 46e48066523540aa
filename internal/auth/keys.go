// Package auth signs members up and in: argon2id password hashes, PASETO
// v4.local session tokens and sessions kept in the local store.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"aidanwoods.dev/go-paseto"
)

// KeyFromHex parses a 64 character hex PASETO v4 symmetric key.
func KeyFromHex(keyHex string) (paseto.V4SymmetricKey, error) {
	keyHex = strings.TrimSpace(keyHex)
	if len(keyHex) != 64 {
		return paseto.V4SymmetricKey{}, fmt.Errorf("token key must be 64 hex characters, got %d", len(keyHex))
	}
	raw, err := hex.DecodeString(keyHex)
	if err != nil {
		return paseto.V4SymmetricKey{}, fmt.Errorf("token key is not valid hex: %w", err)
	}
	key, err := paseto.V4SymmetricKeyFromBytes(raw)
	if err != nil {
		return paseto.V4SymmetricKey{}, fmt.Errorf("invalid token key: %w", err)
	}
	return key, nil
}

// LoadOrGenerateKey returns the key stored at path, creating one on first run
// so tokens survive restarts.
func LoadOrGenerateKey(path string) (paseto.V4SymmetricKey, error) {
	dir := filepath.Dir(path)

	//#nosec G304 -- path is derived from the configured data directory
	if data, err := os.ReadFile(path); err == nil {
		key, err := KeyFromHex(string(data))
		if err != nil {
			return paseto.V4SymmetricKey{}, fmt.Errorf("%s: %w", path, err)
		}
		return key, nil
	} else if !os.IsNotExist(err) {
		return paseto.V4SymmetricKey{}, fmt.Errorf("failed to read token key: %w", err)
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return paseto.V4SymmetricKey{}, fmt.Errorf("failed to generate token key: %w", err)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return paseto.V4SymmetricKey{}, fmt.Errorf("failed to create key directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(raw)), 0o600); err != nil {
		return paseto.V4SymmetricKey{}, fmt.Errorf("failed to save token key: %w", err)
	}
	return paseto.V4SymmetricKeyFromBytes(raw)
}
