// Package identity manages the validator's long-term ed25519 signing
// keypair, stored on disk as a hex-encoded file with owner-only
// permissions (§6 "File-on-disk formats").
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidKeySize is returned when a key file's decoded content is not a
// valid ed25519 private key.
var ErrInvalidKeySize = errors.New("identity: invalid ed25519 key size")

// Identity is a validator's long-term signing keypair.
type Identity struct {
	PrivateKey ed25519.PrivateKey
	PublicKey  ed25519.PublicKey
}

// Sign signs data with the long-term private key.
func (id *Identity) Sign(data []byte) []byte {
	return ed25519.Sign(id.PrivateKey, data)
}

// Verify checks a signature made with this identity's public key.
func (id *Identity) Verify(data, sig []byte) bool {
	return ed25519.Verify(id.PublicKey, data, sig)
}

// LoadOrGenerate loads the ed25519 key at keyPath, generating and
// persisting a fresh one (mode 0600) if none exists yet.
func LoadOrGenerate(keyPath string) (*Identity, error) {
	if keyPath == "" {
		return nil, errors.New("identity: key path must not be empty")
	}

	if err := os.MkdirAll(filepath.Dir(keyPath), 0700); err != nil {
		return nil, fmt.Errorf("create key directory: %w", err)
	}

	if _, err := os.Stat(keyPath); errors.Is(err, os.ErrNotExist) {
		return generate(keyPath)
	} else if err != nil {
		return nil, fmt.Errorf("stat key file: %w", err)
	}
	return load(keyPath)
}

func generate(keyPath string) (*Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 key: %w", err)
	}
	if err := os.WriteFile(keyPath, []byte(hex.EncodeToString(priv)), 0600); err != nil {
		return nil, fmt.Errorf("write key file %s: %w", keyPath, err)
	}
	return &Identity{PrivateKey: priv, PublicKey: pub}, nil
}

func load(keyPath string) (*Identity, error) {
	data, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("read key file %s: %w", keyPath, err)
	}
	raw, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("decode key file %s: %w", keyPath, err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidKeySize, len(raw), ed25519.PrivateKeySize)
	}
	priv := ed25519.PrivateKey(raw)
	pub := priv.Public().(ed25519.PublicKey)
	return &Identity{PrivateKey: priv, PublicKey: pub}, nil
}
