package rtatoken

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

// LoadSigningKey loads a single Ed25519 private key from the given path,
// once, at startup. The file holds a hex-encoded 64-byte Ed25519 private
// key (seed + public half). If path is empty, a fresh keypair is generated
// for the lifetime of the process — acceptable only for local development,
// since every issued token becomes unverifiable across a restart.
//
// This replaces the source behavior of regenerating a keypair per token,
// which made every subsequent verification fail (see design notes).
func LoadSigningKey(path string) (ed25519.PrivateKey, ed25519.PublicKey, error) {
	if path == "" {
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, nil, fmt.Errorf("generating ephemeral signing key: %w", err)
		}
		return priv, pub, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading signing key %q: %w", path, err)
	}

	decoded, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, nil, fmt.Errorf("decoding signing key %q: %w", path, err)
	}
	if len(decoded) != ed25519.PrivateKeySize {
		return nil, nil, fmt.Errorf("signing key %q: want %d bytes, got %d", path, ed25519.PrivateKeySize, len(decoded))
	}

	priv := ed25519.PrivateKey(decoded)
	pub := priv.Public().(ed25519.PublicKey)
	return priv, pub, nil
}
