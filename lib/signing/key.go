// Copyright 2026 The Keystone Authors
// SPDX-License-Identifier: Apache-2.0

package signing

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/keystone-hs/keystone/lib/ref"
	"github.com/keystone-hs/keystone/lib/secret"
)

// Algorithm is the only signing algorithm the server uses.
const Algorithm = "ed25519"

// Signer produces signatures on behalf of a server.
type Signer interface {
	// Domain is the server name signatures are filed under.
	Domain() ref.ServerName

	// KeyID is "ed25519:<version>".
	KeyID() string

	// Sign returns the unpadded base64 signature of message.
	Sign(message []byte) string
}

// Key is an ed25519 signing key for one server.
type Key struct {
	domain    ref.ServerName
	version   string
	seed      *secret.Buffer
	publicKey ed25519.PublicKey
}

var _ Signer = (*Key)(nil)

// NewKey builds a Key from a 32-byte seed. The seed slice is zeroed.
func NewKey(domain ref.ServerName, version string, seed []byte) (*Key, error) {
	if domain.IsZero() {
		secret.Zero(seed)
		return nil, errors.New("signing key needs a server name")
	}
	if err := validateVersion(version); err != nil {
		secret.Zero(seed)
		return nil, err
	}
	if len(seed) != ed25519.SeedSize {
		secret.Zero(seed)
		return nil, fmt.Errorf("ed25519 seed has %d bytes, want %d", len(seed), ed25519.SeedSize)
	}

	private := ed25519.NewKeyFromSeed(seed)
	publicKey := ed25519.PublicKey(append([]byte(nil), private[ed25519.SeedSize:]...))
	secret.Zero(private)

	protected, err := secret.NewFromBytes(seed)
	if err != nil {
		return nil, fmt.Errorf("protecting signing seed: %w", err)
	}
	return &Key{domain: domain, version: version, seed: protected, publicKey: publicKey}, nil
}

// GenerateKey creates a fresh random key.
func GenerateKey(domain ref.ServerName, version string) (*Key, error) {
	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("generating ed25519 seed: %w", err)
	}
	return NewKey(domain, version, seed)
}

// Domain implements Signer.
func (k *Key) Domain() ref.ServerName { return k.domain }

// Version returns the key version.
func (k *Key) Version() string { return k.version }

// KeyID implements Signer.
func (k *Key) KeyID() string { return Algorithm + ":" + k.version }

// PublicKey returns the verification key.
func (k *Key) PublicKey() ed25519.PublicKey { return k.publicKey }

// Sign implements Signer. It panics if the key has been closed.
func (k *Key) Sign(message []byte) string {
	private := ed25519.NewKeyFromSeed(k.seed.Bytes())
	defer secret.Zero(private)
	return base64.RawStdEncoding.EncodeToString(ed25519.Sign(private, message))
}

// Close wipes the seed.
func (k *Key) Close() error { return k.seed.Close() }

// Verify checks an unpadded base64 signature. Padded input is
// accepted too.
func Verify(publicKey ed25519.PublicKey, message []byte, signature string) error {
	raw, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(signature, "="))
	if err != nil {
		return fmt.Errorf("decoding signature: %w", err)
	}
	if !ed25519.Verify(publicKey, message, raw) {
		return errors.New("signature does not verify")
	}
	return nil
}

func validateVersion(version string) error {
	if version == "" {
		return errors.New("signing key version is empty")
	}
	for _, r := range version {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_') {
			return fmt.Errorf("signing key version %q: only [A-Za-z0-9_] allowed", version)
		}
	}
	return nil
}
