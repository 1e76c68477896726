// Copyright 2026 The Keystone Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/keystone-hs/keystone/lib/canonicaljson"
)

// ContentHash computes the sha256 content hash of an event object:
// the canonical JSON of the object without hashes, signatures and
// unsigned, encoded as unpadded standard base64.
func ContentHash(object map[string]any) (string, error) {
	stripped := make(map[string]any, len(object))
	for key, value := range object {
		switch key {
		case KeyHashes, KeySignatures, KeyUnsigned:
			continue
		}
		stripped[key] = value
	}
	encoded, err := canonicaljson.Marshal(stripped)
	if err != nil {
		return "", fmt.Errorf("hashing event: %w", err)
	}
	sum := sha256.Sum256(encoded)
	return base64.RawStdEncoding.EncodeToString(sum[:]), nil
}

// SigningBytes returns the bytes a server signs for an event object:
// the canonical JSON of its redacted projection with signatures and
// unsigned removed.
func SigningBytes(object map[string]any) ([]byte, error) {
	reduced := Redact(object)
	delete(reduced, KeySignatures)
	delete(reduced, KeyUnsigned)
	encoded, err := canonicaljson.Marshal(reduced)
	if err != nil {
		return nil, fmt.Errorf("encoding event for signing: %w", err)
	}
	return encoded, nil
}
