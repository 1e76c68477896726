// Copyright 2026 The Keystone Authors
// SPDX-License-Identifier: Apache-2.0

package signing

import (
	"crypto/ed25519"
	"fmt"

	"github.com/keystone-hs/keystone/lib/event"
)

// VerifyEvent checks the signature server placed on an event object
// under keyID.
func VerifyEvent(object map[string]any, server, keyID string, publicKey ed25519.PublicKey) error {
	signatures, _ := object[event.KeySignatures].(map[string]any)
	byKey, _ := signatures[server].(map[string]any)
	signature, ok := byKey[keyID].(string)
	if !ok {
		return fmt.Errorf("event has no %s signature from %s", keyID, server)
	}
	message, err := event.SigningBytes(object)
	if err != nil {
		return err
	}
	if err := Verify(publicKey, message, signature); err != nil {
		return fmt.Errorf("%s signature from %s: %w", keyID, server, err)
	}
	return nil
}
