// Copyright 2026 The Keystone Authors
// SPDX-License-Identifier: Apache-2.0

package signing

import (
	"testing"

	"github.com/keystone-hs/keystone/lib/event"
)

func TestVerifyEvent(t *testing.T) {
	key, err := NewKey(testDomain, "1", fixedSeed())
	if err != nil {
		t.Fatalf("NewKey: %v", err)
	}
	defer key.Close()

	object := map[string]any{
		event.KeyType:    "m.room.member",
		event.KeyContent: map[string]any{"membership": "join", "displayname": "A"},
	}
	message, err := event.SigningBytes(object)
	if err != nil {
		t.Fatalf("SigningBytes: %v", err)
	}
	object[event.KeySignatures] = map[string]any{
		"example.org": map[string]any{"ed25519:1": key.Sign(message)},
	}

	if err := VerifyEvent(object, "example.org", "ed25519:1", key.PublicKey()); err != nil {
		t.Fatalf("VerifyEvent: %v", err)
	}

	object[event.KeyContent].(map[string]any)["displayname"] = "B"
	if err := VerifyEvent(object, "example.org", "ed25519:1", key.PublicKey()); err != nil {
		t.Errorf("non-essential content change broke the signature: %v", err)
	}

	object[event.KeyContent].(map[string]any)["membership"] = "leave"
	if err := VerifyEvent(object, "example.org", "ed25519:1", key.PublicKey()); err == nil {
		t.Error("essential content change kept the signature valid")
	}

	if err := VerifyEvent(object, "other.org", "ed25519:1", key.PublicKey()); err == nil {
		t.Error("missing signature verified")
	}
}
