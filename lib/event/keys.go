// Copyright 2026 The Keystone Authors
// SPDX-License-Identifier: Apache-2.0

package event

// Top-level event keys.
const (
	KeyAuthEvents     = "auth_events"
	KeyContent        = "content"
	KeyDepth          = "depth"
	KeyEventID        = "event_id"
	KeyHashes         = "hashes"
	KeyMembership     = "membership"
	KeyOrigin         = "origin"
	KeyOriginServerTS = "origin_server_ts"
	KeyPrevEvents     = "prev_events"
	KeyPrevState      = "prev_state"
	KeyRoomID         = "room_id"
	KeySender         = "sender"
	KeySignatures     = "signatures"
	KeyStateKey       = "state_key"
	KeyType           = "type"
	KeyUnsigned       = "unsigned"
)

// HashAlgorithm is the only content hash algorithm the server computes.
const HashAlgorithm = "sha256"

// essentialTopLevelKeys are the top-level keys that survive signing-time
// redaction.
var essentialTopLevelKeys = map[string]bool{
	KeyAuthEvents:     true,
	KeyContent:        true,
	KeyDepth:          true,
	KeyEventID:        true,
	KeyHashes:         true,
	KeyMembership:     true,
	KeyOrigin:         true,
	KeyOriginServerTS: true,
	KeyPrevEvents:     true,
	KeyPrevState:      true,
	KeyRoomID:         true,
	KeySender:         true,
	KeySignatures:     true,
	KeyStateKey:       true,
	KeyType:           true,
}

// IsEssentialTopLevelKey reports whether key survives signing-time
// redaction.
func IsEssentialTopLevelKey(key string) bool { return essentialTopLevelKeys[key] }
