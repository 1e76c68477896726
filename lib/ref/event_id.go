// Copyright 2026 The Keystone Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"fmt"
	"strings"
)

// EventID is a validated Matrix event ID.
//
// Events minted by this server use the "$opaque:server" form. Events
// received over federation may use the hash-based "$base64" form of
// newer room versions, so the only structural requirement is the '$'
// sigil followed by at least one character.
//
// EventID is an immutable value type. The zero value is not valid;
// use IsZero to check.
type EventID struct {
	id string
}

// ParseEventID validates and wraps a raw Matrix event ID string.
func ParseEventID(raw string) (EventID, error) {
	if raw == "" {
		return EventID{}, fmt.Errorf("empty event ID")
	}
	if raw[0] != '$' {
		return EventID{}, fmt.Errorf("event ID must start with '$': %q", raw)
	}
	if len(raw) < 2 {
		return EventID{}, fmt.Errorf("event ID has no content after '$': %q", raw)
	}
	return EventID{id: raw}, nil
}

// MustParseEventID is like ParseEventID but panics on error.
func MustParseEventID(raw string) EventID {
	e, err := ParseEventID(raw)
	if err != nil {
		panic(fmt.Sprintf("ref.MustParseEventID(%q): %v", raw, err))
	}
	return e
}

// NewEventID builds an event ID from an opaque local part and the
// server that minted it: "$local:server".
func NewEventID(local string, server ServerName) EventID {
	return EventID{id: "$" + local + ":" + server.name}
}

// String returns the full event ID string.
func (e EventID) String() string { return e.id }

// IsZero reports whether the EventID is the zero value (uninitialized).
func (e EventID) IsZero() bool { return e.id == "" }

// Server returns the server part of a "$local:server" event ID, or the
// zero ServerName for hash-based IDs.
func (e EventID) Server() ServerName {
	index := strings.IndexByte(e.id, ':')
	if index < 0 {
		return ServerName{}
	}
	server := e.id[index+1:]
	if validateServer(server) != nil {
		return ServerName{}
	}
	return ServerName{name: server}
}

// MarshalText implements encoding.TextMarshaler.
func (e EventID) MarshalText() ([]byte, error) {
	return []byte(e.id), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. An empty input
// produces the zero value.
func (e *EventID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*e = EventID{}
		return nil
	}
	parsed, err := ParseEventID(string(data))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}
