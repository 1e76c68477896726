// Copyright 2026 The Keystone Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import "fmt"

// RoomAlias is a validated Matrix room alias (e.g., "#lobby:example.org").
//
// Room aliases are human-readable names that resolve to opaque RoomIDs,
// either locally or through a federation directory query against the
// alias's server.
type RoomAlias struct {
	alias string
}

// ParseRoomAlias validates and wraps a raw Matrix room alias string.
func ParseRoomAlias(raw string) (RoomAlias, error) {
	if _, _, err := parsePrefixedID(raw, '#', "room alias"); err != nil {
		return RoomAlias{}, err
	}
	return RoomAlias{alias: raw}, nil
}

// MustParseRoomAlias is like ParseRoomAlias but panics on error.
func MustParseRoomAlias(raw string) RoomAlias {
	a, err := ParseRoomAlias(raw)
	if err != nil {
		panic(fmt.Sprintf("ref.MustParseRoomAlias(%q): %v", raw, err))
	}
	return a
}

// String returns the full room alias string.
func (a RoomAlias) String() string { return a.alias }

// IsZero reports whether the RoomAlias is the zero value (uninitialized).
func (a RoomAlias) IsZero() bool { return a.alias == "" }

// Server returns the server that owns the alias namespace.
func (a RoomAlias) Server() ServerName {
	if a.alias == "" {
		return ServerName{}
	}
	_, server, _ := parsePrefixedID(a.alias, '#', "room alias")
	return ServerName{name: server}
}

// MarshalText implements encoding.TextMarshaler.
func (a RoomAlias) MarshalText() ([]byte, error) {
	return []byte(a.alias), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. An empty input
// produces the zero value.
func (a *RoomAlias) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*a = RoomAlias{}
		return nil
	}
	parsed, err := ParseRoomAlias(string(data))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
