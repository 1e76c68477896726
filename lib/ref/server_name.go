// Copyright 2026 The Keystone Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"fmt"
	"net"
	"strconv"
)

// ServerName is a validated Matrix server name (e.g., "example.org",
// "matrix.example.com:8448").
//
// Server names identify homeservers. They appear after the colon in
// every other identifier and name the origin and destination of every
// federation request.
//
// ServerName is an immutable value type. The zero value is not valid;
// use IsZero to check.
type ServerName struct {
	name string
}

// ParseServerName validates and wraps a raw Matrix server name string.
// Returns an error if the string is empty or contains invalid characters
// (control characters, whitespace, Matrix sigils).
func ParseServerName(raw string) (ServerName, error) {
	if err := validateServer(raw); err != nil {
		return ServerName{}, err
	}
	return ServerName{name: raw}, nil
}

// MustParseServerName is like ParseServerName but panics on error. Use
// in tests and static initialization where the input is known-valid.
func MustParseServerName(raw string) ServerName {
	s, err := ParseServerName(raw)
	if err != nil {
		panic(fmt.Sprintf("ref.MustParseServerName(%q): %v", raw, err))
	}
	return s
}

// String returns the server name string (e.g., "example.org").
func (s ServerName) String() string { return s.name }

// IsZero reports whether the ServerName is the zero value (uninitialized).
func (s ServerName) IsZero() bool { return s.name == "" }

// HostPort splits the server name into host and explicit port. The port
// is zero when the server name carries none.
func (s ServerName) HostPort() (host string, port int) {
	host, portString, err := net.SplitHostPort(s.name)
	if err != nil {
		return s.name, 0
	}
	port, err = strconv.Atoi(portString)
	if err != nil {
		return s.name, 0
	}
	return host, port
}

// MarshalText implements encoding.TextMarshaler.
func (s ServerName) MarshalText() ([]byte, error) {
	return []byte(s.name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. An empty input
// produces the zero value.
func (s *ServerName) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*s = ServerName{}
		return nil
	}
	parsed, err := ParseServerName(string(data))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
