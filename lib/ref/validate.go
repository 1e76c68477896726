// Copyright 2026 The Keystone Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"fmt"
	"strings"
)

// validateServer checks that a Matrix server name is minimally valid:
// non-empty, no control characters, no whitespace, no Matrix sigils.
func validateServer(server string) error {
	if server == "" {
		return fmt.Errorf("server name is empty")
	}
	for i := 0; i < len(server); i++ {
		c := server[i]
		if c <= ' ' || c == '@' || c == '#' || c == '!' || c == '$' || c == '/' {
			return fmt.Errorf("server name %q: invalid character at position %d", server, i)
		}
	}
	return nil
}

// parsePrefixedID extracts localpart and server from a Matrix identifier
// with the given sigil prefix (@ for user IDs, # for room aliases, ! for
// room IDs). The server is everything after the first ':' so that
// "host:port" server names survive.
func parsePrefixedID(identifier string, sigil byte, kind string) (localpart, server string, err error) {
	if len(identifier) < 2 || identifier[0] != sigil {
		return "", "", fmt.Errorf("invalid %s %q: must start with %c", kind, identifier, sigil)
	}
	colonIndex := strings.IndexByte(identifier[1:], ':')
	if colonIndex < 0 {
		return "", "", fmt.Errorf("invalid %s %q: missing :server", kind, identifier)
	}
	colonIndex++ // adjust for [1:] offset
	if colonIndex < 2 {
		return "", "", fmt.Errorf("invalid %s %q: empty localpart", kind, identifier)
	}
	localpart = identifier[1:colonIndex]
	server = identifier[colonIndex+1:]
	if err := validateServer(server); err != nil {
		return "", "", fmt.Errorf("invalid %s %q: %w", kind, identifier, err)
	}
	return localpart, server, nil
}
