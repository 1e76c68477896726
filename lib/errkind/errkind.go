// Copyright 2026 The Keystone Authors
// SPDX-License-Identifier: Apache-2.0

// Package errkind defines the error kinds shared by the homeserver core.
//
// Every package wraps one of these sentinels with its own context, so
// callers classify failures with errors.Is regardless of which layer
// produced them:
//
//	entry, err := events.Get(id)
//	if errors.Is(err, errkind.NotFound) { ... }
//
// Remote failures carry more structure than a sentinel can hold; those
// are the *federation.Error and *federation.TransportError types.
package errkind

import "errors"

var (
	// NotFound reports an unknown event or room id.
	NotFound = errors.New("not found")

	// InvalidArgument reports malformed input: cursor bounds, an empty
	// candidate server list, an unsupported URI scheme, a duplicate
	// append.
	InvalidArgument = errors.New("invalid argument")

	// JoinFailed reports that every candidate server refused or failed
	// a federated join.
	JoinFailed = errors.New("join failed")

	// NotImplemented reports a federation verb that is part of the
	// protocol surface but not supported by this server yet. It is
	// distinct from a network failure: retrying will not help.
	NotImplemented = errors.New("not implemented")
)
