// Copyright 2026 The Keystone Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides strongly typed, immutable identifiers for the
// entities a homeserver handles: events, rooms, users, room aliases,
// and server names.
//
// All constructors validate their inputs and return errors for
// malformed identifiers. Once constructed, a ref is immutable and its
// accessors return pre-validated strings. JSON marshaling uses the full
// Matrix form ("$local:server", "!local:server", "@local:server",
// "#local:server", "server") via encoding.TextMarshaler, so refs can be
// used directly as struct fields and map keys in wire types.
package ref
