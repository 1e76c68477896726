// Copyright 2026 The Keystone Authors
// SPDX-License-Identifier: Apache-2.0

// Package signing holds the server's ed25519 signing key and the
// helpers that sign and verify JSON objects and federation requests.
//
// A [Key] is identified as "ed25519:<version>" and belongs to one
// server name. The seed is kept in a [secret.Buffer]. On disk a key is
// a single line:
//
//	ed25519 <version> <unpadded base64 seed>
//
// optionally encrypted to an age X25519 recipient (see [LoadKeyFile]).
package signing
