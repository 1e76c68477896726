// Copyright 2026 The Keystone Authors
// SPDX-License-Identifier: Apache-2.0

// Package homeserver assembles the protocol core from a validated
// [config.Config]: the signing key, the room record store, the
// federation transport, the event store and the room manager, all
// reporting to one Prometheus registry.
//
// A [Server] is what cmd/keystoned runs. Tests use it to exercise the
// components together the way the daemon wires them.
package homeserver
