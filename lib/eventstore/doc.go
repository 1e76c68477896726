// Copyright 2026 The Keystone Authors
// SPDX-License-Identifier: Apache-2.0

// Package eventstore owns event identity and the append-only event
// stream.
//
// Local events go through three steps before they are visible:
//
//  1. [Store.Populate] stamps a naked event with an id, room, origin,
//     timestamp, parents, depth and auth events.
//  2. [Store.HashAndSign] computes the sha256 content hash and signs
//     the redacted projection with the server key. Events received as
//     templates from remote servers use [Store.Finalize] instead, which
//     stamps identity and then hashes and signs.
//  3. [Store.Append] runs the filter observers, assigns the next dense
//     stream index, indexes the event by id, and runs the listeners.
//
// Appends are serialized; lookups by id and by index are lock-free and
// see an event as soon as Append assigns its index. Observers run
// synchronously on the appending goroutine in registration order, and
// must not call Append themselves. An observer that fails or panics is
// logged and skipped; the append still completes.
package eventstore
