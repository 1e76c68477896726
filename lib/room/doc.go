// Copyright 2026 The Keystone Authors
// SPDX-License-Identifier: Apache-2.0

// Package room holds the per-room aggregate and the manager that owns
// every loaded room.
//
// A [Room] tracks the frontier of its event graph (the extremities) and
// the current state projection, and creates new events through the
// shared [eventstore.Store]. Rooms are never constructed directly by
// callers: the [Manager] creates them, reconstructs them from a
// federated join, or reloads them from their durable [store.RoomRecord]
// when a cached room has been evicted.
//
// Every event injected into any loaded room is published on the
// manager's fan-out [Bus], so a consumer that wants all room traffic
// registers once with [Manager.AddListener] instead of tracking room
// lifetimes.
package room
