// Copyright 2026 The Keystone Authors
// SPDX-License-Identifier: Apache-2.0

// Package store persists the durable part of a room: its id and the
// extremities of its event graph. Everything else about a room is
// rebuilt from the event store when the room is loaded.
//
// Two implementations exist: [Memory] for tests and development, and
// [SQLite] for a real deployment. Both are last-write-wins per room id.
package store

import (
	"context"
	"slices"

	"github.com/keystone-hs/keystone/lib/ref"
)

// RoomRecord is the persisted form of a room.
type RoomRecord struct {
	ID          ref.RoomID
	Extremities []ref.EventID
}

// Clone returns a record that shares no memory with r.
func (r RoomRecord) Clone() RoomRecord {
	return RoomRecord{ID: r.ID, Extremities: slices.Clone(r.Extremities)}
}

// Store is the room persistence collaborator.
type Store interface {
	// FindRoom returns the record for id, or an errkind.NotFound error.
	FindRoom(ctx context.Context, id ref.RoomID) (RoomRecord, error)

	// PutRoom inserts or replaces a record.
	PutRoom(ctx context.Context, record RoomRecord) error

	// ListRooms returns every record, ordered by room id.
	ListRooms(ctx context.Context) ([]RoomRecord, error)
}
