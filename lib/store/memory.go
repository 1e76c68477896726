// Copyright 2026 The Keystone Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/keystone-hs/keystone/lib/errkind"
	"github.com/keystone-hs/keystone/lib/ref"
)

// Memory is a Store backed by a map.
type Memory struct {
	mu      sync.RWMutex
	records map[ref.RoomID]RoomRecord
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{records: make(map[ref.RoomID]RoomRecord)}
}

func (m *Memory) FindRoom(_ context.Context, id ref.RoomID) (RoomRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.records[id]
	if !ok {
		return RoomRecord{}, fmt.Errorf("store: room %s: %w", id, errkind.NotFound)
	}
	return record.Clone(), nil
}

func (m *Memory) PutRoom(_ context.Context, record RoomRecord) error {
	if record.ID.IsZero() {
		return fmt.Errorf("store: record without room id: %w", errkind.InvalidArgument)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.ID] = record.Clone()
	return nil
}

func (m *Memory) ListRooms(context.Context) ([]RoomRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	records := make([]RoomRecord, 0, len(m.records))
	for _, record := range m.records {
		records = append(records, record.Clone())
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].ID.String() < records[j].ID.String()
	})
	return records, nil
}
