// Copyright 2026 The Keystone Authors
// SPDX-License-Identifier: Apache-2.0

package eventstore

import (
	"fmt"

	"github.com/keystone-hs/keystone/lib/errkind"
)

// Cursor walks the stream backward from a starting index. A Cursor is
// not safe for concurrent use. Events appended during a walk do not
// affect it: it only ever moves toward index 0.
type Cursor struct {
	store    *Store
	position int64
}

// GetBackward returns a cursor positioned just before from. from may
// equal StreamIndex to start at the newest event.
func (s *Store) GetBackward(from int64) (*Cursor, error) {
	if count := s.StreamIndex(); from < 0 || from > count {
		return nil, fmt.Errorf("eventstore: cursor start %d outside [0, %d]: %w", from, count, errkind.InvalidArgument)
	}
	return &Cursor{store: s, position: from - 1}, nil
}

// Next returns up to n entries in descending index order and moves the
// cursor past them. It returns an empty slice once index 0 has been
// returned.
func (c *Cursor) Next(n int) ([]Entry, error) {
	if n <= 0 {
		return nil, fmt.Errorf("eventstore: cursor step %d: %w", n, errkind.InvalidArgument)
	}
	stop := max(c.position-int64(n), -1)
	entries := make([]Entry, 0, c.position-stop)
	for ; c.position > stop; c.position-- {
		entry, ok := c.store.entryAt(c.position)
		if !ok {
			return entries, fmt.Errorf("eventstore: stream index %d missing: %w", c.position, errkind.NotFound)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Position returns the index the next call to Next starts from, or -1
// when the cursor is exhausted.
func (c *Cursor) Position() int64 { return c.position }
