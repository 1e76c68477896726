// Copyright 2026 The Keystone Authors
// SPDX-License-Identifier: Apache-2.0

package eventstore

import (
	"encoding/base64"
	"math/rand/v2"
	"strconv"
	"sync"

	"github.com/keystone-hs/keystone/lib/clock"
	"github.com/keystone-hs/keystone/lib/ref"
)

const (
	idSuffixLength = 4
	idLetters      = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// idAllocator mints "$<base64(ms + letters)>:<server>" ids. Uniqueness
// holds within the process: ids already issued in the current
// millisecond are remembered and redrawn. Across processes collisions
// are only unlikely.
type idAllocator struct {
	clock clock.Clock

	mu        sync.Mutex
	currentMS int64
	issued    map[string]struct{}
}

func newIDAllocator(clk clock.Clock) *idAllocator {
	return &idAllocator{clock: clk, issued: make(map[string]struct{})}
}

func (a *idAllocator) allocate(server ref.ServerName) ref.EventID {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.clock.Now().UnixMilli()
	if now != a.currentMS {
		a.currentMS = now
		clear(a.issued)
	}

	prefix := strconv.FormatInt(now, 10)
	for {
		local := prefix + randomLetters(idSuffixLength)
		if _, seen := a.issued[local]; seen {
			continue
		}
		a.issued[local] = struct{}{}
		return ref.NewEventID(base64.RawURLEncoding.EncodeToString([]byte(local)), server)
	}
}

func randomLetters(n int) string {
	letters := make([]byte, n)
	for index := range letters {
		letters[index] = idLetters[rand.IntN(len(idLetters))]
	}
	return string(letters)
}

// AllocateID mints a fresh event id for origin.
func (s *Store) AllocateID(origin ref.ServerName) ref.EventID {
	return s.ids.allocate(origin)
}
