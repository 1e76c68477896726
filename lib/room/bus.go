// Copyright 2026 The Keystone Authors
// SPDX-License-Identifier: Apache-2.0

package room

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/keystone-hs/keystone/lib/event"
)

// Listener observes an event after a room has committed it. Listeners
// run synchronously on the injecting goroutine; a slow listener delays
// the caller of Inject.
type Listener func(*event.Event) error

// Bus delivers events to listeners in registration order. A listener
// that fails or panics is logged and counted; later listeners still
// run.
type Bus struct {
	logger   *slog.Logger
	failures prometheus.Counter

	mu        sync.RWMutex
	listeners []Listener
}

func newBus(logger *slog.Logger, failures prometheus.Counter) *Bus {
	return &Bus{logger: logger, failures: failures}
}

// AddListener registers listener for every later publication.
func (b *Bus) AddListener(listener Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, listener)
}

// Publish delivers e to every listener.
func (b *Bus) Publish(e *event.Event) {
	b.mu.RLock()
	listeners := b.listeners
	b.mu.RUnlock()

	for position, listener := range listeners {
		b.deliver(position, e, listener)
	}
}

func (b *Bus) deliver(position int, e *event.Event, listener Listener) {
	defer func() {
		if recovered := recover(); recovered != nil {
			b.failures.Inc()
			b.logger.Error("room listener panicked",
				"listener", position,
				"event_id", e.ID().String(),
				"panic", fmt.Sprint(recovered),
			)
		}
	}()
	if err := listener(e); err != nil {
		b.failures.Inc()
		b.logger.Warn("room listener failed",
			"listener", position,
			"event_id", e.ID().String(),
			"error", err,
		)
	}
}
