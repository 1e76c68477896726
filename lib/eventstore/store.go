// Copyright 2026 The Keystone Authors
// SPDX-License-Identifier: Apache-2.0

package eventstore

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/keystone-hs/keystone/lib/clock"
	"github.com/keystone-hs/keystone/lib/errkind"
	"github.com/keystone-hs/keystone/lib/event"
	"github.com/keystone-hs/keystone/lib/ref"
	"github.com/keystone-hs/keystone/lib/signing"
)

// Entry is a stored event and its position in the stream.
type Entry struct {
	Event *event.Event
	Index int64
}

// Filter observes an event before it is committed. Returned errors are
// logged; filters cannot veto an append.
type Filter func(*event.Event) error

// Listener observes an event after it is committed.
type Listener func(Entry) error

// Config configures a Store.
type Config struct {
	// Signer signs every local event. Required.
	Signer signing.Signer

	// Clock supplies origin_server_ts and id timestamps. Defaults to
	// the real clock.
	Clock clock.Clock

	// Logger defaults to a discarding logger.
	Logger *slog.Logger

	// Registerer receives the store's metrics. Nil disables
	// registration.
	Registerer prometheus.Registerer
}

// Store is the process-wide event store.
type Store struct {
	signer  signing.Signer
	clock   clock.Clock
	logger  *slog.Logger
	ids     *idAllocator
	metrics *metrics

	appendMu sync.Mutex
	count    atomic.Int64
	byID     sync.Map // string -> *Entry
	byIndex  sync.Map // int64 -> *Entry

	observersMu sync.RWMutex
	filters     []Filter
	listeners   []Listener
}

// New creates an empty Store.
func New(config Config) (*Store, error) {
	if config.Signer == nil {
		return nil, errors.New("eventstore: Signer is required")
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	metrics, err := newMetrics(config.Registerer)
	if err != nil {
		return nil, fmt.Errorf("eventstore: %w", err)
	}
	return &Store{
		signer:  config.Signer,
		clock:   config.Clock,
		logger:  config.Logger,
		ids:     newIDAllocator(config.Clock),
		metrics: metrics,
	}, nil
}

// Signer returns the key the store signs with.
func (s *Store) Signer() signing.Signer { return s.signer }

// Append commits a signed event to the stream and returns its entry.
// Appending an id that is already stored fails with InvalidArgument.
func (s *Store) Append(e *event.Event) (Entry, error) {
	if e == nil {
		return Entry{}, fmt.Errorf("eventstore: append nil event: %w", errkind.InvalidArgument)
	}

	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	key := e.ID().String()
	if _, exists := s.byID.Load(key); exists {
		return Entry{}, fmt.Errorf("eventstore: event %s already stored: %w", key, errkind.InvalidArgument)
	}

	s.observersMu.RLock()
	filters := s.filters
	listeners := s.listeners
	s.observersMu.RUnlock()

	for position, filter := range filters {
		s.deliver("filter", position, e, func() error { return filter(e) })
	}

	entry := &Entry{Event: e, Index: s.count.Load()}
	s.byIndex.Store(entry.Index, entry)
	s.byID.Store(key, entry)
	s.count.Add(1)
	s.metrics.appends.Inc()
	s.metrics.streamLength.Set(float64(entry.Index + 1))

	s.logger.Debug("event appended",
		"event_id", key,
		"event_type", e.Type(),
		"room_id", e.RoomID().String(),
		"stream_index", entry.Index,
	)

	for position, listener := range listeners {
		s.deliver("listener", position, e, func() error { return listener(*entry) })
	}
	return *entry, nil
}

// deliver runs one observer, isolating its failures.
func (s *Store) deliver(channel string, position int, e *event.Event, call func() error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			s.metrics.observerFailures.WithLabelValues(channel).Inc()
			s.logger.Error("event observer panicked",
				"channel", channel,
				"observer", position,
				"event_id", e.ID().String(),
				"panic", fmt.Sprint(recovered),
			)
		}
	}()
	if err := call(); err != nil {
		s.metrics.observerFailures.WithLabelValues(channel).Inc()
		s.logger.Warn("event observer failed",
			"channel", channel,
			"observer", position,
			"event_id", e.ID().String(),
			"error", err,
		)
	}
}

// Get returns the entry for id, or NotFound.
func (s *Store) Get(id ref.EventID) (Entry, error) {
	value, ok := s.byID.Load(id.String())
	if !ok {
		return Entry{}, fmt.Errorf("eventstore: event %s: %w", id, errkind.NotFound)
	}
	return *value.(*Entry), nil
}

// GetMany returns the entries for ids in order. It fails with NotFound
// on the first unknown id.
func (s *Store) GetMany(ids []ref.EventID) ([]Entry, error) {
	entries := make([]Entry, 0, len(ids))
	for _, id := range ids {
		entry, err := s.Get(id)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Has reports whether id is stored.
func (s *Store) Has(id ref.EventID) bool {
	_, ok := s.byID.Load(id.String())
	return ok
}

// StreamIndex returns the index the next append will receive, which is
// also the number of stored events.
func (s *Store) StreamIndex() int64 { return s.count.Load() }

// entryAt returns the entry at index. Indices below StreamIndex are
// always present.
func (s *Store) entryAt(index int64) (Entry, bool) {
	value, ok := s.byIndex.Load(index)
	if !ok {
		return Entry{}, false
	}
	return *value.(*Entry), true
}

// AddFilter registers a pre-commit observer.
func (s *Store) AddFilter(filter Filter) {
	s.observersMu.Lock()
	defer s.observersMu.Unlock()
	s.filters = append(s.filters[:len(s.filters):len(s.filters)], filter)
}

// AddListener registers a post-commit observer.
func (s *Store) AddListener(listener Listener) {
	s.observersMu.Lock()
	defer s.observersMu.Unlock()
	s.listeners = append(s.listeners[:len(s.listeners):len(s.listeners)], listener)
}
