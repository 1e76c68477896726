// Copyright 2026 The Keystone Authors
// SPDX-License-Identifier: Apache-2.0

package room

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/keystone-hs/keystone/lib/errkind"
	"github.com/keystone-hs/keystone/lib/event"
	"github.com/keystone-hs/keystone/lib/eventstore"
	"github.com/keystone-hs/keystone/lib/ref"
	"github.com/keystone-hs/keystone/lib/store"
)

// persistFunc saves a room's durable record after a mutation.
type persistFunc func(context.Context, store.RoomRecord) error

// Room is the aggregate over one room's event graph.
//
// Inject is serialized per room: the extremities read to parent a new
// event and the extremities written after it are updated under one
// lock, so two concurrent injections never fork the graph locally.
type Room struct {
	id      ref.RoomID
	events  *eventstore.Store
	logger  *slog.Logger
	persist persistFunc
	bus     *Bus

	mu          sync.RWMutex
	extremities mapset.Set[ref.EventID]
	state       *State

	// pending holds committed events in stream order until delivered.
	// Only the holder of delivery drains it.
	pendingMu sync.Mutex
	pending   []*event.Event
	delivery  sync.Mutex
}

func newRoom(id ref.RoomID, events *eventstore.Store, logger *slog.Logger, bus *Bus, persist persistFunc) *Room {
	return &Room{
		id:          id,
		events:      events,
		logger:      logger.With("room_id", id.String()),
		persist:     persist,
		bus:         bus,
		extremities: mapset.NewThreadUnsafeSet[ref.EventID](),
		state:       emptyState(),
	}
}

// ID returns the room id.
func (r *Room) ID() ref.RoomID { return r.id }

// Extremities returns the current graph frontier ordered by stream
// index. Ids not present in the event store sort last, by id.
func (r *Room) Extremities() []ref.EventID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.orderedExtremitiesLocked()
}

// State returns the current state snapshot. The snapshot is immutable;
// later injections produce a new one.
func (r *Room) State() *State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Record returns the room's durable record.
func (r *Room) Record() store.RoomRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return store.RoomRecord{ID: r.id, Extremities: r.orderedExtremitiesLocked()}
}

// AddListener registers listener for every event later injected into
// this room. Events reach listeners in stream order, one at a time. A
// listener may read the room but must not inject into it.
func (r *Room) AddListener(listener Listener) { r.bus.AddListener(listener) }

// Inject creates a new event from naked: it is parented on the current
// extremities, authorized against the current state, hashed, signed and
// appended to the event store. The event then replaces its parents as
// the room's frontier and, when it is a state event, updates the state.
//
// When saving the room record fails after the event was committed,
// Inject returns both the event and the error.
func (r *Room) Inject(ctx context.Context, naked event.NakedEvent) (*event.Event, error) {
	r.mu.Lock()
	committed, err := r.injectLocked(ctx, naked)
	if committed != nil {
		r.pendingMu.Lock()
		r.pending = append(r.pending, committed)
		r.pendingMu.Unlock()
	}
	r.mu.Unlock()
	if committed != nil {
		r.deliver()
	}
	return committed, err
}

// deliver publishes queued events until none are left. An event queued
// by a concurrent Inject is published by whichever caller drains first.
func (r *Room) deliver() {
	r.delivery.Lock()
	defer r.delivery.Unlock()
	for {
		r.pendingMu.Lock()
		if len(r.pending) == 0 {
			r.pendingMu.Unlock()
			return
		}
		next := r.pending[0]
		r.pending[0] = nil
		r.pending = r.pending[1:]
		r.pendingMu.Unlock()
		r.bus.Publish(next)
	}
}

func (r *Room) injectLocked(ctx context.Context, naked event.NakedEvent) (*event.Event, error) {
	parents, err := r.events.GetMany(r.orderedExtremitiesLocked())
	if err != nil {
		return nil, fmt.Errorf("room %s: resolving extremities: %w", r.id, err)
	}
	parentEvents := make([]*event.Event, len(parents))
	for index, parent := range parents {
		parentEvents[index] = parent.Event
	}

	entry, err := r.events.Send(naked, r.id, r.state, parentEvents)
	if err != nil {
		return nil, fmt.Errorf("room %s: %w", r.id, err)
	}
	r.advanceLocked(entry.Event)

	r.logger.Debug("event injected",
		"event_id", entry.Event.ID().String(),
		"event_type", entry.Event.Type(),
		"stream_index", entry.Index,
	)

	if err := r.persistLocked(ctx); err != nil {
		return entry.Event, err
	}
	return entry.Event, nil
}

// advanceLocked makes e a child of every extremity it references.
func (r *Room) advanceLocked(e *event.Event) {
	for _, parent := range e.PrevEvents() {
		r.extremities.Remove(parent)
	}
	r.extremities.Add(e.ID())
	r.state = r.state.with(e)
}

// save writes the room's current record.
func (r *Room) save(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.persistLocked(ctx)
}

func (r *Room) persistLocked(ctx context.Context) error {
	if r.persist == nil {
		return nil
	}
	record := store.RoomRecord{ID: r.id, Extremities: r.orderedExtremitiesLocked()}
	if err := r.persist(ctx, record); err != nil {
		return fmt.Errorf("room %s: saving record: %w", r.id, err)
	}
	return nil
}

func (r *Room) orderedExtremitiesLocked() []ref.EventID {
	type positioned struct {
		id    ref.EventID
		index int64
	}
	items := make([]positioned, 0, r.extremities.Cardinality())
	for _, id := range r.extremities.ToSlice() {
		index := int64(-1)
		if entry, err := r.events.Get(id); err == nil {
			index = entry.Index
		}
		items = append(items, positioned{id: id, index: index})
	}
	slices.SortFunc(items, func(a, b positioned) int {
		if (a.index < 0) != (b.index < 0) {
			if a.index < 0 {
				return 1
			}
			return -1
		}
		return cmp.Or(cmp.Compare(a.index, b.index), cmp.Compare(a.id.String(), b.id.String()))
	})
	ids := make([]ref.EventID, len(items))
	for position, item := range items {
		ids[position] = item.id
	}
	return ids
}

// reconstruct builds a room from a snapshot vouched for by a remote
// server: the auth chain and state are indexed as given, and seed
// becomes the sole extremity. Events already in the store are not
// appended again.
func reconstruct(room *Room, state, authChain []*event.Event, seed *event.Event) error {
	if seed == nil {
		return fmt.Errorf("room %s: reconstruction needs a seed event: %w", room.id, errkind.InvalidArgument)
	}
	if seed.RoomID() != room.id {
		return fmt.Errorf("room %s: seed %s belongs to room %s: %w", room.id, seed.ID(), seed.RoomID(), errkind.InvalidArgument)
	}

	indexed := make([]*event.Event, 0, len(authChain)+len(state)+1)
	indexed = append(indexed, byDepth(authChain)...)
	indexed = append(indexed, byDepth(state)...)
	indexed = append(indexed, seed)
	for _, e := range indexed {
		if room.events.Has(e.ID()) {
			continue
		}
		if _, err := room.events.Append(e); err != nil && !errors.Is(err, errkind.InvalidArgument) {
			return fmt.Errorf("room %s: indexing %s: %w", room.id, e.ID(), err)
		}
	}

	snapshot := emptyState()
	for _, e := range byDepth(state) {
		snapshot = snapshot.with(e)
	}
	snapshot = snapshot.with(seed)

	room.mu.Lock()
	defer room.mu.Unlock()
	room.state = snapshot
	room.extremities.Clear()
	room.extremities.Add(seed.ID())
	return nil
}

// load rebuilds a room from its durable record by walking the graph
// back from the recorded extremities. Events missing from the store
// are skipped and reported; the recorded extremities are kept as they
// are.
func load(room *Room, record store.RoomRecord) {
	visited := mapset.NewThreadUnsafeSet[ref.EventID]()
	queue := slices.Clone(record.Extremities)
	var entries []eventstore.Entry
	missing := 0
	for len(queue) > 0 {
		id := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		if !visited.Add(id) {
			continue
		}
		entry, err := room.events.Get(id)
		if err != nil {
			missing++
			continue
		}
		entries = append(entries, entry)
		queue = append(queue, entry.Event.PrevEvents()...)
		queue = append(queue, entry.Event.AuthEvents()...)
	}
	slices.SortFunc(entries, func(a, b eventstore.Entry) int {
		return cmp.Or(cmp.Compare(a.Event.Depth(), b.Event.Depth()), cmp.Compare(a.Index, b.Index))
	})

	snapshot := emptyState()
	for _, entry := range entries {
		if entry.Event.RoomID() == room.id {
			snapshot = snapshot.with(entry.Event)
		}
	}
	if missing > 0 {
		room.logger.Warn("room loaded with events missing from the store",
			"missing", missing,
			"found", len(entries),
		)
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	room.state = snapshot
	room.extremities.Clear()
	room.extremities.Append(record.Extremities...)
}

// byDepth returns events stably sorted by depth.
func byDepth(events []*event.Event) []*event.Event {
	sorted := slices.Clone(events)
	slices.SortStableFunc(sorted, func(a, b *event.Event) int { return cmp.Compare(a.Depth(), b.Depth()) })
	return sorted
}
