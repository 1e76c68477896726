// Copyright 2026 The Keystone Authors
// SPDX-License-Identifier: Apache-2.0

package room

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/keystone-hs/keystone/lib/clock"
	"github.com/keystone-hs/keystone/lib/errkind"
	"github.com/keystone-hs/keystone/lib/event"
	"github.com/keystone-hs/keystone/lib/eventstore"
	"github.com/keystone-hs/keystone/lib/federation"
	"github.com/keystone-hs/keystone/lib/ref"
	"github.com/keystone-hs/keystone/lib/schema"
	"github.com/keystone-hs/keystone/lib/store"
)

// DefaultIdleTimeout is how long a cached room survives without being
// accessed.
const DefaultIdleTimeout = 10 * time.Minute

const (
	roomIDLength      = 16
	roomIDAlphabet    = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	roomIDMaxAttempts = 32
)

// Federation is the part of the federation transport a federated join
// needs. *federation.Transport implements it.
type Federation interface {
	MakeJoin(ctx context.Context, destination ref.ServerName, roomID ref.RoomID, userID ref.UserID) (federation.MakeJoinResponse, error)
	SendJoin(ctx context.Context, destination ref.ServerName, join *event.Event) (federation.SendJoinResponse, error)
}

// Config configures a Manager.
type Config struct {
	// Events is the shared event store. Its signer's domain is the
	// local server name. Required.
	Events *eventstore.Store

	// Store persists room records. Required.
	Store store.Store

	// Federation performs remote joins. Without it JoinFederatedRoom
	// fails with NotImplemented.
	Federation Federation

	// Clock drives idle eviction. Defaults to the real clock.
	Clock clock.Clock

	// IdleTimeout defaults to DefaultIdleTimeout.
	IdleTimeout time.Duration

	Logger     *slog.Logger
	Registerer prometheus.Registerer
}

// CreateOptions describes a room to create.
type CreateOptions struct {
	// Creator founds the room and becomes its admin. Required.
	Creator ref.UserID

	// Preset is one of schema.PresetPublicChat,
	// schema.PresetPrivateChat, schema.PresetTrustedPrivateChat, or
	// empty. Unknown presets are logged and ignored.
	Preset string

	Name  string
	Topic string

	// Invite lists users to invite once the room is set up.
	Invite []ref.UserID
}

type cacheEntry struct {
	room       *Room
	lastAccess time.Time
}

// Manager owns every loaded room. Room creation, cache population and
// the final step of a federated join run under one manager-wide lock,
// so a room id is never materialized twice.
type Manager struct {
	domain      ref.ServerName
	events      *eventstore.Store
	store       store.Store
	federation  Federation
	clock       clock.Clock
	idleTimeout time.Duration
	logger      *slog.Logger
	metrics     *metrics
	bus         *Bus

	mu    sync.Mutex
	rooms map[ref.RoomID]*cacheEntry
}

// NewManager creates a Manager with an empty cache.
func NewManager(config Config) (*Manager, error) {
	if config.Events == nil {
		return nil, errors.New("room: Events is required")
	}
	if config.Store == nil {
		return nil, errors.New("room: Store is required")
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = DefaultIdleTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	metrics, err := newMetrics(config.Registerer)
	if err != nil {
		return nil, fmt.Errorf("room: %w", err)
	}
	return &Manager{
		domain:      config.Events.Signer().Domain(),
		events:      config.Events,
		store:       config.Store,
		federation:  config.Federation,
		clock:       config.Clock,
		idleTimeout: config.IdleTimeout,
		logger:      config.Logger,
		metrics:     metrics,
		bus:         newBus(config.Logger, metrics.listenerFailures),
		rooms:       make(map[ref.RoomID]*cacheEntry),
	}, nil
}

// Domain returns the local server name.
func (m *Manager) Domain() ref.ServerName { return m.domain }

// AddListener registers listener for events injected into any room.
func (m *Manager) AddListener(listener Listener) { m.bus.AddListener(listener) }

// ForAllRooms returns the bus that carries every room's events.
func (m *Manager) ForAllRooms() *Bus { return m.bus }

// Room returns the room with id, loading it from its persisted record
// when it is not cached. Unknown rooms fail with NotFound.
//
// A *Room obtained before an eviction stays usable, but a later
// reload produces a distinct value; callers should not hold rooms
// across long idle periods.
func (m *Manager) Room(ctx context.Context, id ref.RoomID) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.roomLocked(ctx, id)
}

func (m *Manager) roomLocked(ctx context.Context, id ref.RoomID) (*Room, error) {
	m.sweepLocked()
	now := m.clock.Now()
	if entry, ok := m.rooms[id]; ok {
		entry.lastAccess = now
		return entry.room, nil
	}

	record, err := m.store.FindRoom(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("room: loading %s: %w", id, err)
	}
	room := m.newRoom(id)
	load(room, record)
	m.cacheLocked(room)
	m.metrics.loads.Inc()
	m.logger.Debug("room loaded", "room_id", id.String(), "extremities", len(record.Extremities))
	return room, nil
}

// ListRooms returns the ids of every persisted room.
func (m *Manager) ListRooms(ctx context.Context) ([]ref.RoomID, error) {
	records, err := m.store.ListRooms(ctx)
	if err != nil {
		return nil, fmt.Errorf("room: listing rooms: %w", err)
	}
	ids := make([]ref.RoomID, len(records))
	for index, record := range records {
		ids[index] = record.ID
	}
	return ids, nil
}

// Sweep evicts every room idle for at least the idle timeout and
// returns how many were evicted. Room lookups sweep as well; Sweep
// exists for callers that want eviction without traffic.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sweepLocked()
}

func (m *Manager) sweepLocked() int {
	now := m.clock.Now()
	evicted := 0
	for id, entry := range m.rooms {
		if now.Sub(entry.lastAccess) >= m.idleTimeout {
			delete(m.rooms, id)
			evicted++
		}
	}
	if evicted > 0 {
		m.metrics.evictions.Add(float64(evicted))
		m.metrics.cached.Set(float64(len(m.rooms)))
		m.logger.Debug("idle rooms evicted", "evicted", evicted, "cached", len(m.rooms))
	}
	return evicted
}

// Cached returns the number of rooms in the cache.
func (m *Manager) Cached() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms)
}

func (m *Manager) cacheLocked(room *Room) {
	m.rooms[room.ID()] = &cacheEntry{room: room, lastAccess: m.clock.Now()}
	m.metrics.cached.Set(float64(len(m.rooms)))
}

// newRoom creates an empty room wired to the store and to the fan-out
// bus.
func (m *Manager) newRoom(id ref.RoomID) *Room {
	bus := newBus(m.logger, m.metrics.listenerFailures)
	bus.AddListener(func(e *event.Event) error {
		m.bus.Publish(e)
		return nil
	})
	return newRoom(id, m.events, m.logger, bus, func(ctx context.Context, record store.RoomRecord) error {
		return m.store.PutRoom(ctx, record)
	})
}

// CreateRoom founds a new local room. It injects, in order: the create
// event, the creator's join, power levels with the creator as admin,
// the preset's join rule and history visibility, the name and topic
// when set, and one invite per invitee. The trusted private chat
// preset additionally raises every invitee to the creator's level.
func (m *Manager) CreateRoom(ctx context.Context, options CreateOptions) (*Room, error) {
	if options.Creator.IsZero() {
		return nil, fmt.Errorf("room: creating a room needs a creator: %w", errkind.InvalidArgument)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id, err := m.allocateRoomIDLocked(ctx)
	if err != nil {
		return nil, err
	}
	// The record is written once the whole genesis sequence is in, so a
	// failure part way never leaves a partial room behind.
	room := m.newRoom(id)
	persist := room.persist
	room.persist = nil
	for _, naked := range m.genesis(options) {
		if _, err := room.Inject(ctx, naked); err != nil {
			return nil, fmt.Errorf("room: creating %s: %w", id, err)
		}
	}
	room.persist = persist
	if err := room.save(ctx); err != nil {
		return nil, fmt.Errorf("room: creating %s: %w", id, err)
	}
	m.cacheLocked(room)
	m.metrics.created.Inc()
	m.logger.Info("room created",
		"room_id", id.String(),
		"creator", options.Creator.String(),
		"preset", options.Preset,
		"invited", len(options.Invite),
	)
	return room, nil
}

func (m *Manager) genesis(options CreateOptions) []event.NakedEvent {
	creator := options.Creator
	levels := schema.NewPowerLevels().Defaults().SetUser(creator, schema.LevelAdmin).MustBuild()
	sequence := []event.NakedEvent{
		event.NewCreate(creator),
		event.NewMembership(creator, creator, schema.MembershipJoin),
		event.NewPowerLevels(creator, levels),
	}

	switch options.Preset {
	case "":
	case schema.PresetPublicChat:
		sequence = append(sequence,
			event.NewJoinRules(creator, schema.JoinRulePublic),
			event.NewHistoryVisibility(creator, schema.HistoryVisibilityShared),
		)
	case schema.PresetPrivateChat:
		sequence = append(sequence,
			event.NewJoinRules(creator, schema.JoinRuleInvite),
			event.NewHistoryVisibility(creator, schema.HistoryVisibilityShared),
		)
	case schema.PresetTrustedPrivateChat:
		sequence = append(sequence,
			event.NewJoinRules(creator, schema.JoinRuleInvite),
			event.NewHistoryVisibility(creator, schema.HistoryVisibilityShared),
		)
		if len(options.Invite) > 0 {
			promoted := schema.PowerLevelsFrom(levels)
			for _, invitee := range options.Invite {
				promoted.SetUser(invitee, levels.ForUser(creator))
			}
			sequence = append(sequence, event.NewPowerLevels(creator, promoted.MustBuild()))
		}
	default:
		m.logger.Warn("ignoring unknown room preset", "preset", options.Preset)
	}

	if options.Name != "" {
		sequence = append(sequence, event.NewName(creator, options.Name))
	}
	if options.Topic != "" {
		sequence = append(sequence, event.NewTopic(creator, options.Topic))
	}
	for _, invitee := range options.Invite {
		sequence = append(sequence, event.NewMembership(creator, invitee, schema.MembershipInvite))
	}
	return sequence
}

// allocateRoomIDLocked picks a random room id that is neither cached
// nor persisted.
func (m *Manager) allocateRoomIDLocked(ctx context.Context) (ref.RoomID, error) {
	for range roomIDMaxAttempts {
		local := make([]byte, roomIDLength)
		for index := range local {
			local[index] = roomIDAlphabet[rand.IntN(len(roomIDAlphabet))]
		}
		id := ref.NewRoomID(string(local), m.domain)
		if _, cached := m.rooms[id]; cached {
			continue
		}
		_, err := m.store.FindRoom(ctx, id)
		if errors.Is(err, errkind.NotFound) {
			return id, nil
		}
		if err != nil {
			return ref.RoomID{}, fmt.Errorf("room: checking id %s: %w", id, err)
		}
	}
	return ref.RoomID{}, fmt.Errorf("room: no free room id after %d attempts", roomIDMaxAttempts)
}

// DiscoverRoom materializes a room learned through federation from the
// state and auth chain a resident server returned, with seed as its
// sole extremity. The room is persisted and cached, replacing any
// cached room with the same id.
func (m *Manager) DiscoverRoom(ctx context.Context, id ref.RoomID, state, authChain []*event.Event, seed *event.Event) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.discoverLocked(ctx, id, state, authChain, seed)
}

func (m *Manager) discoverLocked(ctx context.Context, id ref.RoomID, state, authChain []*event.Event, seed *event.Event) (*Room, error) {
	room := m.newRoom(id)
	if err := reconstruct(room, state, authChain, seed); err != nil {
		return nil, err
	}
	if err := m.store.PutRoom(ctx, room.Record()); err != nil {
		return nil, fmt.Errorf("room: saving %s: %w", id, err)
	}
	m.cacheLocked(room)
	m.logger.Info("room discovered",
		"room_id", id.String(),
		"state_events", len(state),
		"auth_chain", len(authChain),
		"seed", seed.ID().String(),
	)
	return room, nil
}

// JoinFederatedRoom joins userID to the room an alias lookup resolved
// to. A room that already exists locally is returned as is. Otherwise
// each candidate server from the lookup, minus the local domain and
// with the answering source first, is asked in turn to make and accept
// the join; the first success is reconstructed into a local room.
//
// An empty candidate list fails with InvalidArgument before any remote
// call. When every candidate fails the error matches JoinFailed and
// carries each candidate's failure.
func (m *Manager) JoinFederatedRoom(ctx context.Context, lookup federation.AliasLookup, userID ref.UserID) (*Room, error) {
	existing, err := m.Room(ctx, lookup.RoomID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, errkind.NotFound) {
		return nil, err
	}

	candidates := joinCandidates(lookup, m.domain)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("room: joining %s: no remote server to join through: %w", lookup.RoomID, errkind.InvalidArgument)
	}
	if m.federation == nil {
		return nil, fmt.Errorf("room: joining %s: federation is not configured: %w", lookup.RoomID, errkind.NotImplemented)
	}

	failures := []error{errkind.JoinFailed}
	for _, server := range candidates {
		room, err := m.joinVia(ctx, server, lookup.RoomID, userID)
		if err == nil {
			m.metrics.joins.WithLabelValues("joined").Inc()
			m.logger.Info("joined federated room",
				"room_id", lookup.RoomID.String(),
				"user_id", userID.String(),
				"server", server.String(),
			)
			return room, nil
		}
		m.metrics.joins.WithLabelValues("failed").Inc()
		m.logger.Warn("federated join through candidate failed",
			"room_id", lookup.RoomID.String(),
			"server", server.String(),
			"error", err,
		)
		failures = append(failures, fmt.Errorf("%s: %w", server, err))
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("room: joining %s: %w", lookup.RoomID, errors.Join(failures...))
}

func (m *Manager) joinVia(ctx context.Context, server ref.ServerName, roomID ref.RoomID, userID ref.UserID) (*Room, error) {
	template, err := m.federation.MakeJoin(ctx, server, roomID, userID)
	if err != nil {
		return nil, err
	}
	if template.Event == nil {
		return nil, errors.New("make_join returned no event template")
	}
	join, err := m.events.Finalize(template.Event)
	if err != nil {
		return nil, err
	}
	if join.RoomID() != roomID || join.Sender() != userID {
		return nil, fmt.Errorf("make_join template is for %s in %s, not %s in %s",
			join.Sender(), join.RoomID(), userID, roomID)
	}

	response, err := m.federation.SendJoin(ctx, server, join)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, err := m.roomLocked(ctx, roomID); err == nil {
		return existing, nil
	}
	return m.discoverLocked(ctx, roomID, response.State, response.AuthChain, join)
}

// joinCandidates lists the servers to try for a join: the lookup's
// servers without duplicates or the local domain, with the lookup
// source moved to the front when it is one of them.
func joinCandidates(lookup federation.AliasLookup, local ref.ServerName) []ref.ServerName {
	candidates := make([]ref.ServerName, 0, len(lookup.Servers))
	for _, server := range lookup.Servers {
		if server == local || slices.Contains(candidates, server) {
			continue
		}
		candidates = append(candidates, server)
	}
	if position := slices.Index(candidates, lookup.Source); position > 0 {
		source := candidates[position]
		candidates = slices.Delete(candidates, position, position+1)
		candidates = slices.Insert(candidates, 0, source)
	}
	return candidates
}
