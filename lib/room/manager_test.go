// Copyright 2026 The Keystone Authors
// SPDX-License-Identifier: Apache-2.0

package room

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/keystone-hs/keystone/lib/errkind"
	"github.com/keystone-hs/keystone/lib/event"
	"github.com/keystone-hs/keystone/lib/federation"
	"github.com/keystone-hs/keystone/lib/ref"
	"github.com/keystone-hs/keystone/lib/schema"
	"github.com/keystone-hs/keystone/lib/signing"
	"github.com/keystone-hs/keystone/lib/store"
)

func TestNewManagerRequiresCollaborators(t *testing.T) {
	if _, err := NewManager(Config{}); err == nil {
		t.Error("NewManager without an event store succeeded")
	}
	server := newTestServer(t, "example.org", nil)
	if _, err := NewManager(Config{Events: server.events}); err == nil {
		t.Error("NewManager without a room store succeeded")
	}
}

func TestCreateRoomInjectsGenesisInOrder(t *testing.T) {
	server := newTestServer(t, "example.org", nil)

	var sequence []string
	server.manager.AddListener(func(e *event.Event) error {
		key, _ := e.StateKey()
		sequence = append(sequence, e.Type()+" "+key)
		return nil
	})

	room := server.createRoom(t, CreateOptions{
		Creator: alice,
		Preset:  schema.PresetPublicChat,
		Name:    "Lobby",
		Topic:   "general chat",
		Invite:  []ref.UserID{bob},
	})

	want := []string{
		"m.room.create ",
		"m.room.member @alice:example.org",
		"m.room.power_levels ",
		"m.room.join_rules ",
		"m.room.history_visibility ",
		"m.room.name ",
		"m.room.topic ",
		"m.room.member @bob:example.org",
	}
	if !slices.Equal(sequence, want) {
		t.Errorf("genesis sequence:\n got %q\nwant %q", sequence, want)
	}

	state := room.State()
	if got := state.JoinRule(); got != schema.JoinRulePublic {
		t.Errorf("join rule = %q, want public", got)
	}
	if got := state.HistoryVisibility(); got != schema.HistoryVisibilityShared {
		t.Errorf("history visibility = %q, want shared", got)
	}
	if got := state.Name(); got != "Lobby" {
		t.Errorf("name = %q, want Lobby", got)
	}
	if got := state.Membership(bob); got != schema.MembershipInvite {
		t.Errorf("bob membership = %q, want invite", got)
	}
	if got := state.PowerLevels().ForUser(alice); got != schema.LevelAdmin {
		t.Errorf("creator level = %d, want %d", got, schema.LevelAdmin)
	}
	if got := state.PowerLevels().ForUser(bob); got != schema.LevelDefault {
		t.Errorf("public chat invitee level = %d, want %d", got, schema.LevelDefault)
	}

	if server.manager.Cached() != 1 {
		t.Errorf("Cached = %d, want 1", server.manager.Cached())
	}
	record, err := server.store.FindRoom(context.Background(), room.ID())
	if err != nil {
		t.Fatalf("FindRoom: %v", err)
	}
	if !slices.Equal(record.Extremities, room.Extremities()) {
		t.Errorf("persisted extremities = %v, room has %v", record.Extremities, room.Extremities())
	}
}

func TestCreateRoomIDFormat(t *testing.T) {
	server := newTestServer(t, "example.org", nil)
	room := server.createRoom(t, CreateOptions{Creator: alice})

	id := room.ID().String()
	if room.ID().Server().String() != "example.org" {
		t.Errorf("room %s is not on the local server", id)
	}
	local := strings.TrimSuffix(strings.TrimPrefix(id, "!"), ":example.org")
	if len(local) != roomIDLength {
		t.Errorf("local part %q has length %d, want %d", local, len(local), roomIDLength)
	}
	for _, r := range local {
		if !strings.ContainsRune(roomIDAlphabet, r) {
			t.Errorf("local part %q contains %q", local, r)
		}
	}
}

func TestCreateRoomPresets(t *testing.T) {
	tests := []struct {
		preset      string
		joinRule    string
		visibility  string
		inviteLevel int64
	}{
		{preset: schema.PresetPrivateChat, joinRule: schema.JoinRuleInvite, visibility: schema.HistoryVisibilityShared, inviteLevel: schema.LevelDefault},
		{preset: schema.PresetTrustedPrivateChat, joinRule: schema.JoinRuleInvite, visibility: schema.HistoryVisibilityShared, inviteLevel: schema.LevelAdmin},
		{preset: "", inviteLevel: schema.LevelDefault},
		{preset: "no_such_preset", inviteLevel: schema.LevelDefault},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("preset=%q", test.preset), func(t *testing.T) {
			server := newTestServer(t, "example.org", nil)
			room := server.createRoom(t, CreateOptions{
				Creator: alice,
				Preset:  test.preset,
				Invite:  []ref.UserID{bob},
			})
			state := room.State()
			if got := state.JoinRule(); got != test.joinRule {
				t.Errorf("join rule = %q, want %q", got, test.joinRule)
			}
			if got := state.HistoryVisibility(); got != test.visibility {
				t.Errorf("history visibility = %q, want %q", got, test.visibility)
			}
			levels := state.PowerLevels()
			if got := levels.ForUser(bob); got != test.inviteLevel {
				t.Errorf("invitee level = %d, want %d", got, test.inviteLevel)
			}
			if got := levels.ForUser(alice); got != schema.LevelAdmin {
				t.Errorf("creator level = %d, want %d", got, schema.LevelAdmin)
			}
		})
	}
}

// recordingStore is a memory store that remembers every record written
// and can be made to refuse writes.
type recordingStore struct {
	*store.Memory

	mu   sync.Mutex
	puts []store.RoomRecord
	err  error
}

func (s *recordingStore) PutRoom(ctx context.Context, record store.RoomRecord) error {
	s.mu.Lock()
	s.puts = append(s.puts, record)
	s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	return s.Memory.PutRoom(ctx, record)
}

func newRecordingManager(t *testing.T, records *recordingStore) *Manager {
	t.Helper()
	server := newTestServer(t, "example.org", nil)
	manager, err := NewManager(Config{Events: server.events, Store: records, Clock: server.clock})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return manager
}

func TestCreateRoomSavesRecordOnceGenesisIsComplete(t *testing.T) {
	records := &recordingStore{Memory: store.NewMemory()}
	manager := newRecordingManager(t, records)

	room, err := manager.CreateRoom(context.Background(), CreateOptions{
		Creator: alice,
		Preset:  schema.PresetTrustedPrivateChat,
		Name:    "Saved once",
		Invite:  []ref.UserID{bob},
	})
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if len(records.puts) != 1 {
		t.Fatalf("CreateRoom wrote %d records, want 1", len(records.puts))
	}
	if !slices.Equal(records.puts[0].Extremities, room.Extremities()) {
		t.Errorf("saved extremities = %v, room has %v", records.puts[0].Extremities, room.Extremities())
	}
	if room.State().Membership(bob) != schema.MembershipInvite {
		t.Error("saved record predates the invite")
	}

	inject(t, room, event.NewMessage(alice, "m.text", "after genesis"))
	if len(records.puts) != 2 {
		t.Errorf("injecting after creation wrote %d records in total, want 2", len(records.puts))
	}
}

func TestCreateRoomLeavesNothingWhenSaveFails(t *testing.T) {
	diskFull := errors.New("disk full")
	records := &recordingStore{Memory: store.NewMemory(), err: diskFull}
	manager := newRecordingManager(t, records)

	_, err := manager.CreateRoom(context.Background(), CreateOptions{Creator: alice, Preset: schema.PresetPublicChat})
	if !errors.Is(err, diskFull) {
		t.Fatalf("CreateRoom error = %v, want %v", err, diskFull)
	}
	if manager.Cached() != 0 {
		t.Errorf("failed room was cached")
	}
	rooms, err := manager.ListRooms(context.Background())
	if err != nil {
		t.Fatalf("ListRooms: %v", err)
	}
	if len(rooms) != 0 {
		t.Errorf("failed room was persisted: %v", rooms)
	}
}

func TestCreateRoomRequiresCreator(t *testing.T) {
	server := newTestServer(t, "example.org", nil)
	_, err := server.manager.CreateRoom(context.Background(), CreateOptions{})
	if !errors.Is(err, errkind.InvalidArgument) {
		t.Errorf("CreateRoom without creator = %v, want InvalidArgument", err)
	}
}

func TestCreateRoomsConcurrently(t *testing.T) {
	server := newTestServer(t, "example.org", nil)

	const creators = 8
	ids := make([]ref.RoomID, creators)
	var wg sync.WaitGroup
	for index := range creators {
		wg.Add(1)
		go func() {
			defer wg.Done()
			room, err := server.manager.CreateRoom(context.Background(), CreateOptions{Creator: alice})
			if err != nil {
				t.Errorf("CreateRoom: %v", err)
				return
			}
			ids[index] = room.ID()
		}()
	}
	wg.Wait()

	listed, err := server.manager.ListRooms(context.Background())
	if err != nil {
		t.Fatalf("ListRooms: %v", err)
	}
	if len(listed) != creators {
		t.Errorf("ListRooms returned %d rooms, want %d", len(listed), creators)
	}
	for _, id := range ids {
		if !slices.Contains(listed, id) {
			t.Errorf("room %s missing from ListRooms", id)
		}
	}
}

func TestRoomUnknown(t *testing.T) {
	server := newTestServer(t, "example.org", nil)
	_, err := server.manager.Room(context.Background(), ref.MustParseRoomID("!missing:example.org"))
	if !errors.Is(err, errkind.NotFound) {
		t.Errorf("Room(unknown) = %v, want NotFound", err)
	}
}

func TestIdleRoomsAreEvictedAndReloaded(t *testing.T) {
	ctx := context.Background()
	server := newTestServer(t, "example.org", nil)
	room := server.createRoom(t, CreateOptions{Creator: alice, Name: "Lobby", Invite: []ref.UserID{bob}})
	message := inject(t, room, event.NewMessage(alice, "m.text", "before eviction"))

	server.clock.Advance(DefaultIdleTimeout - time.Minute)
	if _, err := server.manager.Room(ctx, room.ID()); err != nil {
		t.Fatalf("Room: %v", err)
	}
	server.clock.Advance(DefaultIdleTimeout - time.Minute)
	if evicted := server.manager.Sweep(); evicted != 0 {
		t.Fatalf("Sweep evicted %d rooms accessed within the idle timeout", evicted)
	}

	server.clock.Advance(time.Minute)
	if evicted := server.manager.Sweep(); evicted != 1 {
		t.Fatalf("Sweep evicted %d rooms, want 1", evicted)
	}
	if server.manager.Cached() != 0 {
		t.Fatalf("Cached = %d after eviction", server.manager.Cached())
	}

	reloaded, err := server.manager.Room(ctx, room.ID())
	if err != nil {
		t.Fatalf("Room after eviction: %v", err)
	}
	if reloaded == room {
		t.Error("reload returned the evicted value")
	}
	if got := reloaded.Extremities(); !slices.Equal(got, []ref.EventID{message.ID()}) {
		t.Errorf("reloaded extremities = %v, want [%s]", got, message.ID())
	}
	state := reloaded.State()
	if state.Name() != "Lobby" || state.Membership(bob) != schema.MembershipInvite {
		t.Errorf("reloaded state lost events: name=%q bob=%q", state.Name(), state.Membership(bob))
	}
	if got := state.PowerLevels().ForUser(alice); got != schema.LevelAdmin {
		t.Errorf("reloaded creator level = %d", got)
	}
	if got := testutil.ToFloat64(server.manager.metrics.loads); got != 1 {
		t.Errorf("loads_total = %v, want 1", got)
	}

	var published []ref.EventID
	server.manager.AddListener(func(e *event.Event) error {
		published = append(published, e.ID())
		return nil
	})
	after := inject(t, reloaded, event.NewMessage(alice, "m.text", "after reload"))
	if !slices.Equal(published, []ref.EventID{after.ID()}) {
		t.Errorf("fan-out saw %v after reload, want [%s]", published, after.ID())
	}
	if got := after.PrevEvents(); !slices.Equal(got, []ref.EventID{message.ID()}) {
		t.Errorf("prev_events after reload = %v", got)
	}
}

func TestFanOutIsolatesListenerFailures(t *testing.T) {
	server := newTestServer(t, "example.org", nil)

	var order []string
	server.manager.AddListener(func(*event.Event) error {
		order = append(order, "failing")
		return errors.New("listener refused")
	})
	server.manager.AddListener(func(*event.Event) error {
		order = append(order, "panicking")
		panic("listener bug")
	})
	server.manager.AddListener(func(*event.Event) error {
		order = append(order, "healthy")
		return nil
	})

	room := server.createRoom(t, CreateOptions{Creator: alice})
	order = nil
	inject(t, room, event.NewMessage(alice, "m.text", "hi"))

	if want := []string{"failing", "panicking", "healthy"}; !slices.Equal(order, want) {
		t.Errorf("delivery order = %v, want %v", order, want)
	}
	if got := testutil.ToFloat64(server.manager.metrics.listenerFailures); got != 2*4 {
		t.Errorf("listener_failures_total = %v, want %d", got, 2*4)
	}
}

// loopbackFederation answers joins from a second in-process server. Every
// destination name maps to that one server; failing lists destinations
// that refuse.
type loopbackFederation struct {
	remote  *testServer
	failing map[string]error

	mu    sync.Mutex
	calls []string
}

func (f *loopbackFederation) record(call string, destination ref.ServerName) error {
	f.mu.Lock()
	f.calls = append(f.calls, call+" "+destination.String())
	f.mu.Unlock()
	return f.failing[destination.String()]
}

func (f *loopbackFederation) MakeJoin(ctx context.Context, destination ref.ServerName, roomID ref.RoomID, userID ref.UserID) (federation.MakeJoinResponse, error) {
	if err := f.record("make_join", destination); err != nil {
		return federation.MakeJoinResponse{}, err
	}
	room, err := f.remote.manager.Room(ctx, roomID)
	if err != nil {
		return federation.MakeJoinResponse{}, err
	}
	parents, err := f.remote.events.GetMany(room.Extremities())
	if err != nil {
		return federation.MakeJoinResponse{}, err
	}
	var parentEvents []*event.Event
	for _, parent := range parents {
		parentEvents = append(parentEvents, parent.Event)
	}
	proto, err := f.remote.events.Populate(event.NewMembership(userID, userID, schema.MembershipJoin), roomID, room.State(), parentEvents)
	if err != nil {
		return federation.MakeJoinResponse{}, err
	}
	return federation.MakeJoinResponse{Event: proto, RoomVersion: "1"}, nil
}

func (f *loopbackFederation) SendJoin(ctx context.Context, destination ref.ServerName, join *event.Event) (federation.SendJoinResponse, error) {
	if err := f.record("send_join", destination); err != nil {
		return federation.SendJoinResponse{}, err
	}
	room, err := f.remote.manager.Room(ctx, join.RoomID())
	if err != nil {
		return federation.SendJoinResponse{}, err
	}
	authChain, err := f.remote.events.GetMany(join.AuthEvents())
	if err != nil {
		return federation.SendJoinResponse{}, err
	}
	response := federation.SendJoinResponse{Origin: destination, State: room.State().Events()}
	for _, entry := range authChain {
		response.AuthChain = append(response.AuthChain, entry.Event)
	}
	return response, nil
}

func (f *loopbackFederation) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

func newJoinFixture(t *testing.T, failing map[string]error) (*testServer, *Room, *loopbackFederation) {
	t.Helper()
	remote := newTestServer(t, "example.org", nil)
	remoteRoom := remote.createRoom(t, CreateOptions{Creator: alice, Preset: schema.PresetPublicChat, Name: "Far away"})
	loopback := &loopbackFederation{remote: remote, failing: failing}
	local := newTestServer(t, "local.test", loopback)
	return local, remoteRoom, loopback
}

func TestJoinFederatedRoomFallsBackToNextCandidate(t *testing.T) {
	ctx := context.Background()
	local, remoteRoom, loopback := newJoinFixture(t, map[string]error{
		"a.example": errors.New("connection refused"),
	})

	lookup := federation.AliasLookup{
		Alias:   ref.MustParseRoomAlias("#far:directory.example"),
		RoomID:  remoteRoom.ID(),
		Servers: []ref.ServerName{ref.MustParseServerName("a.example"), ref.MustParseServerName("b.example")},
		Source:  ref.MustParseServerName("directory.example"),
	}
	room, err := local.manager.JoinFederatedRoom(ctx, lookup, carol)
	if err != nil {
		t.Fatalf("JoinFederatedRoom: %v", err)
	}

	wantCalls := []string{"make_join a.example", "make_join b.example", "send_join b.example"}
	if got := loopback.Calls(); !slices.Equal(got, wantCalls) {
		t.Errorf("calls = %v, want %v", got, wantCalls)
	}

	extremities := room.Extremities()
	if len(extremities) != 1 {
		t.Fatalf("extremities = %v, want only the join", extremities)
	}
	join, err := local.events.Get(extremities[0])
	if err != nil {
		t.Fatalf("join event not stored locally: %v", err)
	}
	if join.Event.Type() != schema.EventTypeMember || join.Event.Sender() != carol {
		t.Errorf("sole extremity is %s from %s, want carol's join", join.Event.Type(), join.Event.Sender())
	}
	if join.Event.Origin().String() != "local.test" {
		t.Errorf("join origin = %s, want local.test", join.Event.Origin())
	}
	if err := signing.VerifyEvent(join.Event.Object(), "local.test", local.key.KeyID(), local.key.PublicKey()); err != nil {
		t.Errorf("join is not signed by the local key: %v", err)
	}

	state := room.State()
	if got := state.Membership(carol); got != schema.MembershipJoin {
		t.Errorf("carol membership = %q, want join", got)
	}
	if got := state.Name(); got != "Far away" {
		t.Errorf("name = %q, want the remote room's name", got)
	}
	if creator, _ := state.Creator(); creator != alice {
		t.Errorf("creator = %s, want %s", creator, alice)
	}
	for _, e := range state.Events() {
		if !local.events.Has(e.ID()) {
			t.Errorf("state event %s was not indexed locally", e.ID())
		}
	}

	record, err := local.store.FindRoom(ctx, remoteRoom.ID())
	if err != nil {
		t.Fatalf("joined room not persisted: %v", err)
	}
	if !slices.Equal(record.Extremities, extremities) {
		t.Errorf("persisted extremities = %v, want %v", record.Extremities, extremities)
	}
	if got := testutil.ToFloat64(local.manager.metrics.joins.WithLabelValues("failed")); got != 1 {
		t.Errorf("failed joins = %v, want 1", got)
	}
}

func TestJoinFederatedRoomAllCandidatesFail(t *testing.T) {
	ctx := context.Background()
	local, remoteRoom, loopback := newJoinFixture(t, map[string]error{
		"a.example": errors.New("connection refused"),
		"b.example": &federation.Error{StatusCode: 403, Code: federation.ErrCodeForbidden},
	})

	lookup := federation.AliasLookup{
		RoomID:  remoteRoom.ID(),
		Servers: []ref.ServerName{ref.MustParseServerName("a.example"), ref.MustParseServerName("b.example")},
	}
	_, err := local.manager.JoinFederatedRoom(ctx, lookup, carol)
	if !errors.Is(err, errkind.JoinFailed) {
		t.Fatalf("JoinFederatedRoom = %v, want JoinFailed", err)
	}
	var remoteErr *federation.Error
	if !errors.As(err, &remoteErr) || remoteErr.StatusCode != 403 {
		t.Errorf("error does not carry the candidate failure: %v", err)
	}
	for _, server := range []string{"a.example", "b.example"} {
		if !strings.Contains(err.Error(), server) {
			t.Errorf("error %q does not name %s", err, server)
		}
	}
	if got := loopback.Calls(); len(got) != 2 {
		t.Errorf("calls = %v, want one make_join per candidate", got)
	}
	if _, err := local.store.FindRoom(ctx, remoteRoom.ID()); !errors.Is(err, errkind.NotFound) {
		t.Errorf("failed join persisted the room: %v", err)
	}
}

func TestJoinFederatedRoomWithoutCandidates(t *testing.T) {
	local, remoteRoom, loopback := newJoinFixture(t, nil)

	for name, servers := range map[string][]ref.ServerName{
		"empty":      nil,
		"only local": {ref.MustParseServerName("local.test")},
	} {
		t.Run(name, func(t *testing.T) {
			lookup := federation.AliasLookup{RoomID: remoteRoom.ID(), Servers: servers}
			_, err := local.manager.JoinFederatedRoom(context.Background(), lookup, carol)
			if !errors.Is(err, errkind.InvalidArgument) {
				t.Errorf("JoinFederatedRoom = %v, want InvalidArgument", err)
			}
		})
	}
	if got := loopback.Calls(); len(got) != 0 {
		t.Errorf("remote calls made without candidates: %v", got)
	}
}

func TestJoinFederatedRoomReturnsExistingRoom(t *testing.T) {
	local, _, loopback := newJoinFixture(t, nil)
	existing := local.createRoom(t, CreateOptions{Creator: carol})

	lookup := federation.AliasLookup{
		RoomID:  existing.ID(),
		Servers: []ref.ServerName{ref.MustParseServerName("a.example")},
	}
	room, err := local.manager.JoinFederatedRoom(context.Background(), lookup, carol)
	if err != nil {
		t.Fatalf("JoinFederatedRoom: %v", err)
	}
	if room != existing {
		t.Error("JoinFederatedRoom did not return the local room")
	}
	if got := loopback.Calls(); len(got) != 0 {
		t.Errorf("remote calls made for a local room: %v", got)
	}
}

func TestJoinFederatedRoomTriesSourceFirst(t *testing.T) {
	local, remoteRoom, loopback := newJoinFixture(t, nil)

	lookup := federation.AliasLookup{
		RoomID:  remoteRoom.ID(),
		Servers: []ref.ServerName{ref.MustParseServerName("a.example"), ref.MustParseServerName("b.example")},
		Source:  ref.MustParseServerName("b.example"),
	}
	if _, err := local.manager.JoinFederatedRoom(context.Background(), lookup, carol); err != nil {
		t.Fatalf("JoinFederatedRoom: %v", err)
	}
	want := []string{"make_join b.example", "send_join b.example"}
	if got := loopback.Calls(); !slices.Equal(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
}

func TestJoinWithoutFederation(t *testing.T) {
	local := newTestServer(t, "local.test", nil)
	lookup := federation.AliasLookup{
		RoomID:  ref.MustParseRoomID("!far:example.org"),
		Servers: []ref.ServerName{ref.MustParseServerName("example.org")},
	}
	_, err := local.manager.JoinFederatedRoom(context.Background(), lookup, carol)
	if !errors.Is(err, errkind.NotImplemented) {
		t.Errorf("JoinFederatedRoom without federation = %v, want NotImplemented", err)
	}
}

func TestJoinCandidates(t *testing.T) {
	local := ref.MustParseServerName("local.test")
	a := ref.MustParseServerName("a.example")
	b := ref.MustParseServerName("b.example")
	c := ref.MustParseServerName("c.example")

	tests := []struct {
		name    string
		servers []ref.ServerName
		source  ref.ServerName
		want    []ref.ServerName
	}{
		{name: "order kept", servers: []ref.ServerName{a, b, c}, want: []ref.ServerName{a, b, c}},
		{name: "source moved first", servers: []ref.ServerName{a, b, c}, source: c, want: []ref.ServerName{c, a, b}},
		{name: "source not a candidate", servers: []ref.ServerName{a, b}, source: c, want: []ref.ServerName{a, b}},
		{name: "local removed", servers: []ref.ServerName{local, a}, source: local, want: []ref.ServerName{a}},
		{name: "duplicates removed", servers: []ref.ServerName{a, b, a}, want: []ref.ServerName{a, b}},
		{name: "only local", servers: []ref.ServerName{local}, want: []ref.ServerName{}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			lookup := federation.AliasLookup{Servers: test.servers, Source: test.source}
			if got := joinCandidates(lookup, local); !slices.Equal(got, test.want) {
				t.Errorf("joinCandidates = %v, want %v", got, test.want)
			}
		})
	}
}

func TestDiscoverRoomRejectsForeignSeed(t *testing.T) {
	local, remoteRoom, _ := newJoinFixture(t, nil)
	other := local.createRoom(t, CreateOptions{Creator: carol})
	seed, err := local.events.Get(other.Extremities()[0])
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	_, err = local.manager.DiscoverRoom(context.Background(), remoteRoom.ID(), nil, nil, seed.Event)
	if !errors.Is(err, errkind.InvalidArgument) {
		t.Errorf("DiscoverRoom with a seed from another room = %v, want InvalidArgument", err)
	}
	_, err = local.manager.DiscoverRoom(context.Background(), remoteRoom.ID(), nil, nil, nil)
	if !errors.Is(err, errkind.InvalidArgument) {
		t.Errorf("DiscoverRoom without seed = %v, want InvalidArgument", err)
	}
}
