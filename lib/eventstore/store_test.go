// Copyright 2026 The Keystone Authors
// SPDX-License-Identifier: Apache-2.0

package eventstore

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/keystone-hs/keystone/lib/clock"
	"github.com/keystone-hs/keystone/lib/errkind"
	"github.com/keystone-hs/keystone/lib/event"
	"github.com/keystone-hs/keystone/lib/ref"
	"github.com/keystone-hs/keystone/lib/schema"
	"github.com/keystone-hs/keystone/lib/signing"
)

var (
	testServer = ref.MustParseServerName("example.org")
	testRoom   = ref.MustParseRoomID("!room:example.org")
	testAlice  = ref.MustParseUserID("@alice:example.org")
	epoch      = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

func newTestKey(t *testing.T) *signing.Key {
	t.Helper()
	key, err := signing.NewKey(testServer, "1", bytes.Repeat([]byte{3}, ed25519.SeedSize))
	if err != nil {
		t.Fatalf("NewKey: %v", err)
	}
	t.Cleanup(func() { key.Close() })
	return key
}

func newTestStore(t *testing.T) (*Store, *clock.FakeClock, *signing.Key) {
	t.Helper()
	key := newTestKey(t)
	fake := clock.Fake(epoch)
	store, err := New(Config{Signer: key, Clock: fake})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store, fake, key
}

func sendMessage(t *testing.T, store *Store, body string, parents ...*event.Event) Entry {
	t.Helper()
	entry, err := store.Send(event.NewMessage(testAlice, "m.text", body), testRoom, nil, parents)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	return entry
}

func TestNewRequiresSigner(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New without a signer succeeded")
	}
}

func TestAppendAssignsDenseIndices(t *testing.T) {
	store, _, _ := newTestStore(t)

	var entries []Entry
	for index := range 10 {
		entries = append(entries, sendMessage(t, store, strings.Repeat("x", index+1)))
	}
	for want, entry := range entries {
		if entry.Index != int64(want) {
			t.Errorf("entry %d has index %d", want, entry.Index)
		}
		got, err := store.Get(entry.Event.ID())
		if err != nil {
			t.Fatalf("Get(%s): %v", entry.Event.ID(), err)
		}
		if got.Index != entry.Index {
			t.Errorf("Get(%s).Index = %d, want %d", entry.Event.ID(), got.Index, entry.Index)
		}
	}
	if store.StreamIndex() != 10 {
		t.Errorf("StreamIndex = %d, want 10", store.StreamIndex())
	}
}

func TestConcurrentAppendsStayDense(t *testing.T) {
	store, _, _ := newTestStore(t)

	const writers, perWriter = 8, 25
	var wait sync.WaitGroup
	for range writers {
		wait.Add(1)
		go func() {
			defer wait.Done()
			for range perWriter {
				if _, err := store.Send(event.NewMessage(testAlice, "m.text", "hi"), testRoom, nil, nil); err != nil {
					t.Errorf("Send: %v", err)
					return
				}
			}
		}()
	}
	wait.Wait()

	total := int64(writers * perWriter)
	if store.StreamIndex() != total {
		t.Fatalf("StreamIndex = %d, want %d", store.StreamIndex(), total)
	}
	seen := make(map[ref.EventID]bool)
	for index := range total {
		entry, ok := store.entryAt(index)
		if !ok {
			t.Fatalf("index %d missing", index)
		}
		if seen[entry.Event.ID()] {
			t.Fatalf("duplicate id %s", entry.Event.ID())
		}
		seen[entry.Event.ID()] = true
	}
}

func TestAppendRejectsDuplicate(t *testing.T) {
	store, _, _ := newTestStore(t)
	entry := sendMessage(t, store, "once")
	_, err := store.Append(entry.Event)
	if !errors.Is(err, errkind.InvalidArgument) {
		t.Errorf("second Append error = %v, want InvalidArgument", err)
	}
	if store.StreamIndex() != 1 {
		t.Errorf("StreamIndex = %d after rejected append", store.StreamIndex())
	}
}

func TestGetUnknown(t *testing.T) {
	store, _, _ := newTestStore(t)
	_, err := store.Get(ref.MustParseEventID("$missing:example.org"))
	if !errors.Is(err, errkind.NotFound) {
		t.Errorf("Get error = %v, want NotFound", err)
	}
}

func TestGetMany(t *testing.T) {
	store, _, _ := newTestStore(t)
	first := sendMessage(t, store, "a")
	second := sendMessage(t, store, "b")

	entries, err := store.GetMany([]ref.EventID{second.Event.ID(), first.Event.ID()})
	if err != nil {
		t.Fatalf("GetMany: %v", err)
	}
	if len(entries) != 2 || entries[0].Index != 1 || entries[1].Index != 0 {
		t.Errorf("GetMany returned %+v", entries)
	}

	_, err = store.GetMany([]ref.EventID{first.Event.ID(), ref.MustParseEventID("$nope:x")})
	if !errors.Is(err, errkind.NotFound) {
		t.Errorf("GetMany error = %v, want NotFound", err)
	}
}

func TestAllocateIDFormat(t *testing.T) {
	store, _, _ := newTestStore(t)

	seen := make(map[string]bool)
	for range 500 {
		id := store.AllocateID(testServer).String()
		if seen[id] {
			t.Fatalf("duplicate id %s within one millisecond", id)
		}
		seen[id] = true

		if !strings.HasPrefix(id, "$") || !strings.HasSuffix(id, ":example.org") {
			t.Fatalf("id %q has wrong shape", id)
		}
		local := strings.TrimSuffix(strings.TrimPrefix(id, "$"), ":example.org")
		decoded, err := base64.RawURLEncoding.DecodeString(local)
		if err != nil {
			t.Fatalf("local part %q is not unpadded URL base64: %v", local, err)
		}
		wantPrefix := "1772366400000"
		if !strings.HasPrefix(string(decoded), wantPrefix) || len(decoded) != len(wantPrefix)+idSuffixLength {
			t.Fatalf("decoded local part %q, want %s + %d letters", decoded, wantPrefix, idSuffixLength)
		}
	}
}

func TestPopulate(t *testing.T) {
	store, fake, _ := newTestStore(t)
	parentA := sendMessage(t, store, "a").Event
	parentB := sendMessage(t, store, "b", parentA).Event

	fake.Advance(5 * time.Second)
	proto, err := store.Populate(event.NewMessage(testAlice, "m.text", "c"), testRoom, nil, []*event.Event{parentA, parentB})
	if err != nil {
		t.Fatalf("Populate: %v", err)
	}
	if proto.Has(event.KeyHashes) || proto.Has(event.KeySignatures) {
		t.Error("Populate hashed or signed")
	}
	populated, err := proto.Freeze()
	if err != nil {
		t.Fatalf("Freeze: %v", err)
	}
	if populated.Depth() != 2 {
		t.Errorf("Depth = %d, want 2", populated.Depth())
	}
	if populated.OriginServerTS() != epoch.Add(5*time.Second).UnixMilli() {
		t.Errorf("OriginServerTS = %d", populated.OriginServerTS())
	}
	if populated.Origin() != testServer || populated.RoomID() != testRoom {
		t.Errorf("Origin/RoomID = %s/%s", populated.Origin(), populated.RoomID())
	}
	prev := populated.PrevEvents()
	if len(prev) != 2 || prev[0] != parentA.ID() || prev[1] != parentB.ID() {
		t.Errorf("PrevEvents = %v", prev)
	}
	if len(populated.AuthEvents()) != 0 {
		t.Errorf("AuthEvents = %v without state", populated.AuthEvents())
	}
}

type mapState map[[2]string]*event.Event

func (m mapState) StateEvent(eventType, stateKey string) (*event.Event, bool) {
	found, ok := m[[2]string{eventType, stateKey}]
	return found, ok
}

func TestPopulateSelectsAuthEvents(t *testing.T) {
	store, _, _ := newTestStore(t)
	create := sendMessage(t, store, "stand-in create").Event
	levels := sendMessage(t, store, "stand-in levels").Event
	membership := sendMessage(t, store, "stand-in membership").Event
	rules := sendMessage(t, store, "stand-in rules").Event

	state := mapState{
		{schema.EventTypeCreate, ""}:                 create,
		{schema.EventTypePowerLevels, ""}:            levels,
		{schema.EventTypeMember, testAlice.String()}: membership,
		{schema.EventTypeJoinRules, ""}:              rules,
	}

	proto, err := store.Populate(event.NewMessage(testAlice, "m.text", "x"), testRoom, state, nil)
	if err != nil {
		t.Fatalf("Populate: %v", err)
	}
	message, _ := proto.Freeze()
	if got := message.AuthEvents(); len(got) != 3 || got[0] != create.ID() || got[1] != levels.ID() || got[2] != membership.ID() {
		t.Errorf("message AuthEvents = %v", got)
	}

	bob := ref.MustParseUserID("@bob:example.org")
	proto, err = store.Populate(event.NewMembership(testAlice, bob, schema.MembershipInvite), testRoom, state, nil)
	if err != nil {
		t.Fatalf("Populate: %v", err)
	}
	invite, _ := proto.Freeze()
	if got := invite.AuthEvents(); len(got) != 4 || got[3] != rules.ID() {
		t.Errorf("member AuthEvents = %v, want join rules last", got)
	}
}

func TestHashAndSignRoundTrip(t *testing.T) {
	store, _, key := newTestStore(t)
	proto, err := store.Populate(event.NewMembership(testAlice, testAlice, schema.MembershipJoin), testRoom, nil, nil)
	if err != nil {
		t.Fatalf("Populate: %v", err)
	}
	signed, err := store.HashAndSign(proto)
	if err != nil {
		t.Fatalf("HashAndSign: %v", err)
	}
	if err := signing.VerifyEvent(signed.Object(), "example.org", "ed25519:1", key.PublicKey()); err != nil {
		t.Fatalf("VerifyEvent: %v", err)
	}

	again, err := store.HashAndSign(event.NewProto(signed.Object()))
	if err != nil {
		t.Fatalf("second HashAndSign: %v", err)
	}
	if again.ContentHash("sha256") != signed.ContentHash("sha256") {
		t.Error("re-hashing unchanged content produced a different digest")
	}
	if again.Signatures()["example.org"]["ed25519:1"] != signed.Signatures()["example.org"]["ed25519:1"] {
		t.Error("re-signing unchanged content produced a different signature")
	}
}

func TestSignatureCoversEssentialFieldsOnly(t *testing.T) {
	store, _, _ := newTestStore(t)
	proto, err := store.Populate(event.NewMembership(testAlice, testAlice, schema.MembershipJoin), testRoom, nil, nil)
	if err != nil {
		t.Fatalf("Populate: %v", err)
	}
	base, err := store.HashAndSign(proto)
	if err != nil {
		t.Fatalf("HashAndSign: %v", err)
	}
	signatureOf := func(e *event.Event) string { return e.Signatures()["example.org"]["ed25519:1"] }

	withUnsigned := proto.Clone()
	withUnsigned.Set(event.KeyUnsigned, map[string]any{"age": 42})
	unsignedSigned, err := store.HashAndSign(withUnsigned)
	if err != nil {
		t.Fatalf("HashAndSign: %v", err)
	}
	if signatureOf(unsignedSigned) != signatureOf(base) || unsignedSigned.ContentHash("sha256") != base.ContentHash("sha256") {
		t.Error("unsigned changed the hash or signature")
	}
	if unsignedSigned.Object()[event.KeyUnsigned] == nil {
		t.Error("unsigned was not carried through")
	}

	changedEssential := proto.Clone()
	changedEssential.Set(event.KeyContent, map[string]any{"membership": "leave"})
	essentialSigned, err := store.HashAndSign(changedEssential)
	if err != nil {
		t.Fatalf("HashAndSign: %v", err)
	}
	if signatureOf(essentialSigned) == signatureOf(base) {
		t.Error("changing membership did not change the signature")
	}

	changedDisplay := proto.Clone()
	changedDisplay.Set(event.KeyContent, map[string]any{"membership": "join", "displayname": "Alice"})
	displaySigned, err := store.HashAndSign(changedDisplay)
	if err != nil {
		t.Fatalf("HashAndSign: %v", err)
	}
	if displaySigned.ContentHash("sha256") == base.ContentHash("sha256") {
		t.Error("changing content did not change the content hash")
	}
	if signatureOf(displaySigned) == signatureOf(base) {
		t.Error("signature did not follow the changed content hash")
	}

	// With hashes held fixed, the displayname is outside the signed bytes.
	display := displaySigned.Object()
	display[event.KeyHashes] = base.Object()[event.KeyHashes]
	displayBytes, err := event.SigningBytes(display)
	if err != nil {
		t.Fatalf("SigningBytes: %v", err)
	}
	baseBytes, err := event.SigningBytes(base.Object())
	if err != nil {
		t.Fatalf("SigningBytes: %v", err)
	}
	if string(displayBytes) != string(baseBytes) {
		t.Errorf("signed bytes differ on a non-essential content key:\n%s\n%s", displayBytes, baseBytes)
	}
}

func TestFinalizeStampsRemoteTemplate(t *testing.T) {
	store, _, key := newTestStore(t)
	template, err := event.ParseProto([]byte(`{
		"type": "m.room.member",
		"room_id": "!remote:other.net",
		"sender": "@alice:example.org",
		"state_key": "@alice:example.org",
		"depth": 12,
		"prev_events": ["$tip:other.net"],
		"auth_events": ["$create:other.net"],
		"content": {"membership": "join"}
	}`))
	if err != nil {
		t.Fatalf("ParseProto: %v", err)
	}
	finalized, err := store.Finalize(template)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if finalized.ID().Server() != testServer || finalized.Origin() != testServer {
		t.Errorf("ID/Origin = %s/%s", finalized.ID(), finalized.Origin())
	}
	if finalized.Depth() != 12 || finalized.PrevEvents()[0].String() != "$tip:other.net" {
		t.Error("Finalize changed the template's graph position")
	}
	if finalized.OriginServerTS() != epoch.UnixMilli() {
		t.Errorf("OriginServerTS = %d", finalized.OriginServerTS())
	}
	if err := signing.VerifyEvent(finalized.Object(), "example.org", key.KeyID(), key.PublicKey()); err != nil {
		t.Errorf("VerifyEvent: %v", err)
	}
	if template.Has(event.KeyEventID) {
		t.Error("Finalize modified its input")
	}
}

func TestObserversRunInOrderAndIsolateFailures(t *testing.T) {
	store, _, _ := newTestStore(t)
	registry := prometheus.NewRegistry()
	instrumented, err := New(Config{Signer: store.Signer(), Clock: clock.Fake(epoch), Registerer: registry})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var calls []string
	instrumented.AddFilter(func(e *event.Event) error {
		if instrumented.Has(e.ID()) {
			t.Error("filter saw an already committed event")
		}
		calls = append(calls, "filter")
		return nil
	})
	instrumented.AddListener(func(Entry) error {
		calls = append(calls, "first")
		return errors.New("listener failure")
	})
	instrumented.AddListener(func(Entry) error {
		panic("listener panic")
	})
	instrumented.AddListener(func(entry Entry) error {
		if !instrumented.Has(entry.Event.ID()) {
			t.Error("listener ran before the event was committed")
		}
		calls = append(calls, "third")
		return nil
	})

	entry := sendMessage(t, instrumented, "observed")
	if entry.Index != 0 {
		t.Errorf("Index = %d", entry.Index)
	}
	if strings.Join(calls, ",") != "filter,first,third" {
		t.Errorf("calls = %v", calls)
	}

	failures := testutil.ToFloat64(instrumented.metrics.observerFailures.WithLabelValues("listener"))
	if failures != 2 {
		t.Errorf("listener failures = %v, want 2", failures)
	}
	if appends := testutil.ToFloat64(instrumented.metrics.appends); appends != 1 {
		t.Errorf("appends = %v, want 1", appends)
	}
}
