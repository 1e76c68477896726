// Copyright 2026 The Keystone Authors
// SPDX-License-Identifier: Apache-2.0

package eventstore

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/keystone-hs/keystone/lib/event"
	"github.com/keystone-hs/keystone/lib/ref"
	"github.com/keystone-hs/keystone/lib/schema"
)

// StateLookup answers current-state queries while populating an event.
type StateLookup interface {
	StateEvent(eventType, stateKey string) (*event.Event, bool)
}

// Populate binds naked to roomID and stamps identity and graph
// position: event_id, origin, origin_server_ts, prev_events (the ids
// of parents), depth (one more than the deepest parent, 0 without
// parents) and auth_events (create, power levels, the sender's
// membership and, for membership events, the join rules, as far as
// state holds them). state may be nil. The result is not hashed or
// signed.
func (s *Store) Populate(naked event.NakedEvent, roomID ref.RoomID, state StateLookup, parents []*event.Event) (*event.Proto, error) {
	proto, err := naked.Proto(roomID)
	if err != nil {
		return nil, fmt.Errorf("eventstore: %w", err)
	}

	prevEvents := make([]ref.EventID, 0, len(parents))
	var depth int64
	for index, parent := range parents {
		prevEvents = append(prevEvents, parent.ID())
		if index == 0 || parent.Depth()+1 > depth {
			depth = parent.Depth() + 1
		}
	}

	if err := s.stampIdentity(proto); err != nil {
		return nil, err
	}
	fields := map[string]any{
		event.KeyPrevEvents: prevEvents,
		event.KeyDepth:      depth,
		event.KeyAuthEvents: selectAuthEvents(naked, state),
	}
	for key, value := range fields {
		if err := proto.Set(key, value); err != nil {
			return nil, fmt.Errorf("eventstore: %w", err)
		}
	}
	return proto, nil
}

func (s *Store) stampIdentity(proto *event.Proto) error {
	origin := s.signer.Domain()
	fields := map[string]any{
		event.KeyEventID:        s.AllocateID(origin),
		event.KeyOrigin:         origin,
		event.KeyOriginServerTS: s.clock.Now().UnixMilli(),
	}
	for key, value := range fields {
		if err := proto.Set(key, value); err != nil {
			return fmt.Errorf("eventstore: %w", err)
		}
	}
	return nil
}

func selectAuthEvents(naked event.NakedEvent, state StateLookup) []ref.EventID {
	authEvents := []ref.EventID{}
	if state == nil {
		return authEvents
	}
	wanted := [][2]string{
		{schema.EventTypeCreate, ""},
		{schema.EventTypePowerLevels, ""},
		{schema.EventTypeMember, naked.Sender.String()},
	}
	if naked.Type() == schema.EventTypeMember {
		wanted = append(wanted, [2]string{schema.EventTypeJoinRules, ""})
	}
	for _, key := range wanted {
		if found, ok := state.StateEvent(key[0], key[1]); ok {
			authEvents = append(authEvents, found.ID())
		}
	}
	return authEvents
}

// HashAndSign computes the content hash of proto and signs its
// redacted projection with the store's key, returning the immutable
// event. Existing hashes and signatures are replaced; unsigned is
// carried through untouched. proto itself is not modified.
func (s *Store) HashAndSign(proto *event.Proto) (*event.Event, error) {
	timer := prometheus.NewTimer(s.metrics.signSeconds)
	defer timer.ObserveDuration()

	working := proto.Clone()
	working.Delete(event.KeyHashes)
	working.Delete(event.KeySignatures)

	digest, err := event.ContentHash(working.Object())
	if err != nil {
		return nil, fmt.Errorf("eventstore: %w", err)
	}
	if err := working.Set(event.KeyHashes, map[string]string{event.HashAlgorithm: digest}); err != nil {
		return nil, fmt.Errorf("eventstore: %w", err)
	}

	message, err := event.SigningBytes(working.Object())
	if err != nil {
		return nil, fmt.Errorf("eventstore: %w", err)
	}
	signatures := map[string]map[string]string{
		s.signer.Domain().String(): {s.signer.KeyID(): s.signer.Sign(message)},
	}
	if err := working.Set(event.KeySignatures, signatures); err != nil {
		return nil, fmt.Errorf("eventstore: %w", err)
	}

	signed, err := working.Freeze()
	if err != nil {
		return nil, fmt.Errorf("eventstore: signed event is malformed: %w", err)
	}
	return signed, nil
}

// Finalize completes an event template produced elsewhere, such as a
// remote make_join response: it assigns a fresh id, origin and
// timestamp, then hashes and signs.
func (s *Store) Finalize(proto *event.Proto) (*event.Event, error) {
	working := proto.Clone()
	if err := s.stampIdentity(working); err != nil {
		return nil, err
	}
	return s.HashAndSign(working)
}

// Send populates, signs and appends naked in one step.
func (s *Store) Send(naked event.NakedEvent, roomID ref.RoomID, state StateLookup, parents []*event.Event) (Entry, error) {
	proto, err := s.Populate(naked, roomID, state, parents)
	if err != nil {
		return Entry{}, err
	}
	signed, err := s.HashAndSign(proto)
	if err != nil {
		return Entry{}, err
	}
	return s.Append(signed)
}
