// Copyright 2026 The Keystone Authors
// SPDX-License-Identifier: Apache-2.0

package room

import (
	"cmp"
	"maps"
	"slices"

	"github.com/keystone-hs/keystone/lib/event"
	"github.com/keystone-hs/keystone/lib/ref"
	"github.com/keystone-hs/keystone/lib/schema"
)

type stateSlot struct {
	eventType string
	stateKey  string
}

// State is an immutable snapshot of a room's current state: the latest
// event per (type, state_key) and the effective power levels.
//
// Power levels are folded rather than replaced: every power levels event
// applied to the snapshot is merged over the previous effective levels,
// so a later event overrides only the users, event types and actions it
// names.
type State struct {
	events      map[stateSlot]*event.Event
	powerLevels schema.PowerLevels
}

func emptyState() *State {
	return &State{
		events:      make(map[stateSlot]*event.Event),
		powerLevels: schema.NewPowerLevels().MustBuild(),
	}
}

// with returns a copy of s with e applied. Non-state events and power
// levels events whose content does not parse leave the levels as they
// were.
func (s *State) with(e *event.Event) *State {
	key, ok := e.StateKey()
	if !ok {
		return s
	}
	next := &State{
		events:      make(map[stateSlot]*event.Event, len(s.events)+1),
		powerLevels: s.powerLevels,
	}
	maps.Copy(next.events, s.events)
	next.events[stateSlot{eventType: e.Type(), stateKey: key}] = e

	if e.Type() == schema.EventTypePowerLevels {
		if content, err := e.TypedContent(); err == nil {
			if levels, ok := content.(schema.PowerLevels); ok {
				next.powerLevels = schema.PowerLevelsFrom(s.powerLevels).Merge(levels).MustBuild()
			}
		}
	}
	return next
}

// StateEvent returns the current event for (eventType, stateKey).
func (s *State) StateEvent(eventType, stateKey string) (*event.Event, bool) {
	found, ok := s.events[stateSlot{eventType: eventType, stateKey: stateKey}]
	return found, ok
}

// Events returns every current state event ordered by type, then state
// key.
func (s *State) Events() []*event.Event {
	keys := make([]stateSlot, 0, len(s.events))
	for key := range s.events {
		keys = append(keys, key)
	}
	slices.SortFunc(keys, func(a, b stateSlot) int {
		return cmp.Or(cmp.Compare(a.eventType, b.eventType), cmp.Compare(a.stateKey, b.stateKey))
	})
	events := make([]*event.Event, 0, len(keys))
	for _, key := range keys {
		events = append(events, s.events[key])
	}
	return events
}

// Len returns the number of current state events.
func (s *State) Len() int { return len(s.events) }

// PowerLevels returns the effective power levels.
func (s *State) PowerLevels() schema.PowerLevels { return s.powerLevels }

// Creator returns the user named by the m.room.create event.
func (s *State) Creator() (ref.UserID, bool) {
	content, ok := s.content(schema.EventTypeCreate, "")
	if !ok {
		return ref.UserID{}, false
	}
	create, ok := content.(schema.CreateContent)
	return create.Creator, ok
}

// Membership returns the membership of user, or "" when the room has
// no member event for them.
func (s *State) Membership(user ref.UserID) string {
	content, ok := s.content(schema.EventTypeMember, user.String())
	if !ok {
		return ""
	}
	member, _ := content.(schema.MemberContent)
	return member.Membership
}

// Members returns the users whose membership equals membership, sorted.
func (s *State) Members(membership string) []ref.UserID {
	var members []ref.UserID
	for key, e := range s.events {
		if key.eventType != schema.EventTypeMember {
			continue
		}
		user, err := ref.ParseUserID(key.stateKey)
		if err != nil {
			continue
		}
		if content, err := e.TypedContent(); err == nil {
			if member, ok := content.(schema.MemberContent); ok && member.Membership == membership {
				members = append(members, user)
			}
		}
	}
	slices.SortFunc(members, func(a, b ref.UserID) int { return cmp.Compare(a.String(), b.String()) })
	return members
}

// JoinRule returns the current join rule, or "" when unset.
func (s *State) JoinRule() string {
	content, ok := s.content(schema.EventTypeJoinRules, "")
	if !ok {
		return ""
	}
	rules, _ := content.(schema.JoinRulesContent)
	return rules.JoinRule
}

// HistoryVisibility returns the current history visibility, or "".
func (s *State) HistoryVisibility() string {
	content, ok := s.content(schema.EventTypeHistoryVisibility, "")
	if !ok {
		return ""
	}
	visibility, _ := content.(schema.HistoryVisibilityContent)
	return visibility.HistoryVisibility
}

// Name returns the room name, or "".
func (s *State) Name() string {
	content, ok := s.content(schema.EventTypeName, "")
	if !ok {
		return ""
	}
	name, _ := content.(schema.NameContent)
	return name.Name
}

// Topic returns the room topic, or "".
func (s *State) Topic() string {
	content, ok := s.content(schema.EventTypeTopic, "")
	if !ok {
		return ""
	}
	topic, _ := content.(schema.TopicContent)
	return topic.Topic
}

func (s *State) content(eventType, key string) (schema.Content, bool) {
	found, ok := s.StateEvent(eventType, key)
	if !ok {
		return nil, false
	}
	content, err := found.TypedContent()
	if err != nil {
		return nil, false
	}
	return content, true
}
