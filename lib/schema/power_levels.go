// Copyright 2026 The Keystone Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"encoding/json"
	"fmt"
	"maps"

	"github.com/keystone-hs/keystone/lib/ref"
)

// Well-known power levels.
const (
	LevelDefault   int64 = 0
	LevelModerator int64 = 50
	LevelAdmin     int64 = 100
)

// Action names a threshold in m.room.power_levels content.
type Action string

// Named action thresholds.
const (
	ActionBan           Action = "ban"
	ActionKick          Action = "kick"
	ActionRedact        Action = "redact"
	ActionInvite        Action = "invite"
	ActionStateDefault  Action = "state_default"
	ActionEventsDefault Action = "events_default"
	ActionUsersDefault  Action = "users_default"
)

// actions lists every named threshold in serialization order.
var actions = []Action{
	ActionBan,
	ActionKick,
	ActionRedact,
	ActionInvite,
	ActionStateDefault,
	ActionEventsDefault,
	ActionUsersDefault,
}

// implicitActionLevels are the levels a room assumes for thresholds that
// its power levels content does not mention.
var implicitActionLevels = map[Action]int64{
	ActionBan:           LevelModerator,
	ActionKick:          LevelModerator,
	ActionRedact:        LevelModerator,
	ActionInvite:        LevelDefault,
	ActionStateDefault:  LevelModerator,
	ActionEventsDefault: LevelDefault,
	ActionUsersDefault:  LevelDefault,
}

// PowerLevels is an immutable view of m.room.power_levels content: a
// per-user level map, per-event-type levels, and named action
// thresholds. Values are built with a PowerLevelsBuilder; every level
// is a non-negative integer.
//
// Only explicitly set thresholds are serialized. Lookups for thresholds
// that were never set fall back to the implicit room defaults.
type PowerLevels struct {
	users   map[string]int64
	events  map[string]int64
	actions map[Action]int64
}

// EventType implements Content.
func (PowerLevels) EventType() string { return EventTypePowerLevels }

// EssentialKeys implements Content.
func (PowerLevels) EssentialKeys() []string { return EssentialContentKeys(EventTypePowerLevels) }

func (PowerLevels) content() {}

// ForUser returns the level of a user: the explicit entry if present,
// otherwise users_default.
func (p PowerLevels) ForUser(userID ref.UserID) int64 {
	if level, ok := p.users[userID.String()]; ok {
		return level
	}
	return p.ForAction(ActionUsersDefault)
}

// ForEvent returns the level required to send an event of the given
// type. Types without an explicit entry require state_default for state
// events and events_default otherwise.
func (p PowerLevels) ForEvent(eventType string, isState bool) int64 {
	if level, ok := p.events[eventType]; ok {
		return level
	}
	if isState {
		return p.ForAction(ActionStateDefault)
	}
	return p.ForAction(ActionEventsDefault)
}

// ForAction returns the threshold for a named action.
func (p PowerLevels) ForAction(action Action) int64 {
	if level, ok := p.actions[action]; ok {
		return level
	}
	return implicitActionLevels[action]
}

// Users returns a copy of the explicit per-user levels.
func (p PowerLevels) Users() map[string]int64 { return maps.Clone(p.users) }

// Events returns a copy of the explicit per-event-type levels.
func (p PowerLevels) Events() map[string]int64 { return maps.Clone(p.events) }

// powerLevelsWire is the JSON shape of m.room.power_levels content.
type powerLevelsWire struct {
	Users         map[string]int64 `json:"users,omitempty"`
	UsersDefault  *int64           `json:"users_default,omitempty"`
	Events        map[string]int64 `json:"events,omitempty"`
	EventsDefault *int64           `json:"events_default,omitempty"`
	StateDefault  *int64           `json:"state_default,omitempty"`
	Invite        *int64           `json:"invite,omitempty"`
	Ban           *int64           `json:"ban,omitempty"`
	Kick          *int64           `json:"kick,omitempty"`
	Redact        *int64           `json:"redact,omitempty"`
}

func (w *powerLevelsWire) field(action Action) **int64 {
	switch action {
	case ActionBan:
		return &w.Ban
	case ActionKick:
		return &w.Kick
	case ActionRedact:
		return &w.Redact
	case ActionInvite:
		return &w.Invite
	case ActionStateDefault:
		return &w.StateDefault
	case ActionEventsDefault:
		return &w.EventsDefault
	case ActionUsersDefault:
		return &w.UsersDefault
	}
	panic(fmt.Sprintf("schema: unknown power level action %q", action))
}

// MarshalJSON encodes the power levels as m.room.power_levels content.
func (p PowerLevels) MarshalJSON() ([]byte, error) {
	wire := powerLevelsWire{Users: p.users, Events: p.events}
	for _, action := range actions {
		if level, ok := p.actions[action]; ok {
			*wire.field(action) = &level
		}
	}
	return json.Marshal(wire)
}

// UnmarshalJSON decodes m.room.power_levels content. Negative levels are
// rejected.
func (p *PowerLevels) UnmarshalJSON(data []byte) error {
	var wire powerLevelsWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("schema: parsing power levels: %w", err)
	}

	builder := NewPowerLevels()
	for user, level := range wire.Users {
		builder.users[user] = level
	}
	for eventType, level := range wire.Events {
		builder.events[eventType] = level
	}
	for _, action := range actions {
		if value := *wire.field(action); value != nil {
			builder.actions[action] = *value
		}
	}

	built, err := builder.Build()
	if err != nil {
		return err
	}
	*p = built
	return nil
}

// PowerLevelsBuilder accumulates power level settings. The zero value is
// not usable; call NewPowerLevels or PowerLevelsFrom.
type PowerLevelsBuilder struct {
	users   map[string]int64
	events  map[string]int64
	actions map[Action]int64
}

// NewPowerLevels returns an empty builder.
func NewPowerLevels() *PowerLevelsBuilder {
	return &PowerLevelsBuilder{
		users:   make(map[string]int64),
		events:  make(map[string]int64),
		actions: make(map[Action]int64),
	}
}

// PowerLevelsFrom returns a builder seeded with existing power levels.
func PowerLevelsFrom(existing PowerLevels) *PowerLevelsBuilder {
	builder := NewPowerLevels()
	return builder.Merge(existing)
}

// Defaults sets the canonical baseline levels of a freshly created
// room: every named action explicit, and elevated levels for the state
// events that control the room itself.
func (b *PowerLevelsBuilder) Defaults() *PowerLevelsBuilder {
	maps.Copy(b.actions, implicitActionLevels)
	b.events[EventTypeName] = LevelModerator
	b.events[EventTypeTopic] = LevelModerator
	b.events[EventTypeAliases] = LevelModerator
	b.events[EventTypePowerLevels] = LevelAdmin
	b.events[EventTypeHistoryVisibility] = LevelAdmin
	b.events[EventTypeJoinRules] = LevelAdmin
	return b
}

// SetUser sets the level of a user.
func (b *PowerLevelsBuilder) SetUser(userID ref.UserID, level int64) *PowerLevelsBuilder {
	b.users[userID.String()] = level
	return b
}

// SetEvent sets the level required to send an event type.
func (b *PowerLevelsBuilder) SetEvent(eventType string, level int64) *PowerLevelsBuilder {
	b.events[eventType] = level
	return b
}

// SetAction sets a named action threshold.
func (b *PowerLevelsBuilder) SetAction(action Action, level int64) *PowerLevelsBuilder {
	b.actions[action] = level
	return b
}

// Merge layers other on top of the builder: every user, event type and
// action explicitly present in other overrides the current value.
func (b *PowerLevelsBuilder) Merge(other PowerLevels) *PowerLevelsBuilder {
	maps.Copy(b.users, other.users)
	maps.Copy(b.events, other.events)
	maps.Copy(b.actions, other.actions)
	return b
}

// Build validates the accumulated levels and returns an immutable
// PowerLevels.
func (b *PowerLevelsBuilder) Build() (PowerLevels, error) {
	for user, level := range b.users {
		if level < 0 {
			return PowerLevels{}, fmt.Errorf("schema: user %s has negative power level %d", user, level)
		}
	}
	for eventType, level := range b.events {
		if level < 0 {
			return PowerLevels{}, fmt.Errorf("schema: event type %s has negative power level %d", eventType, level)
		}
	}
	for action, level := range b.actions {
		if level < 0 {
			return PowerLevels{}, fmt.Errorf("schema: action %s has negative power level %d", action, level)
		}
	}
	return PowerLevels{
		users:   maps.Clone(b.users),
		events:  maps.Clone(b.events),
		actions: maps.Clone(b.actions),
	}, nil
}

// MustBuild is like Build but panics on invalid levels. Use it only with
// levels that are known to be non-negative.
func (b *PowerLevelsBuilder) MustBuild() PowerLevels {
	built, err := b.Build()
	if err != nil {
		panic(err)
	}
	return built
}
