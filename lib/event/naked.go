// Copyright 2026 The Keystone Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"fmt"

	"github.com/keystone-hs/keystone/lib/ref"
	"github.com/keystone-hs/keystone/lib/schema"
)

// NakedEvent is what a caller asks the server to send: a sender,
// typed content, and a state key for state events. It has no id, room
// or graph position yet.
type NakedEvent struct {
	Sender   ref.UserID
	StateKey *string
	Content  schema.Content
}

// Type returns the event type implied by the content.
func (n NakedEvent) Type() string { return n.Content.EventType() }

// Proto converts the naked event into a working object bound to room.
func (n NakedEvent) Proto(roomID ref.RoomID) (*Proto, error) {
	if n.Content == nil {
		return nil, fmt.Errorf("naked event from %s has no content", n.Sender)
	}
	proto := NewProto(nil)
	for key, value := range map[string]any{
		KeyType:    n.Type(),
		KeyRoomID:  roomID,
		KeySender:  n.Sender,
		KeyContent: n.Content,
	} {
		if err := proto.Set(key, value); err != nil {
			return nil, err
		}
	}
	if n.StateKey != nil {
		if err := proto.Set(KeyStateKey, *n.StateKey); err != nil {
			return nil, err
		}
	}
	return proto, nil
}

// StateKey returns a pointer to key, for NakedEvent literals.
func StateKey(key string) *string { return &key }

// NewState builds a state event with an explicit state key.
func NewState(sender ref.UserID, stateKey string, content schema.Content) NakedEvent {
	return NakedEvent{Sender: sender, StateKey: StateKey(stateKey), Content: content}
}

// NewCreate builds the m.room.create event that founds a room.
func NewCreate(creator ref.UserID) NakedEvent {
	return NewState(creator, "", schema.CreateContent{Creator: creator})
}

// NewMembership builds an m.room.member event for target.
func NewMembership(sender, target ref.UserID, membership string) NakedEvent {
	return NewState(sender, target.String(), schema.MemberContent{Membership: membership})
}

// NewPowerLevels builds an m.room.power_levels event.
func NewPowerLevels(sender ref.UserID, levels schema.PowerLevels) NakedEvent {
	return NewState(sender, "", levels)
}

// NewJoinRules builds an m.room.join_rules event.
func NewJoinRules(sender ref.UserID, rule string) NakedEvent {
	return NewState(sender, "", schema.JoinRulesContent{JoinRule: rule})
}

// NewHistoryVisibility builds an m.room.history_visibility event.
func NewHistoryVisibility(sender ref.UserID, visibility string) NakedEvent {
	return NewState(sender, "", schema.HistoryVisibilityContent{HistoryVisibility: visibility})
}

// NewName builds an m.room.name event.
func NewName(sender ref.UserID, name string) NakedEvent {
	return NewState(sender, "", schema.NameContent{Name: name})
}

// NewTopic builds an m.room.topic event.
func NewTopic(sender ref.UserID, topic string) NakedEvent {
	return NewState(sender, "", schema.TopicContent{Topic: topic})
}

// NewMessage builds a non-state m.room.message event.
func NewMessage(sender ref.UserID, msgType, body string) NakedEvent {
	return NakedEvent{Sender: sender, Content: schema.MessageContent{MsgType: msgType, Body: body}}
}
