// Copyright 2026 The Keystone Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"encoding/json"
	"maps"

	"github.com/keystone-hs/keystone/lib/ref"
)

// Room event types.
const (
	EventTypeCreate            = "m.room.create"
	EventTypeMember            = "m.room.member"
	EventTypePowerLevels       = "m.room.power_levels"
	EventTypeJoinRules         = "m.room.join_rules"
	EventTypeHistoryVisibility = "m.room.history_visibility"
	EventTypeAliases           = "m.room.aliases"
	EventTypeName              = "m.room.name"
	EventTypeTopic             = "m.room.topic"
	EventTypeMessage           = "m.room.message"
)

// Membership states carried in m.room.member content.
const (
	MembershipJoin   = "join"
	MembershipInvite = "invite"
	MembershipLeave  = "leave"
	MembershipBan    = "ban"
	MembershipKnock  = "knock"
)

// Join rules carried in m.room.join_rules content.
const (
	JoinRulePublic = "public"
	JoinRuleInvite = "invite"
)

// History visibility settings.
const (
	HistoryVisibilityShared        = "shared"
	HistoryVisibilityInvited       = "invited"
	HistoryVisibilityJoined        = "joined"
	HistoryVisibilityWorldReadable = "world_readable"
)

// Room creation presets.
const (
	PresetPublicChat         = "public_chat"
	PresetPrivateChat        = "private_chat"
	PresetTrustedPrivateChat = "trusted_private_chat"
)

// essentialContentKeys lists, per event type, the content keys that are
// kept when an event is reduced for signing. Types not listed keep none.
var essentialContentKeys = map[string][]string{
	EventTypeAliases:           {"aliases"},
	EventTypeCreate:            {"creator"},
	EventTypeHistoryVisibility: {"history_visibility"},
	EventTypeJoinRules:         {"join_rule"},
	EventTypeMember:            {"membership"},
	EventTypePowerLevels: {
		"ban",
		"events",
		"events_default",
		"kick",
		"redact",
		"state_default",
		"users",
		"users_default",
	},
}

// EssentialContentKeys returns the content keys of eventType that
// survive signing-time redaction. The returned slice must not be
// modified.
func EssentialContentKeys(eventType string) []string {
	return essentialContentKeys[eventType]
}

// IsStateType reports whether events of this type are always state
// events in the closed set.
func IsStateType(eventType string) bool {
	switch eventType {
	case EventTypeCreate, EventTypeMember, EventTypePowerLevels, EventTypeJoinRules,
		EventTypeHistoryVisibility, EventTypeAliases, EventTypeName, EventTypeTopic:
		return true
	}
	return false
}

// Content is implemented by every event content variant.
type Content interface {
	// EventType returns the event type this content belongs to.
	EventType() string

	// EssentialKeys returns the content keys kept by signing-time
	// redaction.
	EssentialKeys() []string

	content()
}

// CreateContent is the content of m.room.create.
type CreateContent struct {
	Creator     ref.UserID `json:"creator"`
	RoomVersion string     `json:"room_version,omitempty"`
}

// MemberContent is the content of m.room.member. The target user is the
// event's state key.
type MemberContent struct {
	Membership  string `json:"membership"`
	DisplayName string `json:"displayname,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// JoinRulesContent is the content of m.room.join_rules.
type JoinRulesContent struct {
	JoinRule string `json:"join_rule"`
}

// HistoryVisibilityContent is the content of m.room.history_visibility.
type HistoryVisibilityContent struct {
	HistoryVisibility string `json:"history_visibility"`
}

// AliasesContent is the content of m.room.aliases. The state key is the
// server that owns the aliases.
type AliasesContent struct {
	Aliases []ref.RoomAlias `json:"aliases"`
}

// NameContent is the content of m.room.name.
type NameContent struct {
	Name string `json:"name"`
}

// TopicContent is the content of m.room.topic.
type TopicContent struct {
	Topic string `json:"topic"`
}

// MessageContent is the content of m.room.message.
type MessageContent struct {
	MsgType string `json:"msgtype"`
	Body    string `json:"body"`
}

// RawContent carries the content of an event type outside the closed
// set, or content received from a remote server that is kept verbatim.
type RawContent struct {
	Type   string
	Fields map[string]any
}

func (CreateContent) EventType() string            { return EventTypeCreate }
func (MemberContent) EventType() string            { return EventTypeMember }
func (JoinRulesContent) EventType() string         { return EventTypeJoinRules }
func (HistoryVisibilityContent) EventType() string { return EventTypeHistoryVisibility }
func (AliasesContent) EventType() string           { return EventTypeAliases }
func (NameContent) EventType() string              { return EventTypeName }
func (TopicContent) EventType() string             { return EventTypeTopic }
func (MessageContent) EventType() string           { return EventTypeMessage }
func (c RawContent) EventType() string             { return c.Type }

func (c CreateContent) EssentialKeys() []string    { return EssentialContentKeys(c.EventType()) }
func (c MemberContent) EssentialKeys() []string    { return EssentialContentKeys(c.EventType()) }
func (c JoinRulesContent) EssentialKeys() []string { return EssentialContentKeys(c.EventType()) }
func (c HistoryVisibilityContent) EssentialKeys() []string {
	return EssentialContentKeys(c.EventType())
}
func (c AliasesContent) EssentialKeys() []string { return EssentialContentKeys(c.EventType()) }
func (c NameContent) EssentialKeys() []string    { return EssentialContentKeys(c.EventType()) }
func (c TopicContent) EssentialKeys() []string   { return EssentialContentKeys(c.EventType()) }
func (c MessageContent) EssentialKeys() []string { return EssentialContentKeys(c.EventType()) }
func (c RawContent) EssentialKeys() []string     { return EssentialContentKeys(c.Type) }

func (CreateContent) content()            {}
func (MemberContent) content()            {}
func (JoinRulesContent) content()         {}
func (HistoryVisibilityContent) content() {}
func (AliasesContent) content()           {}
func (NameContent) content()              {}
func (TopicContent) content()             {}
func (MessageContent) content()           {}
func (RawContent) content()               {}

// MarshalJSON encodes the raw fields as the content object.
func (c RawContent) MarshalJSON() ([]byte, error) {
	if c.Fields == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(c.Fields)
}

// ParseContent decodes the content of an event of the given type into
// its typed variant. Unknown types decode into RawContent.
func ParseContent(eventType string, fields map[string]any) (Content, error) {
	var target Content
	switch eventType {
	case EventTypeCreate:
		target = &CreateContent{}
	case EventTypeMember:
		target = &MemberContent{}
	case EventTypePowerLevels:
		target = &PowerLevels{}
	case EventTypeJoinRules:
		target = &JoinRulesContent{}
	case EventTypeHistoryVisibility:
		target = &HistoryVisibilityContent{}
	case EventTypeAliases:
		target = &AliasesContent{}
	case EventTypeName:
		target = &NameContent{}
	case EventTypeTopic:
		target = &TopicContent{}
	case EventTypeMessage:
		target = &MessageContent{}
	default:
		return RawContent{Type: eventType, Fields: maps.Clone(fields)}, nil
	}

	data, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, target); err != nil {
		return nil, err
	}
	return dereference(target), nil
}

func dereference(content Content) Content {
	switch typed := content.(type) {
	case *CreateContent:
		return *typed
	case *MemberContent:
		return *typed
	case *PowerLevels:
		return *typed
	case *JoinRulesContent:
		return *typed
	case *HistoryVisibilityContent:
		return *typed
	case *AliasesContent:
		return *typed
	case *NameContent:
		return *typed
	case *TopicContent:
		return *typed
	case *MessageContent:
		return *typed
	}
	return content
}
