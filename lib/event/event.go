// Copyright 2026 The Keystone Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/keystone-hs/keystone/lib/canonicaljson"
	"github.com/keystone-hs/keystone/lib/ref"
	"github.com/keystone-hs/keystone/lib/schema"
)

// Event is an immutable room event. It wraps the full JSON object and
// caches the fields the graph needs. Accessors that return composite
// values return copies.
type Event struct {
	object map[string]any

	id             ref.EventID
	roomID         ref.RoomID
	sender         ref.UserID
	eventType      string
	stateKey       *string
	depth          int64
	originServerTS int64
	origin         ref.ServerName
	prevEvents     []ref.EventID
	authEvents     []ref.EventID
}

// Parse decodes an event from JSON.
func Parse(data []byte) (*Event, error) {
	object, err := canonicaljson.DecodeObject(data)
	if err != nil {
		return nil, fmt.Errorf("parsing event: %w", err)
	}
	return fromOwnedObject(object)
}

// FromObject builds an Event from a generic JSON object. The object is
// copied; later changes to it do not affect the Event.
func FromObject(object map[string]any) (*Event, error) {
	return fromOwnedObject(copyObject(object))
}

func fromOwnedObject(object map[string]any) (*Event, error) {
	e := &Event{object: object}

	rawID, err := stringField(object, KeyEventID, true)
	if err != nil {
		return nil, err
	}
	if e.id, err = ref.ParseEventID(rawID); err != nil {
		return nil, fmt.Errorf("event %s: %w", KeyEventID, err)
	}

	if e.eventType, err = stringField(object, KeyType, true); err != nil {
		return nil, err
	}

	rawRoom, err := stringField(object, KeyRoomID, true)
	if err != nil {
		return nil, err
	}
	if e.roomID, err = ref.ParseRoomID(rawRoom); err != nil {
		return nil, fmt.Errorf("event %s: %w", KeyRoomID, err)
	}

	rawSender, err := stringField(object, KeySender, true)
	if err != nil {
		return nil, err
	}
	if e.sender, err = ref.ParseUserID(rawSender); err != nil {
		return nil, fmt.Errorf("event %s: %w", KeySender, err)
	}

	if value, present := object[KeyStateKey]; present {
		stateKey, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("event %s: expected string, got %T", KeyStateKey, value)
		}
		e.stateKey = &stateKey
	}

	if e.depth, err = integerField(object, KeyDepth); err != nil {
		return nil, err
	}
	if e.originServerTS, err = integerField(object, KeyOriginServerTS); err != nil {
		return nil, err
	}

	rawOrigin, err := stringField(object, KeyOrigin, false)
	if err != nil {
		return nil, err
	}
	if rawOrigin != "" {
		if e.origin, err = ref.ParseServerName(rawOrigin); err != nil {
			return nil, fmt.Errorf("event %s: %w", KeyOrigin, err)
		}
	}

	if e.prevEvents, err = referenceList(object, KeyPrevEvents); err != nil {
		return nil, err
	}
	if e.authEvents, err = referenceList(object, KeyAuthEvents); err != nil {
		return nil, err
	}
	return e, nil
}

// ID returns the event id.
func (e *Event) ID() ref.EventID { return e.id }

// RoomID returns the room the event belongs to.
func (e *Event) RoomID() ref.RoomID { return e.roomID }

// Sender returns the user that sent the event.
func (e *Event) Sender() ref.UserID { return e.sender }

// Type returns the event type.
func (e *Event) Type() string { return e.eventType }

// StateKey returns the state key and whether one is present. Only
// events with a state key are state events.
func (e *Event) StateKey() (string, bool) {
	if e.stateKey == nil {
		return "", false
	}
	return *e.stateKey, true
}

// IsState reports whether the event carries a state key.
func (e *Event) IsState() bool { return e.stateKey != nil }

// Depth returns the event's depth in the graph.
func (e *Event) Depth() int64 { return e.depth }

// OriginServerTS returns the origin timestamp in milliseconds.
func (e *Event) OriginServerTS() int64 { return e.originServerTS }

// Origin returns the server that created the event.
func (e *Event) Origin() ref.ServerName { return e.origin }

// PrevEvents returns the ids of the event's graph parents.
func (e *Event) PrevEvents() []ref.EventID { return append([]ref.EventID(nil), e.prevEvents...) }

// AuthEvents returns the ids of the events that authorize this one.
func (e *Event) AuthEvents() []ref.EventID { return append([]ref.EventID(nil), e.authEvents...) }

// Content returns a copy of the raw content object.
func (e *Event) Content() map[string]any {
	content, _ := e.object[KeyContent].(map[string]any)
	if content == nil {
		return map[string]any{}
	}
	return copyObject(content)
}

// TypedContent decodes the content into its schema variant.
func (e *Event) TypedContent() (schema.Content, error) {
	content, err := schema.ParseContent(e.eventType, e.Content())
	if err != nil {
		return nil, fmt.Errorf("event %s content: %w", e.id, err)
	}
	return content, nil
}

// ContentHash returns the stored content hash for algorithm, or "".
func (e *Event) ContentHash(algorithm string) string {
	hashes, _ := e.object[KeyHashes].(map[string]any)
	value, _ := hashes[algorithm].(string)
	return value
}

// Signatures returns a copy of the signature map: server name to key
// id to unpadded base64 signature.
func (e *Event) Signatures() map[string]map[string]string {
	signatures, _ := e.object[KeySignatures].(map[string]any)
	result := make(map[string]map[string]string, len(signatures))
	for server, keys := range signatures {
		keyMap, _ := keys.(map[string]any)
		entries := make(map[string]string, len(keyMap))
		for keyID, signature := range keyMap {
			if text, ok := signature.(string); ok {
				entries[keyID] = text
			}
		}
		result[server] = entries
	}
	return result
}

// Object returns a deep copy of the full JSON object.
func (e *Event) Object() map[string]any { return copyObject(e.object) }

// JSON returns the canonical JSON encoding of the event.
func (e *Event) JSON() ([]byte, error) { return canonicaljson.Marshal(e.object) }

// MarshalJSON implements json.Marshaler.
func (e *Event) MarshalJSON() ([]byte, error) { return e.JSON() }

// UnmarshalJSON implements json.Unmarshaler.
func (e *Event) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*e = *parsed
	return nil
}

// String returns a short description for logs.
func (e *Event) String() string {
	if e.stateKey != nil {
		return fmt.Sprintf("%s (%s %q)", e.id, e.eventType, *e.stateKey)
	}
	return fmt.Sprintf("%s (%s)", e.id, e.eventType)
}

func stringField(object map[string]any, key string, required bool) (string, error) {
	value, present := object[key]
	if !present {
		if required {
			return "", fmt.Errorf("event is missing %s", key)
		}
		return "", nil
	}
	text, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("event %s: expected string, got %T", key, value)
	}
	return text, nil
}

// integerField reads an optional integer. Absent keys read as zero.
func integerField(object map[string]any, key string) (int64, error) {
	value, present := object[key]
	if !present {
		return 0, nil
	}
	switch typed := value.(type) {
	case json.Number:
		parsed, err := typed.Int64()
		if err != nil {
			return 0, fmt.Errorf("event %s: %w", key, err)
		}
		return parsed, nil
	case int64:
		return typed, nil
	case int:
		return int64(typed), nil
	case float64:
		if typed != float64(int64(typed)) {
			return 0, fmt.Errorf("event %s: %s is not an integer", key, strconv.FormatFloat(typed, 'g', -1, 64))
		}
		return int64(typed), nil
	default:
		return 0, fmt.Errorf("event %s: expected integer, got %T", key, value)
	}
}

// referenceList reads prev_events or auth_events. Entries are either
// bare event ids or [id, {hashes}] pairs as older room versions send.
func referenceList(object map[string]any, key string) ([]ref.EventID, error) {
	value, present := object[key]
	if !present {
		return nil, nil
	}
	entries, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("event %s: expected array, got %T", key, value)
	}
	ids := make([]ref.EventID, 0, len(entries))
	for index, entry := range entries {
		raw, ok := entry.(string)
		if !ok {
			if pair, isPair := entry.([]any); isPair && len(pair) > 0 {
				raw, ok = pair[0].(string)
			}
		}
		if !ok {
			return nil, fmt.Errorf("event %s[%d]: expected event id, got %T", key, index, entry)
		}
		id, err := ref.ParseEventID(raw)
		if err != nil {
			return nil, fmt.Errorf("event %s[%d]: %w", key, index, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
