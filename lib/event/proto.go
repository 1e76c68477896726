// Copyright 2026 The Keystone Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"encoding/json"
	"fmt"

	"github.com/keystone-hs/keystone/lib/canonicaljson"
)

// Proto is an event under construction: a mutable JSON object that is
// filled in step by step (id, graph position, hashes, signatures) and
// then frozen into an [Event]. A Proto is not safe for concurrent use.
type Proto struct {
	object map[string]any
}

// NewProto returns a Proto holding a copy of object.
func NewProto(object map[string]any) *Proto {
	if object == nil {
		return &Proto{object: map[string]any{}}
	}
	return &Proto{object: copyObject(object)}
}

// ParseProto decodes a Proto from JSON, such as a make_join template.
func ParseProto(data []byte) (*Proto, error) {
	object, err := canonicaljson.DecodeObject(data)
	if err != nil {
		return nil, fmt.Errorf("parsing event template: %w", err)
	}
	return &Proto{object: object}, nil
}

// Get returns the value stored under key.
func (p *Proto) Get(key string) (any, bool) {
	value, ok := p.object[key]
	return value, ok
}

// String returns the string stored under key, or "".
func (p *Proto) String(key string) string {
	value, _ := p.object[key].(string)
	return value
}

// Has reports whether key is present.
func (p *Proto) Has(key string) bool {
	_, ok := p.object[key]
	return ok
}

// Set stores value under key, converted to its generic JSON form so
// that typed values (ids, content structs, slices) hash the same as
// the decoded form a remote server would see.
func (p *Proto) Set(key string, value any) error {
	generic, err := canonicaljson.ToValue(value)
	if err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}
	p.object[key] = generic
	return nil
}

// Delete removes key.
func (p *Proto) Delete(key string) { delete(p.object, key) }

// Object returns a deep copy of the working object.
func (p *Proto) Object() map[string]any { return copyObject(p.object) }

// Clone returns an independent copy.
func (p *Proto) Clone() *Proto { return &Proto{object: copyObject(p.object)} }

// Freeze validates the working object and returns the immutable Event.
// The Proto may be reused afterwards without affecting the result.
func (p *Proto) Freeze() (*Event, error) { return FromObject(p.object) }

// MarshalJSON implements json.Marshaler.
func (p *Proto) MarshalJSON() ([]byte, error) { return json.Marshal(p.object) }
