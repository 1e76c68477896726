// Copyright 2026 The Keystone Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"slices"

	"github.com/keystone-hs/keystone/lib/schema"
)

// Redact returns the reduced projection of an event object that its
// signatures cover: every top-level key outside the essential set is
// dropped, and content keeps only the keys declared essential for the
// event's type (none for types outside the closed set). The input is
// not modified.
func Redact(object map[string]any) map[string]any {
	reduced := make(map[string]any, len(essentialTopLevelKeys))
	for key, value := range object {
		if essentialTopLevelKeys[key] {
			reduced[key] = deepCopy(value)
		}
	}

	eventType, _ := object[KeyType].(string)
	essentials := schema.EssentialContentKeys(eventType)
	content, _ := object[KeyContent].(map[string]any)

	kept := make(map[string]any, len(essentials))
	for key, value := range content {
		if slices.Contains(essentials, key) {
			kept[key] = deepCopy(value)
		}
	}
	reduced[KeyContent] = kept
	return reduced
}
