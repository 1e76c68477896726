// Copyright 2026 The Keystone Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"slices"
	"testing"
)

func TestEssentialContentKeys(t *testing.T) {
	tests := []struct {
		eventType string
		want      []string
	}{
		{EventTypeMember, []string{"membership"}},
		{EventTypeCreate, []string{"creator"}},
		{EventTypeJoinRules, []string{"join_rule"}},
		{EventTypeHistoryVisibility, []string{"history_visibility"}},
		{EventTypeAliases, []string{"aliases"}},
		{EventTypePowerLevels, []string{"ban", "events", "events_default", "kick", "redact", "state_default", "users", "users_default"}},
		{EventTypeMessage, nil},
		{EventTypeName, nil},
		{"org.example.custom", nil},
	}

	for _, test := range tests {
		if got := EssentialContentKeys(test.eventType); !slices.Equal(got, test.want) {
			t.Errorf("EssentialContentKeys(%q) = %v, want %v", test.eventType, got, test.want)
		}
	}
}

func TestContentVariantsDeclareKeys(t *testing.T) {
	variants := []Content{
		MemberContent{Membership: MembershipJoin},
		CreateContent{},
		NewPowerLevels().MustBuild(),
		RawContent{Type: "org.example.custom"},
	}
	for _, variant := range variants {
		if !slices.Equal(variant.EssentialKeys(), EssentialContentKeys(variant.EventType())) {
			t.Errorf("%T declares keys %v, registry has %v", variant, variant.EssentialKeys(), EssentialContentKeys(variant.EventType()))
		}
	}
}

func TestParseContent(t *testing.T) {
	content, err := ParseContent(EventTypeMember, map[string]any{"membership": "join", "displayname": "Alice"})
	if err != nil {
		t.Fatalf("ParseContent: %v", err)
	}
	member, ok := content.(MemberContent)
	if !ok {
		t.Fatalf("ParseContent returned %T, want MemberContent", content)
	}
	if member.Membership != MembershipJoin || member.DisplayName != "Alice" {
		t.Errorf("member = %+v", member)
	}

	content, err = ParseContent(EventTypePowerLevels, map[string]any{"users": map[string]any{"@alice:example.org": 100}})
	if err != nil {
		t.Fatalf("ParseContent(power_levels): %v", err)
	}
	if levels := content.(PowerLevels); levels.ForUser(alice) != LevelAdmin {
		t.Errorf("power levels alice = %d", levels.ForUser(alice))
	}

	content, err = ParseContent("org.example.custom", map[string]any{"k": "v"})
	if err != nil {
		t.Fatalf("ParseContent(custom): %v", err)
	}
	if raw, ok := content.(RawContent); !ok || raw.Fields["k"] != "v" {
		t.Errorf("custom content = %#v", content)
	}
}
