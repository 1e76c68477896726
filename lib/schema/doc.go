// Copyright 2026 The Keystone Authors
// SPDX-License-Identifier: Apache-2.0

// Package schema defines the Matrix room event types the homeserver core
// understands and their typed content.
//
// Content is a closed set of variants keyed by event type. Each variant
// declares which of its keys survive the signing-time redaction (see
// [EssentialContentKeys]); everything else in the content is left out of
// the bytes that are signed. Events of types outside the closed set
// travel as [RawContent] and keep no content keys when redacted.
//
// [PowerLevels] is an immutable view of m.room.power_levels content.
// It is produced by a [PowerLevelsBuilder], usually starting from
// [NewPowerLevels]().Defaults() and layering overrides on top.
package schema
