// Copyright 2026 The Keystone Authors
// SPDX-License-Identifier: Apache-2.0

// Package event defines the three shapes a room event takes on its way
// into the event graph:
//
//   - [NakedEvent]: what a caller wants to say (sender, optional state
//     key, typed content), with no identity or graph position.
//   - [Proto]: the mutable JSON working form an event has while it is
//     populated, hashed and signed. Remote servers hand out protos too
//     (the make_join template).
//   - [Event]: the immutable result. Its id, hashes and signatures never
//     change; any further change requires a new event.
//
// [Redact] computes the reduced projection that signatures cover.
package event
