// Copyright 2026 The Keystone Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for keystone packages.
//
// [RequireReceive] wraps the select-with-timeout pattern so tests that
// wait on a goroutine's result do not each call time.After. [Eventually]
// polls a condition for tests that observe a background loop, such as
// the room sweeper or the metrics listener, where no channel exists to
// wait on. These are the only places tests use real wall-clock
// timeouts; everything else drives a clock.FakeClock.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no keystone-internal dependencies.
package testutil
