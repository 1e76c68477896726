// Copyright 2026 The Keystone Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time for testability. Production code injects
// Real(); tests inject Fake() and move time explicitly with Advance.
//
// Event timestamps, id allocation, and room cache idle tracking all read
// time through a Clock so that tests can assert exact origin_server_ts
// values and drive cache eviction without sleeping.
package clock

import "time"

// Clock is the subset of the time package the homeserver core uses.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once d has
	// elapsed. If d <= 0 the channel receives immediately.
	After(d time.Duration) <-chan time.Time
}
