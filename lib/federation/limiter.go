// Copyright 2026 The Keystone Authors
// SPDX-License-Identifier: Apache-2.0

package federation

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimit paces outbound requests per destination server.
// RequestsPerSecond <= 0 disables pacing.
type RateLimit struct {
	RequestsPerSecond float64
	Burst             int
}

type destinationLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newDestinationLimiter(config RateLimit) *destinationLimiter {
	limit := rate.Inf
	if config.RequestsPerSecond > 0 {
		limit = rate.Limit(config.RequestsPerSecond)
	}
	burst := config.Burst
	if burst <= 0 {
		burst = 1
	}
	return &destinationLimiter{limit: limit, burst: burst, limiters: make(map[string]*rate.Limiter)}
}

// wait blocks until destination may receive another request.
func (d *destinationLimiter) wait(ctx context.Context, destination string) error {
	if d.limit == rate.Inf {
		return nil
	}
	d.mu.Lock()
	limiter, ok := d.limiters[destination]
	if !ok {
		limiter = rate.NewLimiter(d.limit, d.burst)
		d.limiters[destination] = limiter
	}
	d.mu.Unlock()
	return limiter.Wait(ctx)
}
