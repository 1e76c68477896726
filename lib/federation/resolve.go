// Copyright 2026 The Keystone Authors
// SPDX-License-Identifier: Apache-2.0

package federation

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/keystone-hs/keystone/lib/ref"
)

// DefaultPort is the federation port used when a server name carries
// none.
const DefaultPort = 8448

// Resolver maps a server name to the host and port that serve its
// federation API.
type Resolver interface {
	Resolve(ctx context.Context, server ref.ServerName) (host string, port int, err error)
}

// DefaultResolver uses the server name itself: an explicit port wins,
// otherwise Port (DefaultPort when zero). It performs no DNS or
// well-known lookups.
type DefaultResolver struct {
	Port int
}

func (r DefaultResolver) Resolve(_ context.Context, server ref.ServerName) (string, int, error) {
	if server.IsZero() {
		return "", 0, fmt.Errorf("resolving empty server name")
	}
	host, port := server.HostPort()
	if port != 0 {
		return host, port, nil
	}
	if r.Port != 0 {
		return host, r.Port, nil
	}
	return host, DefaultPort, nil
}

// StaticResolver answers from a fixed table of "host:port" entries and
// defers everything else to Fallback (DefaultResolver when nil).
type StaticResolver struct {
	Hosts    map[string]string
	Fallback Resolver
}

func (r StaticResolver) Resolve(ctx context.Context, server ref.ServerName) (string, int, error) {
	if address, ok := r.Hosts[server.String()]; ok {
		host, portText, err := net.SplitHostPort(address)
		if err != nil {
			return "", 0, fmt.Errorf("static address for %s: %w", server, err)
		}
		port, err := strconv.Atoi(portText)
		if err != nil || port <= 0 || port > 65535 {
			return "", 0, fmt.Errorf("static address for %s: bad port %q", server, portText)
		}
		return host, port, nil
	}
	if r.Fallback != nil {
		return r.Fallback.Resolve(ctx, server)
	}
	return DefaultResolver{}.Resolve(ctx, server)
}
