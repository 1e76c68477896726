// Copyright 2026 The Keystone Authors
// SPDX-License-Identifier: Apache-2.0

package room

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	cached           prometheus.Gauge
	loads            prometheus.Counter
	evictions        prometheus.Counter
	created          prometheus.Counter
	joins            *prometheus.CounterVec
	listenerFailures prometheus.Counter
}

func newMetrics(registerer prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		cached: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "keystone",
			Subsystem: "rooms",
			Name:      "cached",
			Help:      "Rooms currently held in the manager's cache.",
		}),
		loads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "keystone",
			Subsystem: "rooms",
			Name:      "loads_total",
			Help:      "Rooms rebuilt from their persisted record on a cache miss.",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "keystone",
			Subsystem: "rooms",
			Name:      "evictions_total",
			Help:      "Rooms evicted from the cache after being idle.",
		}),
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "keystone",
			Subsystem: "rooms",
			Name:      "created_total",
			Help:      "Rooms created locally.",
		}),
		joins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "keystone",
			Subsystem: "rooms",
			Name:      "federated_joins_total",
			Help:      "Federated join attempts per candidate server, by outcome.",
		}, []string{"outcome"}),
		listenerFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "keystone",
			Subsystem: "rooms",
			Name:      "listener_failures_total",
			Help:      "Room listener calls that returned an error or panicked.",
		}),
	}
	if registerer == nil {
		return m, nil
	}
	for _, collector := range []prometheus.Collector{m.cached, m.loads, m.evictions, m.created, m.joins, m.listenerFailures} {
		if err := registerer.Register(collector); err != nil {
			return nil, err
		}
	}
	return m, nil
}
