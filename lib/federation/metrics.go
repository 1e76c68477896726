// Copyright 2026 The Keystone Authors
// SPDX-License-Identifier: Apache-2.0

package federation

import "github.com/prometheus/client_golang/prometheus"

// Request outcomes recorded in metrics.
const (
	outcomeOK        = "ok"
	outcomeRemote    = "remote_error"
	outcomeTransport = "transport_error"
)

type metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newMetrics(registerer prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "keystone",
			Subsystem: "federation",
			Name:      "requests_total",
			Help:      "Outbound federation requests by verb and outcome.",
		}, []string{"verb", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "keystone",
			Subsystem: "federation",
			Name:      "request_seconds",
			Help:      "Outbound federation request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"verb"}),
	}
	if registerer != nil {
		for _, collector := range []prometheus.Collector{m.requests, m.duration} {
			if err := registerer.Register(collector); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}
