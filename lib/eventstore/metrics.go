// Copyright 2026 The Keystone Authors
// SPDX-License-Identifier: Apache-2.0

package eventstore

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	appends          prometheus.Counter
	streamLength     prometheus.Gauge
	observerFailures *prometheus.CounterVec
	signSeconds      prometheus.Histogram
}

func newMetrics(registerer prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		appends: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "keystone",
			Subsystem: "eventstore",
			Name:      "appends_total",
			Help:      "Events appended to the stream.",
		}),
		streamLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "keystone",
			Subsystem: "eventstore",
			Name:      "stream_length",
			Help:      "Number of events in the stream.",
		}),
		observerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "keystone",
			Subsystem: "eventstore",
			Name:      "observer_failures_total",
			Help:      "Filter and listener calls that returned an error or panicked.",
		}, []string{"channel"}),
		signSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "keystone",
			Subsystem: "eventstore",
			Name:      "hash_and_sign_seconds",
			Help:      "Time spent hashing and signing one event.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 12),
		}),
	}
	if registerer == nil {
		return m, nil
	}
	for _, collector := range []prometheus.Collector{m.appends, m.streamLength, m.observerFailures, m.signSeconds} {
		if err := registerer.Register(collector); err != nil {
			return nil, err
		}
	}
	return m, nil
}
