// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package keystone

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Monitor is a collection of Prometheus metrics for the identity resolver.
// The zero value is valid and records nothing.
type Monitor struct {
	// A histogram to measure how long keystone requests take.
	RequestTimer *prometheus.HistogramVec
	// A counter to observe the number of keystone requests by result.
	RequestCounter *prometheus.CounterVec
}

// Create a new identity monitor and register its metrics.
func NewMonitor(registry prometheus.Registerer) Monitor {
	requestTimer := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "consolegw_keystone_request_duration_seconds",
		Help:    "Duration of keystone requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	requestCounter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "consolegw_keystone_requests_total",
		Help: "Number of keystone requests by operation and result",
	}, []string{"operation", "result"})
	registry.MustRegister(
		requestTimer,
		requestCounter,
	)
	return Monitor{
		RequestTimer:   requestTimer,
		RequestCounter: requestCounter,
	}
}

func (m Monitor) observe(operation string, start time.Time, err error) {
	if m.RequestTimer != nil {
		m.RequestTimer.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
	if m.RequestCounter != nil {
		result := "success"
		if err != nil {
			result = "error"
		}
		m.RequestCounter.WithLabelValues(operation, result).Inc()
	}
}
