// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics of the requests made through the gateway.
type Monitor struct {
	// Duration of the requests per service, method and status code.
	RequestTimer *prometheus.HistogramVec
	// Number of failed requests per service and status code.
	// Transport failures are counted with the status code "0".
	FailureCounter *prometheus.CounterVec
}

// Create a new monitor and register its metrics.
func NewMonitor(registry prometheus.Registerer) Monitor {
	requestTimer := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "consolegw_gateway_request_duration_seconds",
		Help:    "Duration of requests to openstack services",
		Buckets: prometheus.DefBuckets,
	}, []string{"service", "method", "status"})
	failureCounter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "consolegw_gateway_request_failures_total",
		Help: "Number of failed requests to openstack services",
	}, []string{"service", "status"})
	if registry != nil {
		registry.MustRegister(requestTimer, failureCounter)
	}
	return Monitor{
		RequestTimer:   requestTimer,
		FailureCounter: failureCounter,
	}
}

func (m Monitor) observe(service, method string, statusCode int, start time.Time) {
	if m.RequestTimer == nil {
		return
	}
	m.RequestTimer.
		WithLabelValues(service, method, strconv.Itoa(statusCode)).
		Observe(time.Since(start).Seconds())
}

func (m Monitor) countFailure(service string, statusCode int) {
	if m.FailureCounter == nil {
		return
	}
	m.FailureCounter.WithLabelValues(service, strconv.Itoa(statusCode)).Inc()
}
