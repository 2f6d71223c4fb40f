// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package db

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics of the session database. The zero value records nothing.
type Monitor struct {
	// Connection attempts by result, "success" or "error".
	ConnectionAttempts *prometheus.CounterVec
}

func NewDBMonitor(registry prometheus.Registerer) Monitor {
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "consolegw_db_connection_attempts_total",
		Help: "Attempts to connect to the session database by result",
	}, []string{"result"})
	registry.MustRegister(attempts)
	return Monitor{ConnectionAttempts: attempts}
}

func (m Monitor) countConnectionAttempt(err error) {
	if m.ConnectionAttempts == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.ConnectionAttempts.WithLabelValues(result).Inc()
}
