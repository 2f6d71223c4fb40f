// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"log/slog"
)

// Diagnostic describes a failed call to a service.
type Diagnostic struct {
	Service    string
	Method     string
	URL        string
	RequestID  string
	StatusCode int
	// Response body, empty for transport failures.
	Body []byte
	// The error returned to the caller.
	Err error
}

// DiagnosticsSink receives every failed call made through the gateway.
// Sinks must not block, they are called inline.
type DiagnosticsSink interface {
	Report(ctx context.Context, d Diagnostic)
}

// SinkFunc adapts a function to a DiagnosticsSink.
type SinkFunc func(ctx context.Context, d Diagnostic)

func (f SinkFunc) Report(ctx context.Context, d Diagnostic) { f(ctx, d) }

// MultiSink forwards diagnostics to all contained sinks.
type MultiSink []DiagnosticsSink

func (m MultiSink) Report(ctx context.Context, d Diagnostic) {
	for _, sink := range m {
		if sink != nil {
			sink.Report(ctx, d)
		}
	}
}

// LogSink writes diagnostics to a structured logger.
type LogSink struct {
	// Defaults to slog.Default().
	Logger *slog.Logger
	// Include response bodies in the log, they may be large.
	LogBodies bool
}

func (s LogSink) Report(ctx context.Context, d Diagnostic) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{
		"service", d.Service,
		"method", d.Method,
		"url", d.URL,
		"requestID", d.RequestID,
		"status", d.StatusCode,
		"error", d.Err,
	}
	if s.LogBodies && len(d.Body) > 0 {
		attrs = append(attrs, "body", string(d.Body))
	}
	logger.ErrorContext(ctx, "request to service failed", attrs...)
}

// MetricsSink counts failed calls per service and status code.
type MetricsSink struct {
	Monitor Monitor
}

func (s MetricsSink) Report(_ context.Context, d Diagnostic) {
	s.Monitor.countFailure(d.Service, d.StatusCode)
}
