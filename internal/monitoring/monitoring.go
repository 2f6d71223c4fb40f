// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package monitoring

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/cobaltcore-dev/consolegw/internal/conf"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/sapcc/go-bits/httpext"
)

// Registry for the metrics of the console gateway.
type Registry struct {
	*prometheus.Registry
	config conf.MonitoringConfig
}

func NewRegistry(config conf.MonitoringConfig) *Registry {
	registry := &Registry{
		Registry: prometheus.NewRegistry(),
		config:   config,
	}
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return registry
}

// Custom gather method that adds the configured labels to all metrics.
// Labels that a metric already carries are not overwritten.
func (r *Registry) Gather() ([]*dto.MetricFamily, error) {
	families, err := r.Registry.Gather()
	if err != nil {
		return nil, err
	}
	for name, value := range r.config.Labels {
		for _, family := range families {
			for _, metric := range family.Metric {
				if hasLabel(metric, name) {
					continue
				}
				metric.Label = append(metric.Label, &dto.LabelPair{
					Name:  &name,
					Value: &value,
				})
			}
		}
	}
	return families, nil
}

func hasLabel(metric *dto.Metric, name string) bool {
	for _, label := range metric.Label {
		if label.GetName() == name {
			return true
		}
	}
	return false
}

// HTTP handler that exposes the metrics of this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r, promhttp.HandlerOpts{})
}

// Serve the metrics on the configured port until the context is done.
// Nothing is served if no port is configured.
func (r *Registry) Serve(ctx context.Context) error {
	if r.config.Port == 0 {
		slog.Debug("metrics: no port configured, not serving metrics")
		<-ctx.Done()
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	addr := fmt.Sprintf(":%d", r.config.Port)
	slog.Info("metrics: serving", "addr", addr)
	return httpext.ListenAndServeContext(ctx, addr, mux)
}
