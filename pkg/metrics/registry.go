// Package metrics defines the observability interfaces used across the
// daemon. Every interface is optional: pass nil to disable collection with
// zero overhead. Prometheus-backed implementations live in the prometheus
// subpackage and are only constructed when the registry is initialized.
package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var registry atomic.Pointer[prometheus.Registry]

// InitRegistry creates the process-wide metrics registry with the standard
// Go and process collectors. Call once at startup before constructing any
// metrics instances; constructors return nil until this has run.
func InitRegistry() {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	registry.Store(reg)
}

// IsEnabled reports whether the registry has been initialized.
func IsEnabled() bool {
	return registry.Load() != nil
}

// GetRegistry returns the process-wide registry, or nil when metrics are
// disabled.
func GetRegistry() *prometheus.Registry {
	return registry.Load()
}

// Handler returns the HTTP handler serving the /metrics endpoint.
// Returns a 404 handler when metrics are disabled.
func Handler() http.Handler {
	reg := registry.Load()
	if reg == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
