package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Option configures behaviour of a Registry.
type Option func(*options)

type options struct {
	registerDefaultCollectors bool
}

// WithoutDefaultCollectors disables automatic registration of Go and process
// collectors.
func WithoutDefaultCollectors() Option {
	return func(o *options) {
		o.registerDefaultCollectors = false
	}
}

// Registry wraps a Prometheus registry and exposes helpers for HTTP handlers.
type Registry struct {
	registry *prometheus.Registry
}

// NewRegistry creates a registry preloaded with default collectors unless disabled.
func NewRegistry(opts ...Option) *Registry {
	settings := options{registerDefaultCollectors: true}
	for _, opt := range opts {
		if opt != nil {
			opt(&settings)
		}
	}

	reg := prometheus.NewRegistry()
	if settings.registerDefaultCollectors {
		reg.MustRegister(collectors.NewGoCollector())
		reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	return &Registry{registry: reg}
}

// Handler returns an HTTP handler that exposes Prometheus metrics.
func (r *Registry) Handler() http.Handler {
	if r == nil || r.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Register allows callers to register custom collectors.
func (r *Registry) Register(c prometheus.Collector) {
	if r == nil || r.registry == nil || c == nil {
		return
	}
	r.registry.MustRegister(c)
}

// Gatherer exposes the underlying registry for tests and exporters.
func (r *Registry) Gatherer() prometheus.Gatherer {
	if r == nil {
		return nil
	}
	return r.registry
}
