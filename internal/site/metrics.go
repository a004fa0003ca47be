package site

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/theroutercompany/devdirect_website/pkg/metrics"
)

type siteMetrics struct {
	requests          *prometheus.CounterVec
	duration          *prometheus.HistogramVec
	selectionChanges  *prometheus.CounterVec
	settingsFallbacks *prometheus.CounterVec
}

func newSiteMetrics(reg *metrics.Registry) *siteMetrics {
	if reg == nil {
		return nil
	}

	m := &siteMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "site_http_requests_total",
			Help: "Count of handled requests labelled by route and outcome.",
		}, []string{"route", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "site_http_request_duration_seconds",
			Help:    "Handler latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		selectionChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "site_selection_changes_total",
			Help: "Selection operations by action (select, miss, reset).",
		}, []string{"action"}),
		settingsFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "site_settings_fallbacks_total",
			Help: "Company settings loads that returned defaults, by reason.",
		}, []string{"reason"}),
	}

	reg.Register(m.requests)
	reg.Register(m.duration)
	reg.Register(m.selectionChanges)
	reg.Register(m.settingsFallbacks)
	return m
}

func (m *siteMetrics) observe(route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	switch {
	case status >= 500:
		outcome = "error"
	case status >= 400:
		outcome = "client_error"
	}
	m.requests.WithLabelValues(route, outcome).Inc()
	m.duration.WithLabelValues(route).Observe(elapsed.Seconds())
}

func (m *siteMetrics) selection(action string) {
	if m == nil {
		return
	}
	m.selectionChanges.WithLabelValues(action).Inc()
}

func (m *siteMetrics) settingsFallback(reason string) {
	if m == nil {
		return
	}
	m.settingsFallbacks.WithLabelValues(reason).Inc()
}
