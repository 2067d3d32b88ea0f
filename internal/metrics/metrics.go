// Package metrics defines am's own Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is registered on an explicit registry; there are no package
// level collectors.
type Metrics struct {
	ProxyRequests *prometheus.CounterVec
	ProxyDuration *prometheus.HistogramVec
	Installs      *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ProxyRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "am_proxy_requests_total",
			Help: "HTTP requests served by the am proxy, by route and status code.",
		}, []string{"route", "code"}),
		ProxyDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "am_proxy_request_duration_seconds",
			Help:    "Latency of requests served by the am proxy.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		Installs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "am_installs_total",
			Help: "Release install attempts, by repository and result.",
		}, []string{"repo", "result"}),
	}
}

// NewRegistry returns a registry with the Go runtime and process
// collectors plus am's metrics.
func NewRegistry() (*prometheus.Registry, *Metrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, New(reg)
}
