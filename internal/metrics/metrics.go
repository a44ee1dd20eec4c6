// Package metrics publishes reload and request metrics through a private
// Prometheus registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "catalog"

// Recorder aggregates catalog reload outcomes and HTTP request timings. It
// satisfies catalog.ReloadObserver.
type Recorder struct {
	registry *prometheus.Registry

	reloads        *prometheus.CounterVec
	records        *prometheus.GaugeVec
	reloadDuration *prometheus.HistogramVec
	requests       *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
}

// Option configures a Recorder.
type Option func(*options)

type options struct {
	runtime bool
}

// WithRuntimeCollectors adds the Go runtime and process collectors.
func WithRuntimeCollectors() Option {
	return func(o *options) { o.runtime = true }
}

// New builds a recorder on a fresh registry.
func New(opts ...Option) *Recorder {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reloads_total",
			Help:      "Catalog reloads by collection and result.",
		}, []string{"kind", "result"}),
		records: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "records",
			Help:      "Records in the current snapshot of each collection.",
		}, []string{"kind"}),
		reloadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reload_duration_seconds",
			Help:      "Time spent reading and parsing a catalog file.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"kind"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
	r.registry.MustRegister(r.reloads, r.records, r.reloadDuration, r.requests, r.requestLatency)
	if o.runtime {
		r.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return r
}

// Registry exposes the underlying registry, mostly for tests.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// ObserveReload records one reload. The record gauge only moves on success
// since a failed reload keeps the previous snapshot.
func (r *Recorder) ObserveReload(kind string, ok bool, records int, elapsed time.Duration) {
	result := "error"
	if ok {
		result = "success"
		r.records.WithLabelValues(kind).Set(float64(records))
	}
	r.reloads.WithLabelValues(kind, result).Inc()
	r.reloadDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// ObserveRequest records one served HTTP request.
func (r *Recorder) ObserveRequest(route, method string, code int, elapsed time.Duration) {
	r.requests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	r.requestLatency.WithLabelValues(route).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
