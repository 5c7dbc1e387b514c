// Package metrics holds the prometheus collectors for refresh cycles, the
// search index and query traffic. A nil *Metrics records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "nubfinder"

// Result labels.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

type Metrics struct {
	registry *prometheus.Registry

	refreshCycles   *prometheus.CounterVec
	refreshDuration prometheus.Histogram
	rebuilds        *prometheus.CounterVec
	documents       prometheus.Gauge
	searches        *prometheus.CounterVec
	searchDuration  prometheus.Histogram
}

// New registers all collectors, plus the Go and process collectors, on a
// fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		refreshCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_cycles_total",
			Help:      "Refresh cycles by outcome.",
		}, []string{"result"}),
		refreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Wall time of one fetch, persist and rebuild cycle.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		rebuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_rebuilds_total",
			Help:      "Index rebuilds by outcome.",
		}, []string{"result"}),
		documents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_documents",
			Help:      "Documents in the live corpus.",
		}),
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Search calls by outcome.",
		}, []string{"result"}),
		searchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Latency of search calls including queueing for a worker.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
	}
	reg.MustRegister(
		m.refreshCycles,
		m.refreshDuration,
		m.rebuilds,
		m.documents,
		m.searches,
		m.searchDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveRefresh(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.refreshCycles.WithLabelValues(result(err)).Inc()
	m.refreshDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveRebuild(docs int, err error) {
	if m == nil {
		return
	}
	m.rebuilds.WithLabelValues(result(err)).Inc()
	if err == nil {
		m.documents.Set(float64(docs))
	}
}

func (m *Metrics) ObserveSearch(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.searches.WithLabelValues(result(err)).Inc()
	m.searchDuration.Observe(d.Seconds())
}

func result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}
