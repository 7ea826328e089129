package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bbiangul/kgraph"
)

// metrics holds the extraction counters exported on /metrics.
type metrics struct {
	registry *prometheus.Registry

	runs           *prometheus.CounterVec
	segments       prometheus.Counter
	failedSegments prometheus.Counter
	triples        prometheus.Counter
	diagnostics    *prometheus.CounterVec
	duration       prometheus.Histogram
}

func newMetrics() *metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &metrics{
		registry: reg,
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kgraph_runs_total",
			Help: "Extraction requests by outcome (extracted, reused, empty, error)",
		}, []string{"outcome"}),
		segments: f.NewCounter(prometheus.CounterOpts{
			Name: "kgraph_segments_total",
			Help: "Segments sent for triple extraction",
		}),
		failedSegments: f.NewCounter(prometheus.CounterOpts{
			Name: "kgraph_failed_segments_total",
			Help: "Segments whose extraction call failed",
		}),
		triples: f.NewCounter(prometheus.CounterOpts{
			Name: "kgraph_triples_total",
			Help: "Triples extracted",
		}),
		diagnostics: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kgraph_diagnostics_total",
			Help: "Pipeline diagnostics by kind",
		}, []string{"kind"}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "kgraph_run_duration_seconds",
			Help:    "Wall time of pipeline runs",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
	}
}

// observe records one extraction. Reused runs only count as a run.
func (m *metrics) observe(ex *kgraph.Extraction) {
	if ex.Reused {
		m.runs.WithLabelValues("reused").Inc()
		return
	}
	res := ex.Result
	outcome := "extracted"
	if res.Graph == nil {
		outcome = "empty"
	}
	m.runs.WithLabelValues(outcome).Inc()
	m.segments.Add(float64(res.Stats.Segments))
	m.failedSegments.Add(float64(res.Stats.FailedSegments))
	m.triples.Add(float64(res.Stats.Triples))
	for kind, n := range res.DiagnosticCounts() {
		m.diagnostics.WithLabelValues(string(kind)).Add(float64(n))
	}
	m.duration.Observe(res.Stats.Elapsed.Seconds())
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
