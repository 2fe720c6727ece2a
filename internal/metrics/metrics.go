// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metrics exposes workflow counters to Prometheus. A nil *Recorder
// is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pdiddy/litflow/internal/httputil"
)

const namespace = "litflow"

// Recorder implements the retrieval, summarize and workflow observers.
type Recorder struct {
	registry       *prometheus.Registry
	attempts       *prometheus.CounterVec
	summarizations *prometheus.CounterVec
	directions     *prometheus.CounterVec
	runs           *prometheus.CounterVec
}

// New returns a recorder with its own registry, including Go runtime and
// process collectors.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrieval_attempts_total",
			Help:      "Retrieval searches and retried attempts by source and outcome.",
		}, []string{"source", "outcome"}),
		summarizations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summarizations_total",
			Help:      "Per-record summarization calls by outcome.",
		}, []string{"outcome"}),
		directions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "directions_total",
			Help:      "Finished directions by status.",
		}, []string{"status"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished workflow runs by mode and status.",
		}, []string{"mode", "status"}),
	}
	r.registry.MustRegister(
		r.attempts, r.summarizations, r.directions, r.runs,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// TrackPool exports the number of permits currently held in p.
func (r *Recorder) TrackPool(p *httputil.Pool) {
	if r == nil || p == nil {
		return
	}
	r.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "retrieval_permits_in_use",
		Help:      "Outbound retrieval permits currently held.",
	}, func() float64 { return float64(p.InUse()) }))
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) RetrievalAttempt(source, outcome string) {
	if r == nil {
		return
	}
	r.attempts.WithLabelValues(source, outcome).Inc()
}

func (r *Recorder) Summarization(outcome string) {
	if r == nil {
		return
	}
	r.summarizations.WithLabelValues(outcome).Inc()
}

func (r *Recorder) Direction(status string) {
	if r == nil {
		return
	}
	r.directions.WithLabelValues(status).Inc()
}

func (r *Recorder) Run(mode, status string) {
	if r == nil {
		return
	}
	r.runs.WithLabelValues(mode, status).Inc()
}
