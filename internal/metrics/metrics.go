// Package metrics holds the Prometheus collectors of the service. Each
// Collector owns a private registry so tests can create as many as they like.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type Collector struct {
	registry *prometheus.Registry

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	NotesCreated          prometheus.Counter
	NotesDeleted          prometheus.Counter
	VersionsAppended      prometheus.Counter
	VersionConflicts      prometheus.Counter
	EdgesCreated          *prometheus.CounterVec
	ContradictionsFlagged *prometheus.CounterVec
	Transitions           *prometheus.CounterVec
	DetectionJobs         *prometheus.CounterVec
	DetectionQueueDepth   prometheus.Gauge
	ScorerDuration        prometheus.Histogram
}

func New(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		NotesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notes_created_total",
			Help:      "Total number of notes created",
		}),
		NotesDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notes_deleted_total",
			Help:      "Total number of notes deleted",
		}),
		VersionsAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "note_versions_appended_total",
			Help:      "Total number of note versions appended by updates",
		}),
		VersionConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "note_version_conflicts_total",
			Help:      "Total number of lost version compare-and-set attempts",
		}),
		EdgesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "edges_created_total",
			Help:      "Total number of edges created",
		}, []string{"type"}),
		ContradictionsFlagged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contradictions_flagged_total",
			Help:      "Contradictions written by the detector",
		}, []string{"action"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contradiction_transitions_total",
			Help:      "Lifecycle transitions by target state",
		}, []string{"to"}),
		DetectionJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detection_jobs_total",
			Help:      "Detection jobs by outcome",
		}, []string{"outcome"}),
		DetectionQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "detection_queue_depth",
			Help:      "Notes waiting for contradiction detection",
		}),
		ScorerDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scorer_call_duration_seconds",
			Help:      "Duration of a single claim pair scoring call",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	registry.MustRegister(
		c.HTTPRequests,
		c.HTTPDuration,
		c.NotesCreated,
		c.NotesDeleted,
		c.VersionsAppended,
		c.VersionConflicts,
		c.EdgesCreated,
		c.ContradictionsFlagged,
		c.Transitions,
		c.DetectionJobs,
		c.DetectionQueueDepth,
		c.ScorerDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry is served on /metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// The helpers below are nil-safe so components can run without metrics.

func (c *Collector) NoteCreated() {
	if c != nil {
		c.NotesCreated.Inc()
	}
}

func (c *Collector) NoteDeleted() {
	if c != nil {
		c.NotesDeleted.Inc()
	}
}

func (c *Collector) VersionAppended() {
	if c != nil {
		c.VersionsAppended.Inc()
	}
}

func (c *Collector) VersionConflict() {
	if c != nil {
		c.VersionConflicts.Inc()
	}
}

func (c *Collector) EdgeCreated(edgeType string) {
	if c != nil {
		c.EdgesCreated.WithLabelValues(edgeType).Inc()
	}
}

// ContradictionFlagged counts detector writes; action is "created" or "updated".
func (c *Collector) ContradictionFlagged(action string) {
	if c != nil {
		c.ContradictionsFlagged.WithLabelValues(action).Inc()
	}
}

func (c *Collector) Transition(to string) {
	if c != nil {
		c.Transitions.WithLabelValues(to).Inc()
	}
}

func (c *Collector) DetectionJob(outcome string) {
	if c != nil {
		c.DetectionJobs.WithLabelValues(outcome).Inc()
	}
}

func (c *Collector) QueueDepth(n int) {
	if c != nil {
		c.DetectionQueueDepth.Set(float64(n))
	}
}

func (c *Collector) ObserveScorer(d time.Duration) {
	if c != nil {
		c.ScorerDuration.Observe(d.Seconds())
	}
}

func (c *Collector) ObserveHTTP(method, route, status string, d time.Duration) {
	if c != nil {
		c.HTTPRequests.WithLabelValues(method, route, status).Inc()
		c.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
	}
}
