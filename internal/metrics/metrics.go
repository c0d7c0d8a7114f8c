// Package metrics exposes Prometheus counters and gauges for the
// dataflow engine: topics, agents, queues, config loads, cycle
// detection, and ingestion bridges, grounded in the teacher's
// metrics.go package-level collector set.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private Prometheus registry so multiple instances (as
// in package tests) never collide on double registration, unlike the
// teacher's process-global collector set.
type Metrics struct {
	registry *prometheus.Registry

	TopicsCreated          prometheus.Counter
	MessagesPublished      *prometheus.CounterVec
	AgentQueueDepth        *prometheus.GaugeVec
	AgentQueueCapacity     *prometheus.GaugeVec
	AgentDroppedEnqueues   *prometheus.CounterVec
	ConfigLoadsTotal       *prometheus.CounterVec
	CycleDetectionsTotal   *prometheus.CounterVec
	IngestConsumedTotal    *prometheus.CounterVec
	IngestRepublishedTotal *prometheus.CounterVec
	IngestErrorsTotal      *prometheus.CounterVec
}

// New constructs a Metrics instance with a fresh registry and registers
// every collector against it.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		TopicsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "graphserver_topics_created_total",
			Help: "Total number of topics created in the registry.",
		}),
		MessagesPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "graphserver_messages_published_total",
			Help: "Total messages published, labeled by topic role.",
		}, []string{"role"}),
		AgentQueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "graphserver_agent_queue_depth",
			Help: "Current queue depth per ParallelAgent, by agent name.",
		}, []string{"agent"}),
		AgentQueueCapacity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "graphserver_agent_queue_capacity",
			Help: "Queue capacity per ParallelAgent, by agent name.",
		}, []string{"agent"}),
		AgentDroppedEnqueues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "graphserver_agent_dropped_enqueues_total",
			Help: "Total enqueues cancelled (e.g. context deadline) while blocked on a full agent queue.",
		}, []string{"agent"}),
		ConfigLoadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "graphserver_config_loads_total",
			Help: "Total configuration loads, labeled by outcome.",
		}, []string{"outcome"}),
		CycleDetectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "graphserver_cycle_detections_total",
			Help: "Total graph_snapshot calls, labeled by whether a cycle was found.",
		}, []string{"result"}),
		IngestConsumedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "graphserver_ingest_consumed_total",
			Help: "Total records consumed from an ingestion bridge, labeled by bridge.",
		}, []string{"bridge"}),
		IngestRepublishedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "graphserver_ingest_republished_total",
			Help: "Total records republished into a graph topic, labeled by bridge.",
		}, []string{"bridge"}),
		IngestErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "graphserver_ingest_errors_total",
			Help: "Total per-record ingestion errors, labeled by bridge.",
		}, []string{"bridge"}),
	}

	reg.MustRegister(
		m.TopicsCreated,
		m.MessagesPublished,
		m.AgentQueueDepth,
		m.AgentQueueCapacity,
		m.AgentDroppedEnqueues,
		m.ConfigLoadsTotal,
		m.CycleDetectionsTotal,
		m.IngestConsumedTotal,
		m.IngestRepublishedTotal,
		m.IngestErrorsTotal,
	)
	return m
}

// Handler returns the http.Handler serving this instance's exposition
// format, meant to be mounted on the metrics listen address.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
