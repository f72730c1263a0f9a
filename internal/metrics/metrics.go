package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every Prometheus series the engine exports. A Metrics
// value is built against an explicit registry so tests can register their
// own without colliding with the default one.
type Metrics struct {
	registry *prometheus.Registry

	// Ingestion
	FlowsIngested    prometheus.Counter
	FlowsInvalid     prometheus.Counter
	IngestQueueDepth prometheus.Gauge

	// Graph
	GraphNodes  prometheus.Gauge
	GraphEdges  prometheus.Gauge
	PrunedNodes prometheus.Counter
	PrunedEdges prometheus.Counter

	// Analysis
	AnalysisTicks    prometheus.Counter
	AnalysisSkipped  *prometheus.CounterVec
	AnalysisDuration prometheus.Histogram
	SignalsEmitted   *prometheus.CounterVec
	ScorerErrors     *prometheus.CounterVec

	// Alerting
	AlertsEmitted    *prometheus.CounterVec
	AlertsSuppressed prometheus.Counter
	SubscriberDrops  prometheus.Counter
}

// New creates the metric bundle on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		FlowsIngested: factory.NewCounter(prometheus.CounterOpts{
			Name: "netgraph_flows_ingested_total",
			Help: "Flow records accepted into the graph",
		}),
		FlowsInvalid: factory.NewCounter(prometheus.CounterOpts{
			Name: "netgraph_flows_invalid_total",
			Help: "Flow records rejected by validation and dropped",
		}),
		IngestQueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "netgraph_ingest_queue_depth",
			Help: "Current depth of the ingest queue",
		}),

		GraphNodes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "netgraph_graph_nodes",
			Help: "Nodes currently in the graph",
		}),
		GraphEdges: factory.NewGauge(prometheus.GaugeOpts{
			Name: "netgraph_graph_edges",
			Help: "Edges currently in the graph",
		}),
		PrunedNodes: factory.NewCounter(prometheus.CounterOpts{
			Name: "netgraph_pruned_nodes_total",
			Help: "Nodes evicted by TTL pruning",
		}),
		PrunedEdges: factory.NewCounter(prometheus.CounterOpts{
			Name: "netgraph_pruned_edges_total",
			Help: "Edges evicted by TTL pruning",
		}),

		AnalysisTicks: factory.NewCounter(prometheus.CounterOpts{
			Name: "netgraph_analysis_ticks_total",
			Help: "Completed analysis ticks",
		}),
		AnalysisSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "netgraph_analysis_skipped_total",
			Help: "Analysis ticks skipped, by reason",
		}, []string{"reason"}),
		AnalysisDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "netgraph_analysis_duration_seconds",
			Help:    "Wall time of one analysis tick",
			Buckets: prometheus.DefBuckets,
		}),
		SignalsEmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "netgraph_signals_total",
			Help: "Anomaly signals produced, by signal name",
		}, []string{"signal"}),
		ScorerErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "netgraph_scorer_errors_total",
			Help: "External scorer failures, by scorer",
		}, []string{"scorer"}),

		AlertsEmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "netgraph_alerts_total",
			Help: "Alerts emitted, by type and severity",
		}, []string{"type", "severity"}),
		AlertsSuppressed: factory.NewCounter(prometheus.CounterOpts{
			Name: "netgraph_alerts_suppressed_total",
			Help: "Alerts suppressed by the cooldown window",
		}),
		SubscriberDrops: factory.NewCounter(prometheus.CounterOpts{
			Name: "netgraph_subscriber_drops_total",
			Help: "Broadcast messages dropped for slow subscribers",
		}),
	}
}

// Registry exposes the underlying registry for the exporter.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
