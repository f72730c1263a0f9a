package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"netgraph-guard/internal/alert"
	"netgraph-guard/internal/analyzer"
	"netgraph-guard/internal/graph"
	"netgraph-guard/internal/ingest"
	"netgraph-guard/internal/metrics"
	"netgraph-guard/internal/model"
	"netgraph-guard/internal/scoring"

	"github.com/sirupsen/logrus"
)

// Pipeline drives the detection loop: the ingestor drains flow records into
// the graph store, a periodic analysis tick snapshots the graph and runs the
// analyzers through the ensemble into the emitter, and a prune tick evicts
// expired state. All components are injected; the pipeline owns only the
// scheduling.
type Pipeline struct {
	store      *graph.Store
	ingestor   *ingest.Ingestor
	centrality *analyzer.CentralityAnalyzer
	cluster    *analyzer.ClusterAnalyzer
	ensemble   *scoring.Ensemble
	emitter    *alert.Emitter

	analysisInterval time.Duration
	pruneInterval    time.Duration
	minGraphSize     int

	running  atomic.Bool
	lastTick atomic.Int64
	ticks    atomic.Int64

	metrics *metrics.Metrics
	logger  *logrus.Logger
}

// Status is the engine health summary served by the status endpoint.
type Status struct {
	Running         bool      `json:"running"`
	Degraded        bool      `json:"degraded"`
	DegradedReasons []string  `json:"degradedReasons,omitempty"`
	Nodes           int       `json:"nodes"`
	Edges           int       `json:"edges"`
	FlowsIngested   int64     `json:"flowsIngested"`
	FlowsDropped    int64     `json:"flowsDropped"`
	QueueOverflows  int64     `json:"queueOverflows"`
	QueueDepth      int       `json:"queueDepth"`
	AnalysisTicks   int64     `json:"analysisTicks"`
	LastAnalysis    time.Time `json:"lastAnalysis"`
}

// New wires the pipeline together.
func New(store *graph.Store, ingestor *ingest.Ingestor, centrality *analyzer.CentralityAnalyzer,
	cluster *analyzer.ClusterAnalyzer, ensemble *scoring.Ensemble, emitter *alert.Emitter,
	analysisInterval, pruneInterval time.Duration, minGraphSize int,
	m *metrics.Metrics, logger *logrus.Logger) *Pipeline {
	return &Pipeline{
		store:            store,
		ingestor:         ingestor,
		centrality:       centrality,
		cluster:          cluster,
		ensemble:         ensemble,
		emitter:          emitter,
		analysisInterval: analysisInterval,
		pruneInterval:    pruneInterval,
		minGraphSize:     minGraphSize,
		metrics:          m,
		logger:           logger,
	}
}

// Run starts the ingest drain loop and the analysis and prune tickers, and
// blocks until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) {
	p.running.Store(true)
	defer p.running.Store(false)

	go p.ingestor.Run(ctx)

	analysisTicker := time.NewTicker(p.analysisInterval)
	defer analysisTicker.Stop()
	pruneTicker := time.NewTicker(p.pruneInterval)
	defer pruneTicker.Stop()

	p.logger.Infof("Pipeline started: analysis every %s, prune every %s", p.analysisInterval, p.pruneInterval)

	for {
		select {
		case now := <-analysisTicker.C:
			p.Tick(now)
		case now := <-pruneTicker.C:
			p.prune(now)
		case <-ctx.Done():
			p.logger.Info("Pipeline stopped")
			return
		}
	}
}

// Tick runs one analysis pass against the current graph. It is safe to call
// concurrently with ingestion: all analysis reads go through a snapshot.
func (p *Pipeline) Tick(now time.Time) []model.Alert {
	start := time.Now()
	p.metrics.AnalysisTicks.Inc()
	p.ticks.Add(1)

	nodes, edges := p.store.Stats()
	p.metrics.GraphNodes.Set(float64(nodes))
	p.metrics.GraphEdges.Set(float64(edges))

	if nodes < p.minGraphSize {
		p.metrics.AnalysisSkipped.WithLabelValues("min_graph_size").Inc()
		p.logger.Debugf("Skipping analysis: %d nodes below minimum %d", nodes, p.minGraphSize)
		return nil
	}

	snap, err := p.store.Snapshot()
	if err != nil {
		p.metrics.AnalysisSkipped.WithLabelValues("snapshot_inconsistent").Inc()
		p.logger.Errorf("Skipping analysis tick: %v", err)
		return nil
	}

	scores := p.centrality.Analyze(snap, now)
	p.store.UpdateCentrality(p.centrality.LatestScores())
	scores = append(scores, p.cluster.Analyze(snap, now)...)

	fused := p.ensemble.Fuse(scores, p.cluster.Features(), now)
	alerts := p.emitter.Emit(fused, now)

	p.lastTick.Store(now.UnixNano())
	p.metrics.AnalysisDuration.Observe(time.Since(start).Seconds())

	if len(alerts) > 0 {
		p.logger.Infof("Analysis tick: %d nodes, %d edges, %d alerts", nodes, edges, len(alerts))
	}
	return alerts
}

func (p *Pipeline) prune(now time.Time) {
	prunedNodes, prunedEdges := p.store.Prune(now)
	p.metrics.PrunedNodes.Add(float64(prunedNodes))
	p.metrics.PrunedEdges.Add(float64(prunedEdges))
	if prunedNodes > 0 || prunedEdges > 0 {
		p.logger.Debugf("Pruned %d nodes, %d edges", prunedNodes, prunedEdges)
	}
}

// Status reports engine health. Degradation is advisory: the pipeline keeps
// running on the surviving signals.
func (p *Pipeline) Status() Status {
	nodes, edges := p.store.Stats()
	ingested, dropped, overflows := p.ingestor.Counters()

	var reasons []string
	if p.ingestor.Degraded() {
		reasons = append(reasons, "ingest_lag")
	}
	for _, name := range p.ensemble.FailedScorers() {
		reasons = append(reasons, "scorer:"+name)
	}

	var last time.Time
	if ns := p.lastTick.Load(); ns > 0 {
		last = time.Unix(0, ns)
	}

	return Status{
		Running:         p.running.Load(),
		Degraded:        len(reasons) > 0,
		DegradedReasons: reasons,
		Nodes:           nodes,
		Edges:           edges,
		FlowsIngested:   ingested,
		FlowsDropped:    dropped,
		QueueOverflows:  overflows,
		QueueDepth:      p.ingestor.Depth(),
		AnalysisTicks:   p.ticks.Load(),
		LastAnalysis:    last,
	}
}
