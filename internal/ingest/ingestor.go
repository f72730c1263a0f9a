package ingest

import (
	"context"
	"errors"
	"sync/atomic"

	"netgraph-guard/internal/metrics"
	"netgraph-guard/internal/model"

	"github.com/sirupsen/logrus"
)

// GraphWriter is the mutation surface the ingestor needs from the store.
type GraphWriter interface {
	UpsertEdge(flow model.FlowRecord) (model.Node, model.Node, model.Edge)
}

// Ingestor normalizes incoming flow records into graph mutations. Records
// arrive on a monitored queue; malformed records are dropped and counted,
// never fatal. Sustained queue depth beyond the lag threshold raises the
// degraded flag, cleared once the queue drains below half the threshold.
type Ingestor struct {
	store GraphWriter
	queue chan model.FlowRecord

	lagThreshold   int
	clearThreshold int

	degraded  atomic.Bool
	ingested  atomic.Int64
	dropped   atomic.Int64
	overflows atomic.Int64

	metrics *metrics.Metrics
	logger  *logrus.Logger
}

// ErrQueueFull is returned by Submit when the ingest queue cannot accept
// another record. The record is dropped; delivery here is best-effort.
var ErrQueueFull = errors.New("ingest queue full")

// New creates an ingestor in front of the given store.
func New(store GraphWriter, queueSize, lagThreshold int, m *metrics.Metrics, logger *logrus.Logger) *Ingestor {
	if lagThreshold <= 0 || lagThreshold > queueSize {
		lagThreshold = queueSize * 3 / 4
	}
	return &Ingestor{
		store:          store,
		queue:          make(chan model.FlowRecord, queueSize),
		lagThreshold:   lagThreshold,
		clearThreshold: lagThreshold / 2,
		metrics:        m,
		logger:         logger,
	}
}

// Submit validates a record and queues it for ingestion. Submit never
// blocks: a full queue drops the record and returns ErrQueueFull.
func (i *Ingestor) Submit(flow model.FlowRecord) error {
	if err := flow.Validate(); err != nil {
		i.dropped.Add(1)
		i.metrics.FlowsInvalid.Inc()
		i.logger.Debugf("Dropping flow record: %v", err)
		return err
	}

	select {
	case i.queue <- flow:
		i.observeDepth()
		return nil
	default:
		i.overflows.Add(1)
		i.logger.Warnf("Ingest queue full, dropping flow %s -> %s", flow.SrcIP, flow.DstIP)
		return ErrQueueFull
	}
}

// Run drains the queue into the graph store until the context is cancelled.
// In-flight records still queued at shutdown are abandoned (best-effort).
func (i *Ingestor) Run(ctx context.Context) {
	i.logger.Info("Flow ingestor started")
	for {
		select {
		case flow := <-i.queue:
			i.store.UpsertEdge(flow)
			i.ingested.Add(1)
			i.metrics.FlowsIngested.Inc()
			i.observeDepth()
		case <-ctx.Done():
			i.logger.Infof("Flow ingestor stopped (%d records still queued)", len(i.queue))
			return
		}
	}
}

func (i *Ingestor) observeDepth() {
	depth := len(i.queue)
	i.metrics.IngestQueueDepth.Set(float64(depth))

	if depth > i.lagThreshold {
		if i.degraded.CompareAndSwap(false, true) {
			i.logger.Warnf("Ingest lag: queue depth %d above threshold %d, entering degraded mode", depth, i.lagThreshold)
		}
	} else if depth < i.clearThreshold {
		if i.degraded.CompareAndSwap(true, false) {
			i.logger.Info("Ingest queue drained, leaving degraded mode")
		}
	}
}

// Degraded reports whether ingestion is lagging.
func (i *Ingestor) Degraded() bool {
	return i.degraded.Load()
}

// Counters returns ingested, invalid-dropped and overflow-dropped totals.
func (i *Ingestor) Counters() (ingested, dropped, overflows int64) {
	return i.ingested.Load(), i.dropped.Load(), i.overflows.Load()
}

// Depth returns the current queue depth.
func (i *Ingestor) Depth() int {
	return len(i.queue)
}
