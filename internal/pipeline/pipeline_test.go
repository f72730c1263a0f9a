package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"netgraph-guard/internal/alert"
	"netgraph-guard/internal/analyzer"
	"netgraph-guard/internal/graph"
	"netgraph-guard/internal/ingest"
	"netgraph-guard/internal/metrics"
	"netgraph-guard/internal/model"
	"netgraph-guard/internal/scoring"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

type testRig struct {
	pipeline *Pipeline
	ingestor *ingest.Ingestor
	store    *graph.Store
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()

	m := metrics.New()
	logger := testLogger()

	store := graph.NewStore(5*time.Minute, 32, logger)
	ingestor := ingest.New(store, 4096, 0, m, logger)
	centrality := analyzer.NewCentralityAnalyzer(3.0, 8, 3, logger)
	cluster := analyzer.NewClusterAnalyzer(0.3, 3, logger)
	ensemble := scoring.NewEnsemble(nil, m, logger)
	broadcaster := alert.NewBroadcaster(64, m, logger)
	emitter := alert.NewEmitter(15*time.Second, 1000, broadcaster, m, logger)

	p := New(store, ingestor, centrality, cluster, ensemble, emitter,
		15*time.Second, time.Minute, 5, m, logger)

	return &testRig{pipeline: p, ingestor: ingestor, store: store}
}

func flowAt(src, dst string, at time.Time) model.FlowRecord {
	return model.FlowRecord{
		SrcIP:     src,
		DstIP:     dst,
		SrcPort:   51234,
		DstPort:   443,
		Protocol:  "TCP",
		StartTime: at,
		EndTime:   at.Add(time.Second),
		Bytes:     1000,
		Packets:   10,
	}
}

// submitAndDrain pushes flows through the ingest queue and waits for the
// drain loop to apply them all.
func (r *testRig) submitAndDrain(t *testing.T, flows []model.FlowRecord) {
	t.Helper()

	before, _, _ := r.ingestor.Counters()
	for _, f := range flows {
		require.NoError(t, r.ingestor.Submit(f))
	}
	require.Eventually(t, func() bool {
		ingested, _, _ := r.ingestor.Counters()
		return ingested == before+int64(len(flows))
	}, 2*time.Second, time.Millisecond)
}

// A quiet host that suddenly fans out to dozens of fresh destinations is the
// canonical lateral-movement shape: the hub alerts once, the brand-new peers
// stay silent because they have no centrality history yet.
func TestEmergingHubAlertsOnceAndNewPeersStaySilent(t *testing.T) {
	rig := newTestRig(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rig.ingestor.Run(ctx)

	base := time.Now()
	tickAt := func(i int) time.Time { return base.Add(time.Duration(i) * 15 * time.Second) }

	baseline := func(at time.Time) []model.FlowRecord {
		return []model.FlowRecord{
			flowAt("10.0.0.1", "10.0.0.254", at),
			flowAt("10.0.1.1", "10.0.1.2", at),
			flowAt("10.0.2.1", "10.0.2.2", at),
			flowAt("10.0.3.1", "10.0.3.2", at),
		}
	}

	// Four steady ticks establish a flat centrality history for every host.
	for i := 0; i < 4; i++ {
		rig.submitAndDrain(t, baseline(tickAt(i)))
		alerts := rig.pipeline.Tick(tickAt(i).Add(2 * time.Second))
		require.Empty(t, alerts, "tick %d must stay quiet", i)
	}

	// Spike: the hub reaches 50 hosts it has never spoken to.
	spikeAt := tickAt(4)
	var spike []model.FlowRecord
	for i := 1; i <= 50; i++ {
		spike = append(spike, flowAt("10.0.0.1", fmt.Sprintf("10.1.0.%d", i), spikeAt))
	}
	rig.submitAndDrain(t, spike)

	alerts := rig.pipeline.Tick(spikeAt.Add(2 * time.Second))
	require.Len(t, alerts, 1)
	require.Equal(t, model.AlertCentralityShift, alerts[0].Type)
	require.Equal(t, "10.0.0.1", alerts[0].TargetID)
	require.Equal(t, model.SeverityHigh, alerts[0].Severity)
}

func TestTickWritesCentralityBackToNodes(t *testing.T) {
	rig := newTestRig(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rig.ingestor.Run(ctx)

	// Star of one hub and ten peers: hub degree 10 of n-1=10, peers 1 of 10.
	now := time.Now()
	var flows []model.FlowRecord
	for i := 1; i <= 10; i++ {
		flows = append(flows, flowAt("10.0.0.1", fmt.Sprintf("10.0.1.%d", i), now))
	}
	rig.submitAndDrain(t, flows)

	rig.pipeline.Tick(now.Add(time.Second))

	snap, err := rig.store.Snapshot()
	require.NoError(t, err)
	require.Len(t, snap.Nodes, 11)
	require.Equal(t, 1.0, snap.Nodes["10.0.0.1"].CentralityScore)
	for i := 1; i <= 10; i++ {
		peer := snap.Nodes[fmt.Sprintf("10.0.1.%d", i)]
		require.InDelta(t, 0.1, peer.CentralityScore, 1e-9)
	}
}

func TestTickSkipsBelowMinimumGraphSize(t *testing.T) {
	rig := newTestRig(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rig.ingestor.Run(ctx)

	now := time.Now()
	rig.submitAndDrain(t, []model.FlowRecord{flowAt("10.0.0.1", "10.0.0.2", now)})

	alerts := rig.pipeline.Tick(now.Add(time.Second))
	require.Empty(t, alerts)

	status := rig.pipeline.Status()
	require.Equal(t, 2, status.Nodes)
	require.Equal(t, int64(1), status.AnalysisTicks)
	require.True(t, status.LastAnalysis.IsZero(), "a skipped tick is not a completed analysis")
}

func TestStatusReportsCountersAndDegradation(t *testing.T) {
	rig := newTestRig(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rig.ingestor.Run(ctx)

	now := time.Now()
	rig.submitAndDrain(t, []model.FlowRecord{flowAt("10.0.0.1", "10.0.0.2", now)})

	bad := model.FlowRecord{SrcIP: "", DstIP: "10.0.0.2", Bytes: 1, Packets: 1, StartTime: now, EndTime: now}
	require.Error(t, rig.ingestor.Submit(bad))

	status := rig.pipeline.Status()
	require.False(t, status.Running)
	require.False(t, status.Degraded)
	require.Empty(t, status.DegradedReasons)
	require.Equal(t, int64(1), status.FlowsIngested)
	require.Equal(t, int64(1), status.FlowsDropped)
	require.Equal(t, 2, status.Nodes)
	require.Equal(t, 1, status.Edges)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	rig := newTestRig(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rig.pipeline.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return rig.pipeline.Status().Running
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not stop on cancel")
	}
	require.False(t, rig.pipeline.Status().Running)
}
