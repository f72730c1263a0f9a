package graph

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"netgraph-guard/internal/model"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func flowAt(src, dst string, bytes int64, at time.Time) model.FlowRecord {
	return model.FlowRecord{
		SrcIP:     src,
		DstIP:     dst,
		SrcPort:   40000,
		DstPort:   443,
		Protocol:  "TCP",
		StartTime: at.Add(-time.Second),
		EndTime:   at,
		Bytes:     bytes,
		Packets:   4,
	}
}

func TestUpsertEdgeCoalescesDuplicateFlows(t *testing.T) {
	s := NewStore(5*time.Minute, 32, testLogger())
	now := time.Now()

	flow := flowAt("10.0.0.1", "10.0.0.2", 1500, now)
	s.UpsertEdge(flow)
	_, _, edge := s.UpsertEdge(flow)

	nodes, edges := s.Stats()
	require.Equal(t, 2, nodes)
	require.Equal(t, 1, edges)
	require.Equal(t, int64(3000), edge.Weight)
	require.Equal(t, int64(2), edge.FlowCount)
}

func TestUpsertEdgeIgnoresDirection(t *testing.T) {
	s := NewStore(5*time.Minute, 32, testLogger())
	now := time.Now()

	s.UpsertEdge(flowAt("10.0.0.1", "10.0.0.2", 100, now))
	s.UpsertEdge(flowAt("10.0.0.2", "10.0.0.1", 200, now))

	_, edges := s.Stats()
	require.Equal(t, 1, edges)

	snap, err := s.Snapshot()
	require.NoError(t, err)
	for _, edge := range snap.Edges {
		require.Equal(t, int64(300), edge.Weight)
	}
}

func TestNodeTimestampsMonotonic(t *testing.T) {
	s := NewStore(5*time.Minute, 32, testLogger())
	now := time.Now()

	src, _, _ := s.UpsertEdge(flowAt("10.0.0.1", "10.0.0.2", 100, now))
	require.False(t, src.LastSeen.Before(src.FirstSeen))

	// An out-of-order older record must not move lastSeen backwards.
	src, _, _ = s.UpsertEdge(flowAt("10.0.0.1", "10.0.0.2", 100, now.Add(-time.Minute)))
	require.Equal(t, now.UTC(), src.LastSeen.UTC())
}

func TestPruneEvictsStaleElements(t *testing.T) {
	s := NewStore(5*time.Minute, 32, testLogger())
	now := time.Now()

	s.UpsertEdge(flowAt("10.0.0.1", "10.0.0.2", 100, now.Add(-10*time.Minute)))
	s.UpsertEdge(flowAt("10.0.0.3", "10.0.0.4", 100, now))

	prunedNodes, prunedEdges := s.Prune(now)
	require.Equal(t, 2, prunedNodes)
	require.Equal(t, 1, prunedEdges)

	snap, err := s.Snapshot()
	require.NoError(t, err)
	require.Len(t, snap.Nodes, 2)
	require.Len(t, snap.Edges, 1)
	require.NotContains(t, snap.Nodes, "10.0.0.1")
	require.NotContains(t, snap.Nodes, "10.0.0.2")
}

func TestPruneKeepsFreshNodeOnStaleEdge(t *testing.T) {
	s := NewStore(5*time.Minute, 32, testLogger())
	now := time.Now()

	// Old conversation with 10.0.0.2, fresh conversation with 10.0.0.3.
	s.UpsertEdge(flowAt("10.0.0.1", "10.0.0.2", 100, now.Add(-10*time.Minute)))
	s.UpsertEdge(flowAt("10.0.0.1", "10.0.0.3", 100, now))

	s.Prune(now)

	snap, err := s.Snapshot()
	require.NoError(t, err)
	require.Contains(t, snap.Nodes, "10.0.0.1")
	require.Contains(t, snap.Nodes, "10.0.0.3")
	require.NotContains(t, snap.Nodes, "10.0.0.2")
	require.Equal(t, 1, snap.Nodes["10.0.0.1"].Degree)
}

func TestSnapshotHasNoDanglingEdges(t *testing.T) {
	s := NewStore(5*time.Minute, 8, testLogger())
	now := time.Now()

	for i := 0; i < 50; i++ {
		s.UpsertEdge(flowAt(fmt.Sprintf("10.0.%d.1", i), fmt.Sprintf("10.0.%d.2", i), 100, now))
	}

	snap, err := s.Snapshot()
	require.NoError(t, err)
	for _, edge := range snap.Edges {
		require.Contains(t, snap.Nodes, edge.Source)
		require.Contains(t, snap.Nodes, edge.Destination)
	}
}

func TestUpdateCentralityShowsUpInSnapshots(t *testing.T) {
	s := NewStore(5*time.Minute, 32, testLogger())
	now := time.Now()

	s.UpsertEdge(flowAt("10.0.0.1", "10.0.0.2", 100, now))

	// Scores for evicted nodes are dropped silently.
	s.UpdateCentrality(map[string]float64{
		"10.0.0.1": 0.75,
		"10.0.9.9": 1.0,
	})

	snap, err := s.Snapshot()
	require.NoError(t, err)
	require.Equal(t, 0.75, snap.Nodes["10.0.0.1"].CentralityScore)
	require.Zero(t, snap.Nodes["10.0.0.2"].CentralityScore)
	require.NotContains(t, snap.Nodes, "10.0.9.9")
}

func TestConcurrentIngestSnapshotPrune(t *testing.T) {
	s := NewStore(time.Minute, 16, testLogger())
	start := time.Now()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				src := fmt.Sprintf("10.%d.0.%d", w, i%20)
				dst := fmt.Sprintf("10.%d.1.%d", w, i%10)
				s.UpsertEdge(flowAt(src, dst, 100, start.Add(time.Duration(i)*time.Millisecond)))
			}
		}(w)
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			snap, err := s.Snapshot()
			assert.NoError(t, err)
			for _, edge := range snap.Edges {
				assert.Contains(t, snap.Nodes, edge.Source)
				assert.Contains(t, snap.Nodes, edge.Destination)
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			s.Prune(start)
		}
	}()

	wg.Wait()

	nodes, edges := s.Stats()
	require.Positive(t, nodes)
	require.Positive(t, edges)
}
