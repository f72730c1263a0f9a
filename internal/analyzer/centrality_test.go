package analyzer

import (
	"fmt"
	"testing"
	"time"

	"netgraph-guard/internal/model"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

// makeSnapshot builds a snapshot from undirected host pairs.
func makeSnapshot(pairs [][2]string) *model.Snapshot {
	now := time.Now()
	snap := &model.Snapshot{
		Nodes:   make(map[string]model.Node),
		Edges:   make(map[string]model.Edge),
		TakenAt: now,
	}
	for _, p := range pairs {
		for _, id := range p {
			if _, ok := snap.Nodes[id]; !ok {
				snap.Nodes[id] = model.Node{ID: id, FirstSeen: now, LastSeen: now}
			}
		}
		edge := model.Edge{
			Source:      p[0],
			Destination: p[1],
			Protocol:    "TCP",
			ByteCount:   1000,
			PacketCount: 10,
			Weight:      1000,
			FirstSeen:   now.Add(-time.Minute),
			LastUpdated: now,
		}
		snap.Edges[edge.Key()] = edge
	}
	return snap
}

func TestDetectShiftFiresOnSpikeOnly(t *testing.T) {
	a := NewCentralityAnalyzer(3.0, 8, 3, testLogger())

	flat := []float64{1.0, 1.0, 1.01, 0.99, 1.0}
	for _, steady := range flat {
		_, shifted := a.detectShift(flat, steady)
		require.False(t, shifted, "steady score %v must not shift", steady)
	}

	raw, shifted := a.detectShift(flat, 10.0)
	require.True(t, shifted)
	require.Greater(t, raw, 0.9)
	require.LessOrEqual(t, raw, 1.0)
}

func TestAnalyzeSilentWithoutHistory(t *testing.T) {
	a := NewCentralityAnalyzer(3.0, 8, 3, testLogger())

	// A brand-new dense graph: nobody has history, nobody may fire.
	var pairs [][2]string
	for i := 0; i < 10; i++ {
		pairs = append(pairs, [2]string{"10.0.0.1", fmt.Sprintf("10.0.1.%d", i)})
	}
	scores := a.Analyze(makeSnapshot(pairs), time.Now())
	require.Empty(t, scores)
}

func TestAnalyzeFlagsEmergingHub(t *testing.T) {
	a := NewCentralityAnalyzer(3.0, 8, 3, testLogger())
	now := time.Now()

	// Steady background: hub talks to one gateway, peers pair off.
	background := [][2]string{
		{"hub", "gw"},
		{"10.0.0.1", "10.0.0.2"},
		{"10.0.0.3", "10.0.0.4"},
		{"10.0.0.5", "10.0.0.6"},
	}
	for tick := 0; tick < 4; tick++ {
		scores := a.Analyze(makeSnapshot(background), now)
		require.Empty(t, scores, "steady topology fired on tick %d", tick)
	}

	// The hub suddenly fans out to a crowd of previously unseen hosts.
	spike := append([][2]string{}, background...)
	for i := 0; i < 20; i++ {
		spike = append(spike, [2]string{"hub", fmt.Sprintf("10.9.0.%d", i)})
	}
	scores := a.Analyze(makeSnapshot(spike), now)

	require.Len(t, scores, 1)
	require.Equal(t, "hub", scores[0].TargetID)
	require.Equal(t, model.KindNode, scores[0].Kind)
	require.Len(t, scores[0].Signals, 1)
	require.Equal(t, SignalCentralityShift, scores[0].Signals[0].Name)
	require.Greater(t, scores[0].Score, 0.0)
}

func TestAnalyzeDropsHistoryForEvictedNodes(t *testing.T) {
	a := NewCentralityAnalyzer(3.0, 8, 3, testLogger())
	now := time.Now()

	a.Analyze(makeSnapshot([][2]string{{"a", "b"}, {"c", "d"}}), now)
	require.Contains(t, a.LatestScores(), "c")

	a.Analyze(makeSnapshot([][2]string{{"a", "b"}}), now)
	latest := a.LatestScores()
	require.Contains(t, latest, "a")
	require.NotContains(t, latest, "c")
}
