package analyzer

import (
	"math"
	"sync"
	"time"

	"netgraph-guard/internal/model"

	"github.com/sirupsen/logrus"
)

// SignalCentralityShift names the centrality analyzer's output signal.
const SignalCentralityShift = "centrality_shift"

// stddevFloor keeps the shift test well-defined for flat histories: a node
// whose past scores are all identical should still fire on a spike.
const stddevFloor = 1e-9

// CentralityAnalyzer computes degree centrality per node on every analysis
// tick and flags nodes whose score jumps past mean + k*stddev of their own
// rolling history. New nodes stay silent until they have minHistory past
// ticks, which keeps first-contact hosts from alerting immediately.
type CentralityAnalyzer struct {
	k          float64
	historyLen int
	minHistory int

	mu      sync.Mutex
	history map[string][]float64

	logger *logrus.Logger
}

// NewCentralityAnalyzer creates the analyzer with the given shift threshold
// multiplier and history bounds.
func NewCentralityAnalyzer(k float64, historyLen, minHistory int, logger *logrus.Logger) *CentralityAnalyzer {
	return &CentralityAnalyzer{
		k:          k,
		historyLen: historyLen,
		minHistory: minHistory,
		history:    make(map[string][]float64),
		logger:     logger,
	}
}

// Name identifies the analyzer as a signal source.
func (a *CentralityAnalyzer) Name() string {
	return SignalCentralityShift
}

// Analyze scores one snapshot. It reads only the snapshot, never the live
// store, and returns one AnomalyScore per node whose centrality shifted.
func (a *CentralityAnalyzer) Analyze(snap *model.Snapshot, now time.Time) []model.AnomalyScore {
	scores := degreeCentrality(snap)

	a.mu.Lock()
	defer a.mu.Unlock()

	var results []model.AnomalyScore
	for id, score := range scores {
		hist := a.history[id]

		if len(hist) >= a.minHistory {
			if raw, shifted := a.detectShift(hist, score); shifted {
				results = append(results, model.AnomalyScore{
					TargetID: id,
					Kind:     model.KindNode,
					Score:    raw,
					Signals: []model.Signal{
						{Name: SignalCentralityShift, RawScore: raw, Weight: 1.0},
					},
					Timestamp: now,
				})
				a.logger.Debugf("Centrality shift on %s: score %.4f, raw %.4f", id, score, raw)
			}
		}

		hist = append(hist, score)
		if len(hist) > a.historyLen {
			hist = hist[len(hist)-a.historyLen:]
		}
		a.history[id] = hist
	}

	// Forget nodes that left the graph so history does not grow without
	// bound across TTL evictions.
	for id := range a.history {
		if _, ok := scores[id]; !ok {
			delete(a.history, id)
		}
	}

	return results
}

// LatestScores returns a copy of each tracked node's most recent centrality.
func (a *CentralityAnalyzer) LatestScores() map[string]float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make(map[string]float64, len(a.history))
	for id, hist := range a.history {
		if len(hist) > 0 {
			out[id] = hist[len(hist)-1]
		}
	}
	return out
}

// degreeCentrality derives each node's degree from the snapshot's edges and
// normalizes by n-1, the standard degree-centrality scaling.
func degreeCentrality(snap *model.Snapshot) map[string]float64 {
	degrees := make(map[string]int, len(snap.Nodes))
	for id := range snap.Nodes {
		degrees[id] = 0
	}
	for _, edge := range snap.Edges {
		degrees[edge.Source]++
		degrees[edge.Destination]++
	}

	n := len(snap.Nodes)
	scores := make(map[string]float64, n)
	if n <= 1 {
		for id := range degrees {
			scores[id] = 0
		}
		return scores
	}
	for id, d := range degrees {
		scores[id] = float64(d) / float64(n-1)
	}
	return scores
}

func meanStddev(values []float64) (float64, float64) {
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(values)))
}

// detectShift tests a current score against the node's history: a shift is
// a score above mean + k*stddev. The returned raw score saturates with the
// number of standard deviations past the threshold.
func (a *CentralityAnalyzer) detectShift(hist []float64, score float64) (float64, bool) {
	mean, stddev := meanStddev(hist)
	stddev = math.Max(stddev, stddevFloor)
	if score <= mean+a.k*stddev {
		return 0, false
	}
	z := (score - mean) / stddev
	return saturate(z - a.k), true
}

// saturate maps a non-negative shift magnitude into [0,1).
func saturate(excess float64) float64 {
	if excess <= 0 {
		return 0
	}
	return excess / (1 + excess)
}
