package scoring

import (
	"sync"
	"time"

	"netgraph-guard/internal/metrics"
	"netgraph-guard/internal/model"

	"github.com/sirupsen/logrus"
)

// Scorer is a pluggable external anomaly model, treated as a black box. The
// engine is fully functional with zero registered scorers, degrading to the
// rule-based graph signals.
type Scorer interface {
	Name() string
	Score(features map[string]float64) (score float64, confidence float64, err error)
}

// Ensemble fuses the anomaly signals of the graph analyzers and any
// registered external scorers into one verdict per target.
//
// Fusion policy is weighted maximum: a single strong signal must not be
// diluted by averaging with weaker or absent ones. Ties break by signal
// registration order, so fusion is deterministic across runs.
type Ensemble struct {
	weights map[string]float64
	scorers []Scorer

	mu     sync.Mutex
	failed []string

	metrics *metrics.Metrics
	logger  *logrus.Logger
}

// NewEnsemble creates the fuser with the configured signal weights. Signals
// without a configured weight count with weight 1.
func NewEnsemble(weights map[string]float64, m *metrics.Metrics, logger *logrus.Logger) *Ensemble {
	if weights == nil {
		weights = map[string]float64{}
	}
	return &Ensemble{
		weights: weights,
		metrics: m,
		logger:  logger,
	}
}

// Register appends an external scorer. Registration order is the tie-break
// order during fusion and must happen before the pipeline starts.
func (e *Ensemble) Register(s Scorer) {
	e.scorers = append(e.scorers, s)
	e.logger.Infof("Registered external scorer: %s", s.Name())
}

func (e *Ensemble) weightFor(signal string) float64 {
	if w, ok := e.weights[signal]; ok {
		return w
	}
	return 1.0
}

type targetKey struct {
	id   string
	kind model.TargetKind
}

// Fuse combines the analyzers' single-signal scores and the external
// scorers' outputs for one tick. edgeFeatures carries the per-edge feature
// vectors handed to external scorers. Targets with no signals this tick are
// absent from the result, not zero-scored.
func (e *Ensemble) Fuse(analyzerScores []model.AnomalyScore, edgeFeatures map[string]map[string]float64, now time.Time) []model.AnomalyScore {
	order := make([]targetKey, 0, len(analyzerScores))
	signals := make(map[targetKey][]model.Signal)

	add := func(key targetKey, sig model.Signal) {
		if _, seen := signals[key]; !seen {
			order = append(order, key)
		}
		signals[key] = append(signals[key], sig)
	}

	for _, score := range analyzerScores {
		key := targetKey{id: score.TargetID, kind: score.Kind}
		for _, sig := range score.Signals {
			sig.Weight = e.weightFor(sig.Name)
			add(key, sig)
			e.metrics.SignalsEmitted.WithLabelValues(sig.Name).Inc()
		}
	}

	type pendingSignal struct {
		key targetKey
		sig model.Signal
	}

	var failed []string
	for _, scorer := range e.scorers {
		name := "ml_" + scorer.Name()
		weight := e.weightFor(name)

		// Buffer the scorer's signals so an error anywhere in the tick
		// discards the whole scorer, not just the remaining edges.
		pending := make([]pendingSignal, 0, len(edgeFeatures))
		scorerFailed := false

		for edgeKey, features := range edgeFeatures {
			score, confidence, err := scorer.Score(features)
			if err != nil {
				scorerFailed = true
				failed = append(failed, scorer.Name())
				e.metrics.ScorerErrors.WithLabelValues(scorer.Name()).Inc()
				e.logger.Warnf("Scorer %s unavailable, omitting its signal this tick: %v", scorer.Name(), err)
				break
			}
			raw := clamp01(score * confidence)
			if raw == 0 {
				continue
			}
			pending = append(pending, pendingSignal{
				key: targetKey{id: edgeKey, kind: model.KindEdge},
				sig: model.Signal{Name: name, RawScore: raw, Weight: weight},
			})
		}
		if scorerFailed {
			continue
		}

		for _, p := range pending {
			add(p.key, p.sig)
			e.metrics.SignalsEmitted.WithLabelValues(name).Inc()
		}
	}

	e.mu.Lock()
	e.failed = failed
	e.mu.Unlock()

	fused := make([]model.AnomalyScore, 0, len(order))
	for _, key := range order {
		sigs := signals[key]
		best := 0.0
		for _, sig := range sigs {
			if weighted := clamp01(sig.RawScore * sig.Weight); weighted > best {
				best = weighted
			}
		}
		fused = append(fused, model.AnomalyScore{
			TargetID:  key.id,
			Kind:      key.kind,
			Score:     best,
			Signals:   sigs,
			Timestamp: now,
		})
	}
	return fused
}

// FailedScorers lists the scorers that errored on the most recent tick.
func (e *Ensemble) FailedScorers() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.failed...)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
