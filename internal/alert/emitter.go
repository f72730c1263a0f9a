package alert

import (
	"fmt"
	"sync"
	"time"

	"netgraph-guard/internal/analyzer"
	"netgraph-guard/internal/metrics"
	"netgraph-guard/internal/model"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Emitter turns fused anomaly scores into alerts: it derives severity,
// suppresses repeats of the same (target, type) pair inside the cooldown
// window, keeps a bounded history ring, and fans the survivors out to the
// notifiers and the broadcast hub.
type Emitter struct {
	cooldown    time.Duration
	historySize int

	mu       sync.Mutex
	lastSent map[string]time.Time
	history  []model.Alert

	notifiers   []Notifier
	broadcaster *Broadcaster

	metrics *metrics.Metrics
	logger  *logrus.Logger
}

// NewEmitter creates the emitter. The cooldown window defaults to one
// analysis tick interval upstream, which keeps a persistently anomalous
// node from producing an alert storm.
func NewEmitter(cooldown time.Duration, historySize int, broadcaster *Broadcaster, m *metrics.Metrics, logger *logrus.Logger) *Emitter {
	if historySize <= 0 {
		historySize = 1000
	}
	return &Emitter{
		cooldown:    cooldown,
		historySize: historySize,
		lastSent:    make(map[string]time.Time),
		broadcaster: broadcaster,
		metrics:     m,
		logger:      logger,
	}
}

// RegisterNotifier adds an alert delivery channel.
func (e *Emitter) RegisterNotifier(n Notifier) {
	e.notifiers = append(e.notifiers, n)
}

// Emit processes one tick's fused scores and returns the alerts that
// survived deduplication.
func (e *Emitter) Emit(scores []model.AnomalyScore, now time.Time) []model.Alert {
	var emitted []model.Alert

	for _, score := range scores {
		alert := alertFromScore(score, now)

		key := alert.TargetID + "|" + string(alert.Type)
		e.mu.Lock()
		if last, ok := e.lastSent[key]; ok && now.Sub(last) < e.cooldown {
			e.mu.Unlock()
			e.metrics.AlertsSuppressed.Inc()
			continue
		}
		e.lastSent[key] = now
		e.history = append(e.history, alert)
		if len(e.history) > e.historySize {
			e.history = e.history[len(e.history)-e.historySize:]
		}
		e.mu.Unlock()

		e.metrics.AlertsEmitted.WithLabelValues(string(alert.Type), string(alert.Severity)).Inc()
		e.logger.Warnf("ALERT [%s] %s: %s", alert.Severity, alert.Type, alert.Message)

		for _, notifier := range e.notifiers {
			if err := notifier.SendAlert(alert); err != nil {
				e.logger.Errorf("Failed to deliver alert %s: %v", alert.ID, err)
			}
		}
		e.broadcaster.Publish(alert)
		emitted = append(emitted, alert)
	}

	e.expireCooldowns(now)
	return emitted
}

// expireCooldowns drops stale cooldown entries so the map tracks only
// recently alerting targets.
func (e *Emitter) expireCooldowns(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for key, last := range e.lastSent {
		if now.Sub(last) > 10*e.cooldown {
			delete(e.lastSent, key)
		}
	}
}

// Recent returns up to limit alerts, newest first.
func (e *Emitter) Recent(limit int) []model.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	if limit <= 0 || limit > len(e.history) {
		limit = len(e.history)
	}
	out := make([]model.Alert, 0, limit)
	for i := len(e.history) - 1; i >= len(e.history)-limit; i-- {
		out = append(out, e.history[i])
	}
	return out
}

// ActiveTargets counts distinct targets that alerted within the horizon.
// The snapshot endpoint reports this as suspiciousConnections.
func (e *Emitter) ActiveTargets(now time.Time, horizon time.Duration) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	seen := make(map[string]struct{})
	for i := len(e.history) - 1; i >= 0; i-- {
		a := e.history[i]
		if now.Sub(a.Timestamp) > horizon {
			break
		}
		seen[a.TargetID] = struct{}{}
	}
	return len(seen)
}

// alertFromScore maps a fused score onto an alert. The alert type follows
// the winning signal: the first signal, in registration order, whose
// weighted score equals the fused score.
func alertFromScore(score model.AnomalyScore, now time.Time) model.Alert {
	winner := ""
	for _, sig := range score.Signals {
		weighted := sig.RawScore * sig.Weight
		if weighted > 1 {
			weighted = 1
		}
		if weighted >= score.Score {
			winner = sig.Name
			break
		}
	}

	alertType := model.AlertEnsembleAnomaly
	switch winner {
	case analyzer.SignalCentralityShift:
		alertType = model.AlertCentralityShift
	case analyzer.SignalClusterOutlier:
		alertType = model.AlertClusterOutlier
	}

	details := make(map[string]interface{}, len(score.Signals))
	for _, sig := range score.Signals {
		details[sig.Name] = map[string]interface{}{
			"raw_score": sig.RawScore,
			"weight":    sig.Weight,
		}
	}

	var message string
	switch alertType {
	case model.AlertCentralityShift:
		message = fmt.Sprintf("Anomalous centrality shift for host %s (score %.2f)", score.TargetID, score.Score)
	case model.AlertClusterOutlier:
		message = fmt.Sprintf("Traffic outlier on connection %s (score %.2f)", score.TargetID, score.Score)
	default:
		message = fmt.Sprintf("Ensemble anomaly on %s %s (score %.2f)", score.Kind, score.TargetID, score.Score)
	}

	return model.Alert{
		ID:        uuid.NewString(),
		Type:      alertType,
		Severity:  model.SeverityFromScore(score.Score),
		TargetID:  score.TargetID,
		Kind:      score.Kind,
		Score:     score.Score,
		Message:   message,
		Timestamp: now,
		Details:   details,
	}
}
