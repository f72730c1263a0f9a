package model

import "time"

// TargetKind distinguishes node-level from edge-level anomaly results.
type TargetKind string

const (
	KindNode TargetKind = "node"
	KindEdge TargetKind = "edge"
)

// Signal is one contributing anomaly indicator for a target.
type Signal struct {
	Name     string  `json:"name"`
	RawScore float64 `json:"raw_score"`
	Weight   float64 `json:"weight"`
}

// AnomalyScore is the fused per-target verdict for one analysis tick.
// Signals are ordered by scorer registration order, which makes fusion
// and tie-breaking deterministic.
type AnomalyScore struct {
	TargetID  string     `json:"target_id"`
	Kind      TargetKind `json:"kind"`
	Score     float64    `json:"score"`
	Signals   []Signal   `json:"signals"`
	Timestamp time.Time  `json:"timestamp"`
}

// AlertType classifies an alert by its dominant signal.
type AlertType string

const (
	AlertCentralityShift AlertType = "CentralityShift"
	AlertClusterOutlier  AlertType = "ClusterOutlier"
	AlertEnsembleAnomaly AlertType = "EnsembleAnomaly"
)

// Severity buckets, derived from the fused score via fixed thresholds.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// SeverityFromScore maps a fused score to a severity bucket:
// <0.4 low, 0.4-0.7 medium, >0.7 high.
func SeverityFromScore(score float64) Severity {
	switch {
	case score > 0.7:
		return SeverityHigh
	case score >= 0.4:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Alert is the emitted, user-facing anomaly record. Transient: retained only
// in the emitter's bounded history, never mutated after creation.
type Alert struct {
	ID        string                 `json:"id"`
	Type      AlertType              `json:"type"`
	Severity  Severity               `json:"severity"`
	TargetID  string                 `json:"target_id"`
	Kind      TargetKind             `json:"kind"`
	Score     float64                `json:"score"`
	Message   string                 `json:"message"`
	Timestamp time.Time              `json:"timestamp"`
	Details   map[string]interface{} `json:"details,omitempty"`
}
