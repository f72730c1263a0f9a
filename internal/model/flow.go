package model

import (
	"fmt"
	"time"
)

// FlowRecord is the immutable input unit of the engine: one aggregated flow
// between two hosts, produced by an external capture/reconstruction layer.
// It is never mutated after ingestion.
type FlowRecord struct {
	SrcIP     string    `json:"src_ip"`
	DstIP     string    `json:"dst_ip"`
	SrcPort   uint16    `json:"src_port"`
	DstPort   uint16    `json:"dst_port"`
	Protocol  string    `json:"protocol"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Bytes     int64     `json:"bytes"`
	Packets   int64     `json:"packets"`
}

// Validate checks the record against the ingest contract. Invalid records
// are dropped by the ingestor, never fatal to the pipeline.
func (f *FlowRecord) Validate() error {
	if f.SrcIP == "" || f.DstIP == "" {
		return fmt.Errorf("%w: missing endpoint address (src=%q dst=%q)", ErrInvalidFlowRecord, f.SrcIP, f.DstIP)
	}
	if f.Bytes <= 0 {
		return fmt.Errorf("%w: non-positive byte count %d", ErrInvalidFlowRecord, f.Bytes)
	}
	if f.Packets <= 0 {
		return fmt.Errorf("%w: non-positive packet count %d", ErrInvalidFlowRecord, f.Packets)
	}
	if !f.EndTime.IsZero() && f.EndTime.Before(f.StartTime) {
		return fmt.Errorf("%w: end time %s before start time %s", ErrInvalidFlowRecord, f.EndTime.Format(time.RFC3339), f.StartTime.Format(time.RFC3339))
	}
	return nil
}

// Duration returns the flow duration, never negative.
func (f *FlowRecord) Duration() time.Duration {
	if f.EndTime.IsZero() || f.EndTime.Before(f.StartTime) {
		return 0
	}
	return f.EndTime.Sub(f.StartTime)
}
