package model

import "errors"

// Engine error taxonomy. All of these are isolated per-record or per-tick;
// none should ever terminate the process.
var (
	// ErrInvalidFlowRecord marks malformed input. Dropped and logged.
	ErrInvalidFlowRecord = errors.New("invalid flow record")

	// ErrScorerUnavailable marks a registered external scorer that failed
	// for the current tick. Its signal is omitted from fusion.
	ErrScorerUnavailable = errors.New("scorer unavailable")

	// ErrSnapshotInconsistency marks an internal invariant violation
	// (dangling edge). Fatal to the affected analysis tick only.
	ErrSnapshotInconsistency = errors.New("snapshot inconsistency")

	// ErrSubscriberOverflow marks a slow alert subscriber. Handled by
	// drop-oldest, never propagated to the publisher.
	ErrSubscriberOverflow = errors.New("subscriber overflow")
)
