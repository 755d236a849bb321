package pipeline

import "errors"

// Sentinel kinds for pipeline errors.
var (
	// ErrRecomputation marks a failed per-player recomputation. It is logged
	// and counted, never surfaced to ingestion.
	ErrRecomputation = errors.New("recomputation failed")
	ErrRebuild       = errors.New("index rebuild failed")
)
