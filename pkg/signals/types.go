// Package signals implements the four signal extractors of the decision
// pipeline. Each extractor is a pure function of the per-request snapshot;
// the Runner executes them concurrently under independent timeouts.
package signals

import (
	"time"
)

// Signal type names used as keys for weights, modifiers and metrics.
const (
	SignalKeyword     = "keyword"
	SignalContext     = "context"
	SignalEnvironment = "environment"
	SignalHistory     = "history"
)

// ConfidenceMap maps category ID to a confidence in [0,1].
type ConfidenceMap map[string]float64

// Request is the immutable per-request snapshot consumed by the extractors.
// The engine never mutates it after admission.
type Request struct {
	// Query is the raw request text.
	Query string

	// Environment is a pre-fetched snapshot of the caller's environment.
	// Extractors perform no I/O of their own.
	Environment EnvironmentSnapshot

	// History is the session history, most recent last.
	History []HistoryEntry

	// Inexperienced marks a requester who gets the conservative-bias
	// threshold scaling.
	Inexperienced bool

	// HighComplexity marks a query the caller classified as complex.
	HighComplexity bool
}

// EnvironmentSnapshot carries environment-state flags supplied by the caller.
type EnvironmentSnapshot struct {
	DirtyWorktree  bool
	MergeConflict  bool
	FailingTests   bool
	HasTestDir     bool
	HasSecurityDir bool
	HasInfraDir    bool

	// RecentErrorOutput is the tail of recent tool/compiler output, scanned
	// by the context-clue detector for error tokens.
	RecentErrorOutput string
}

// HistoryEntry is one prior interaction in the session.
type HistoryEntry struct {
	Query      string
	Categories []string
	At         time.Time
}

// Extractor is one independent source of evidence about which categories a
// request needs.
type Extractor interface {
	// Name returns the signal type name (one of the Signal* constants).
	Name() string

	// Extract computes per-category confidences for the request. It must be
	// pure and must not block on external resources.
	Extract(req *Request) (ConfidenceMap, error)
}

// Result is the outcome of running one extractor.
type Result struct {
	Signal      string
	Confidences ConfidenceMap
	Err         error
	TimedOut    bool
	Latency     time.Duration
}

// Failed reports whether the extractor produced no usable output.
func (r Result) Failed() bool {
	return r.Err != nil || r.TimedOut
}

// merge records a confidence for a category, keeping the maximum. Multiple
// hits within one extractor never sum, bounding inflation.
func (m ConfidenceMap) merge(category string, confidence float64) {
	if confidence > m[category] {
		m[category] = confidence
	}
}
