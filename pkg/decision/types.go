// Package decision implements the category loading decision engine: it fuses
// the extractor signals into calibrated scores, applies tier thresholds and
// the fallback chain, and always returns a usable Decision. The caller never
// sees an error from this package.
package decision

import (
	"time"

	"github.com/capgate-project/capgate/pkg/scoring"
)

// FallbackLevel orders the fallback chain from most precise to most degraded.
type FallbackLevel int

const (
	// LevelHighConfidence loads exactly the categories the tiers selected.
	LevelHighConfidence FallbackLevel = iota + 1

	// LevelMediumConfidence loads the tier selection plus a bounded expansion
	// of plausible extras.
	LevelMediumConfidence

	// LevelLowConfidence loads the conservative safe-default set.
	LevelLowConfidence

	// LevelDetectionFailure loads the full catalog because signal detection
	// could not be trusted.
	LevelDetectionFailure

	// LevelEmergency loads the full catalog immediately, bypassing scoring,
	// while the pipeline is unhealthy.
	LevelEmergency
)

func (l FallbackLevel) String() string {
	switch l {
	case LevelHighConfidence:
		return "L1"
	case LevelMediumConfidence:
		return "L2"
	case LevelLowConfidence:
		return "L3"
	case LevelDetectionFailure:
		return "L4"
	case LevelEmergency:
		return "L5"
	default:
		return "unknown"
	}
}

// Degraded reports whether this level means the pipeline could not produce a
// trusted signal-driven decision.
func (l FallbackLevel) Degraded() bool {
	return l >= LevelDetectionFailure
}

// Decision is the complete outcome of one evaluation. Categories is always
// non-empty: every level guarantees at least the tier-1 set.
type Decision struct {
	// RequestID ties the decision to its learning record; callers report the
	// categories actually used via Engine.Observe with this ID.
	RequestID string `json:"request_id"`

	// Categories are the chosen category IDs, ordered by descending score
	// with ties broken by ID.
	Categories []string `json:"categories"`

	Level     FallbackLevel `json:"-"`
	LevelName string        `json:"level"`

	// Rationale is a short human-readable explanation of why this level and
	// set were chosen.
	Rationale string `json:"rationale"`

	// Scores is the fused score vector at decision time. Empty when the
	// pipeline never reached fusion (emergency paths).
	Scores scoring.ScoreVector `json:"scores,omitempty"`

	Latency time.Duration `json:"latency_ns"`
	At      time.Time     `json:"at"`

	// Cached marks a decision served from the decision cache.
	Cached bool `json:"cached,omitempty"`
}
