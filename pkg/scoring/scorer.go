package scoring

import (
	"sort"

	"github.com/capgate-project/capgate/pkg/config"
	"github.com/capgate-project/capgate/pkg/signals"
)

// ScoreVector is the per-request fused confidence, category ID → [0,1].
type ScoreVector map[string]float64

// Max returns the highest score in the vector, 0 for an empty vector.
func (v ScoreVector) Max() float64 {
	max := 0.0
	for _, s := range v {
		if s > max {
			max = s
		}
	}
	return max
}

// CountAbove returns how many categories score strictly above the threshold.
func (v ScoreVector) CountAbove(threshold float64) int {
	n := 0
	for _, s := range v {
		if s > threshold {
			n++
		}
	}
	return n
}

// Sorted returns category IDs ordered by descending score, ties broken by
// ID so the ordering is deterministic.
func (v ScoreVector) Sorted() []string {
	ids := make([]string, 0, len(v))
	for id := range v {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if v[ids[i]] != v[ids[j]] {
			return v[ids[i]] > v[ids[j]]
		}
		return ids[i] < ids[j]
	})
	return ids
}

// Clone returns an independent copy of the vector.
func (v ScoreVector) Clone() ScoreVector {
	out := make(ScoreVector, len(v))
	for k, s := range v {
		out[k] = s
	}
	return out
}

// Scorer fuses per-signal confidence maps into one ScoreVector using the
// currently published weight snapshot.
type Scorer struct {
	store *Store

	complexityCompression float64
	compressionPivot      float64
}

// NewScorer creates a scorer reading snapshots from the given store. The
// compression pivot is the tier-2 threshold: high-complexity queries have
// their scores pulled toward it so borderline categories stay loadable.
func NewScorer(store *Store, scoringCfg config.ScoringConfig, tierCfg config.TierConfig) *Scorer {
	return &Scorer{
		store:                 store,
		complexityCompression: scoringCfg.ComplexityCompression,
		compressionPivot:      tierCfg.Tier2Threshold,
	}
}

// Store exposes the snapshot store, shared with the learning collector.
func (s *Scorer) Store() *Store {
	return s.store
}

// Fuse combines the extractor results into one calibrated ScoreVector.
// Per category: sum over signals of confidence × signal weight × modifier,
// clipped to [0,1], then calibrated, then compressed for high-complexity
// queries.
func (s *Scorer) Fuse(results []signals.Result, highComplexity bool) ScoreVector {
	snap := s.store.Current()
	out := make(ScoreVector)

	for _, res := range results {
		if res.Failed() {
			continue
		}
		weight := snap.Weight(res.Signal)
		for category, confidence := range res.Confidences {
			out[category] += confidence * weight * snap.Modifier(category, res.Signal)
		}
	}

	for category, raw := range out {
		score := clip01(raw)
		score = calibrate(snap.Calibration[category], score)
		if highComplexity {
			score = s.compress(score)
		}
		out[category] = clip01(score)
	}

	return out
}

// compress pulls a score toward the pivot by the configured factor.
func (s *Scorer) compress(score float64) float64 {
	return s.compressionPivot + (score-s.compressionPivot)*s.complexityCompression
}

// calibrate applies a piecewise-linear curve. Scores outside the knot range
// clamp to the end knots; an empty curve is identity.
func calibrate(points []config.CalibrationPoint, score float64) float64 {
	if len(points) == 0 {
		return score
	}
	if score <= points[0].In {
		return points[0].Out
	}
	last := points[len(points)-1]
	if score >= last.In {
		return last.Out
	}
	for i := 1; i < len(points); i++ {
		if score <= points[i].In {
			lo, hi := points[i-1], points[i]
			frac := (score - lo.In) / (hi.In - lo.In)
			return lo.Out + frac*(hi.Out-lo.Out)
		}
	}
	return last.Out
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
