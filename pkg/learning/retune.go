package learning

import (
	"github.com/capgate-project/capgate/pkg/config"
	"github.com/capgate-project/capgate/pkg/scoring"
)

// Weight bounds keep a runaway batch from silencing or amplifying a signal
// beyond recognition.
const (
	minSignalWeight = 0.1
	maxSignalWeight = 2.0
)

type batchStats struct {
	Precision      float64
	Recall         float64
	F1             float64
	OverInclusion  float64
	UnderInclusion float64
}

// computeBatchStats micro-averages set accuracy over the batch. Failure
// records count toward over-/under-inclusion but their full-catalog
// predictions would distort precision, so they are excluded there.
func computeBatchStats(batch []*Record) batchStats {
	var tp, fp, fn int
	var over, under, counted int

	for _, rec := range batch {
		observed := toSet(rec.Observed)
		predicted := toSet(rec.Predicted)

		missing := 0
		for cat := range observed {
			if !predicted[cat] {
				missing++
			}
		}
		extra := 0
		for cat := range predicted {
			if !observed[cat] {
				extra++
			}
		}
		over += extra
		under += missing
		counted++

		if rec.Failure {
			continue
		}
		tp += len(predicted) - extra
		fp += extra
		fn += missing
	}

	var stats batchStats
	if tp+fp > 0 {
		stats.Precision = float64(tp) / float64(tp+fp)
	}
	if tp+fn > 0 {
		stats.Recall = float64(tp) / float64(tp+fn)
	}
	if stats.Precision+stats.Recall > 0 {
		stats.F1 = 2 * stats.Precision * stats.Recall / (stats.Precision + stats.Recall)
	}
	if counted > 0 {
		stats.OverInclusion = float64(over) / float64(counted)
		stats.UnderInclusion = float64(under) / float64(counted)
	}
	return stats
}

// retuneWeights nudges each signal's global weight toward its observed hit
// accuracy, capped at maxDelta per batch.
func retuneWeights(snap *scoring.Snapshot, batch []*Record, maxDelta float64) {
	hits := make(map[string]int)
	correct := make(map[string]int)

	for _, rec := range batch {
		if rec.Failure {
			continue
		}
		observed := toSet(rec.Observed)
		for signal, categories := range rec.SignalHits {
			for _, cat := range categories {
				hits[signal]++
				if observed[cat] {
					correct[signal]++
				}
			}
		}
	}

	for signal, total := range hits {
		if total == 0 {
			continue
		}
		accuracy := float64(correct[signal]) / float64(total)

		// Accuracy 0.5 is neutral; above pushes the weight up, below down.
		delta := (accuracy - 0.5) * 2 * maxDelta
		if delta > maxDelta {
			delta = maxDelta
		}
		if delta < -maxDelta {
			delta = -maxDelta
		}

		w := snap.Weight(signal) + delta
		if w < minSignalWeight {
			w = minSignalWeight
		}
		if w > maxSignalWeight {
			w = maxSignalWeight
		}
		snap.SignalWeights[signal] = w
	}
}

// retuneCalibration moves each category's calibration knots toward the
// observed usage rate at that score region, capped at maxDelta per knot.
// Categories without a configured curve stay on the identity mapping.
func retuneCalibration(snap *scoring.Snapshot, batch []*Record, maxDelta float64) {
	type bucket struct {
		used  int
		total int
	}

	// Usage rate near each knot, per category.
	usage := make(map[string]map[int]*bucket)

	for _, rec := range batch {
		if rec.Failure {
			continue
		}
		observed := toSet(rec.Observed)
		for cat, score := range rec.Scores {
			curve, ok := snap.Calibration[cat]
			if !ok || len(curve) == 0 {
				continue
			}
			knot := nearestKnot(curve, score)
			if usage[cat] == nil {
				usage[cat] = make(map[int]*bucket)
			}
			b := usage[cat][knot]
			if b == nil {
				b = &bucket{}
				usage[cat][knot] = b
			}
			b.total++
			if observed[cat] {
				b.used++
			}
		}
	}

	for cat, knots := range usage {
		curve := snap.Calibration[cat]
		for idx, b := range knots {
			if b.total < 3 {
				continue
			}
			rate := float64(b.used) / float64(b.total)
			delta := rate - curve[idx].Out
			if delta > maxDelta {
				delta = maxDelta
			}
			if delta < -maxDelta {
				delta = -maxDelta
			}
			out := curve[idx].Out + delta
			if out < 0 {
				out = 0
			}
			if out > 1 {
				out = 1
			}
			curve[idx].Out = out
		}
	}
}

func nearestKnot(curve []config.CalibrationPoint, score float64) int {
	best := 0
	bestDist := 2.0
	for i, p := range curve {
		d := p.In - score
		if d < 0 {
			d = -d
		}
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}
