package decision

import (
	"sort"

	"github.com/capgate-project/capgate/pkg/config"
	"github.com/capgate-project/capgate/pkg/scoring"
)

// TierEngine applies the per-tier loading thresholds to a fused score
// vector. Tier-1 categories are unconditional; tier-2 and tier-3 load when
// their calibrated score clears the (possibly biased) threshold.
type TierEngine struct {
	catalog []config.Category
	cfg     config.TierConfig
}

// NewTierEngine creates a tier engine over the static catalog.
func NewTierEngine(catalog []config.Category, cfg config.TierConfig) *TierEngine {
	return &TierEngine{catalog: catalog, cfg: cfg}
}

// Thresholds returns the effective tier-2 and tier-3 thresholds after bias
// scaling. Both bias factors stack multiplicatively, so an inexperienced
// requester on a complex task gets the loosest gate.
func (t *TierEngine) Thresholds(inexperienced, highComplexity bool) (tier2, tier3 float64) {
	tier2, tier3 = t.cfg.Tier2Threshold, t.cfg.Tier3Threshold
	if inexperienced {
		tier2 *= t.cfg.InexperiencedFactor
		tier3 *= t.cfg.InexperiencedFactor
	}
	if highComplexity {
		tier2 *= t.cfg.ComplexityFactor
		tier3 *= t.cfg.ComplexityFactor
	}
	return tier2, tier3
}

// Select returns the category IDs the tiers admit for this score vector,
// ordered by descending score with ties broken by ID. Tier-1 categories are
// always present, scored or not.
func (t *TierEngine) Select(vec scoring.ScoreVector, inexperienced, highComplexity bool) []string {
	tier2, tier3 := t.Thresholds(inexperienced, highComplexity)

	var ids []string
	for _, cat := range t.catalog {
		switch cat.Tier {
		case 1:
			ids = append(ids, cat.ID)
		case 2:
			if vec[cat.ID] >= tier2 {
				ids = append(ids, cat.ID)
			}
		case 3:
			if vec[cat.ID] >= tier3 {
				ids = append(ids, cat.ID)
			}
		}
	}
	sortByScore(ids, vec)
	return ids
}

// ShedTier3 removes tier-3 categories from a selection, used under memory
// pressure.
func (t *TierEngine) ShedTier3(ids []string) []string {
	tier3 := make(map[string]bool)
	for _, cat := range t.catalog {
		if cat.Tier == 3 {
			tier3[cat.ID] = true
		}
	}
	kept := ids[:0]
	for _, id := range ids {
		if !tier3[id] {
			kept = append(kept, id)
		}
	}
	return kept
}

// sortByScore orders IDs by descending score, ties broken by ID so the
// output is deterministic for identical inputs.
func sortByScore(ids []string, vec scoring.ScoreVector) {
	sort.Slice(ids, func(i, j int) bool {
		if vec[ids[i]] != vec[ids[j]] {
			return vec[ids[i]] > vec[ids[j]]
		}
		return ids[i] < ids[j]
	})
}
