package decision

import (
	"fmt"

	"github.com/capgate-project/capgate/pkg/config"
	"github.com/capgate-project/capgate/pkg/scoring"
	"github.com/capgate-project/capgate/pkg/signals"
)

// Condition is everything the fallback controller needs to pick a level.
type Condition struct {
	Scores scoring.ScoreVector
	Env    signals.EnvironmentSnapshot

	Inexperienced  bool
	HighComplexity bool

	// AllSignalsFailed is set when every extractor timed out or errored.
	AllSignalsFailed bool

	// ForcedEmergency short-circuits to L5 (breaker open, sustained
	// degradation, unrecoverable environment fetch).
	ForcedEmergency bool

	// ForcedDetection short-circuits to L4 (recovery escalation, latency
	// budget breach, overload shedding).
	ForcedDetection bool

	// Reason annotates a forced level for the rationale.
	Reason string

	// ShedTier3 drops tier-3 categories from the selection (memory pressure).
	ShedTier3 bool
}

// Controller walks the ordered fallback chain and returns the first level
// whose condition holds. It always returns a non-empty category set.
type Controller struct {
	cfg   *config.EngineConfig
	tiers *TierEngine
}

// NewController creates the fallback controller.
func NewController(cfg *config.EngineConfig, tiers *TierEngine) *Controller {
	return &Controller{cfg: cfg, tiers: tiers}
}

// Evaluate picks the fallback level and category set for the condition.
// Levels are checked top-down, first match wins: a forced emergency or
// detection failure overrides everything, then L1 through L3 in order.
// Keeping L2 ahead of the ambiguity clause preserves monotonicity: raising
// one category's score can only widen an L2 selection, never flip it into
// the narrower safe set.
func (c *Controller) Evaluate(cond Condition) (FallbackLevel, []string, string) {
	fb := c.cfg.Fallback

	level, ids, rationale := func() (FallbackLevel, []string, string) {
		if cond.ForcedEmergency {
			return LevelEmergency, c.fullCatalog(cond.Scores),
				"emergency: " + cond.Reason + "; loading full catalog"
		}

		if cond.ForcedDetection || cond.AllSignalsFailed {
			reason := cond.Reason
			if reason == "" {
				reason = "all signal extractors failed"
			}
			return LevelDetectionFailure, c.fullCatalog(cond.Scores),
				"detection failure: " + reason + "; loading full catalog"
		}

		max := cond.Scores.Max()

		if max >= fb.HighConfidence {
			return LevelHighConfidence,
				c.tiers.Select(cond.Scores, cond.Inexperienced, cond.HighComplexity),
				fmt.Sprintf("high confidence (max score %.2f): precise tier selection", max)
		}

		if max >= fb.MediumConfidence {
			base := c.tiers.Select(cond.Scores, cond.Inexperienced, cond.HighComplexity)
			return LevelMediumConfidence, c.expand(base, cond.Scores),
				fmt.Sprintf("medium confidence (max score %.2f): tier selection with bounded expansion", max)
		}

		if n := cond.Scores.CountAbove(fb.AmbiguityScore); n >= fb.AmbiguityCount {
			return LevelLowConfidence, c.safeSet(cond),
				fmt.Sprintf("ambiguous request (%d domains above %.2f): conservative defaults", n, fb.AmbiguityScore)
		}

		return LevelLowConfidence, c.safeSet(cond),
			fmt.Sprintf("low confidence (max score %.2f): conservative defaults", max)
	}()

	if cond.ShedTier3 {
		ids = c.tiers.ShedTier3(ids)
		rationale += "; tier-3 shed under memory pressure"
	}
	if len(ids) == 0 {
		// The validator guarantees at least one tier-1 category.
		ids = c.tierOneSet(cond.Scores)
	}
	return level, ids, rationale
}

// tierOneSet is the minimal always-on set, the last resort when a selection
// came out empty.
func (c *Controller) tierOneSet(vec scoring.ScoreVector) []string {
	ids := c.cfg.TierOneIDs()
	sortByScore(ids, vec)
	return ids
}

// fullCatalog loads every category, used at L4 when detection is untrusted
// and at L5 when the pipeline is unhealthy.
func (c *Controller) fullCatalog(vec scoring.ScoreVector) []string {
	ids := c.cfg.AllIDs()
	sortByScore(ids, vec)
	return ids
}

// safeSet builds the L3 conservative set: tier-1 plus the default-safe
// categories, widened by the error-context and dirty-tree defaults when the
// environment shows those conditions.
func (c *Controller) safeSet(cond Condition) []string {
	seen := make(map[string]bool)
	var ids []string
	add := func(candidates []string) {
		for _, id := range candidates {
			if !seen[id] && c.cfg.CategoryByID(id) != nil {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}

	add(c.cfg.TierOneIDs())
	add(c.cfg.SafeDefaultIDs())
	if cond.Env.FailingTests || cond.Env.RecentErrorOutput != "" {
		add(c.cfg.Fallback.ErrorContextDefaults)
	}
	if cond.Env.DirtyWorktree || cond.Env.MergeConflict {
		add(c.cfg.Fallback.DirtyTreeDefaults)
	}

	sortByScore(ids, cond.Scores)
	return ids
}

// expand widens an L2 selection with up to ExpansionLimit extra categories
// scoring at or above the expansion floor.
func (c *Controller) expand(base []string, vec scoring.ScoreVector) []string {
	fb := c.cfg.Fallback
	seen := make(map[string]bool, len(base))
	for _, id := range base {
		seen[id] = true
	}

	added := 0
	for _, id := range vec.Sorted() {
		if added >= fb.ExpansionLimit {
			break
		}
		if seen[id] || vec[id] < fb.ExpansionFloor {
			continue
		}
		base = append(base, id)
		seen[id] = true
		added++
	}
	sortByScore(base, vec)
	return base
}
