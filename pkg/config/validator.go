package config

import (
	"fmt"
	"strings"
)

// Validate checks structural invariants of the configuration. Any error
// returned here is fatal at startup: a malformed catalog must never reach
// the per-request path.
func Validate(cfg *EngineConfig) error {
	if len(cfg.Categories) == 0 {
		return fmt.Errorf("config validation: no categories configured")
	}

	seen := make(map[string]bool, len(cfg.Categories))
	hasTierOne := false
	hasSafeDefault := false

	for i, cat := range cfg.Categories {
		id := strings.TrimSpace(cat.ID)
		if id == "" {
			return fmt.Errorf("config validation: category[%d] has empty id", i)
		}
		if seen[id] {
			return fmt.Errorf("config validation: duplicate category id %q", id)
		}
		seen[id] = true

		if cat.Tier < 1 || cat.Tier > 3 {
			return fmt.Errorf("config validation: category %q has invalid tier %d (must be 1-3)", id, cat.Tier)
		}
		if cat.Tier == 1 {
			hasTierOne = true
		}
		if cat.DefaultSafe {
			hasSafeDefault = true
		}
	}

	if !hasTierOne {
		return fmt.Errorf("config validation: no tier-1 category configured; every decision must have an unconditional base set")
	}
	if !hasSafeDefault {
		return fmt.Errorf("config validation: no default-safe category configured; the L3 fallback would be empty")
	}

	for _, clue := range cfg.Signals.ContextClues {
		switch clue.Kind {
		case "extension", "error", "performance":
		default:
			return fmt.Errorf("config validation: context clue %q has unknown kind %q", clue.Pattern, clue.Kind)
		}
		if !seen[clue.Category] {
			return fmt.Errorf("config validation: context clue %q references unknown category %q", clue.Pattern, clue.Category)
		}
		if clue.Confidence <= 0 || clue.Confidence > 1 {
			return fmt.Errorf("config validation: context clue %q has confidence %.2f outside (0,1]", clue.Pattern, clue.Confidence)
		}
	}

	for _, rule := range cfg.Signals.EnvironmentRules {
		switch rule.Flag {
		case "dirty_worktree", "merge_conflict", "failing_tests",
			"has_test_dir", "has_security_dir", "has_infra_dir":
		default:
			return fmt.Errorf("config validation: environment rule has unknown flag %q", rule.Flag)
		}
		if !seen[rule.Category] {
			return fmt.Errorf("config validation: environment rule %q references unknown category %q", rule.Flag, rule.Category)
		}
		if rule.Confidence <= 0 || rule.Confidence > 1 {
			return fmt.Errorf("config validation: environment rule %q has confidence %.2f outside (0,1]", rule.Flag, rule.Confidence)
		}
	}

	for _, mod := range cfg.Scoring.Modifiers {
		if !seen[mod.Category] {
			return fmt.Errorf("config validation: scoring modifier references unknown category %q", mod.Category)
		}
		if mod.Factor < 0 {
			return fmt.Errorf("config validation: scoring modifier for %q has negative factor", mod.Category)
		}
	}

	for cat, points := range cfg.Scoring.Calibration {
		if !seen[cat] {
			return fmt.Errorf("config validation: calibration curve references unknown category %q", cat)
		}
		for i, p := range points {
			if p.In < 0 || p.In > 1 || p.Out < 0 || p.Out > 1 {
				return fmt.Errorf("config validation: calibration point %d for %q outside [0,1]", i, cat)
			}
			if i > 0 && points[i-1].In >= p.In {
				return fmt.Errorf("config validation: calibration points for %q must be strictly increasing in 'in'", cat)
			}
		}
	}

	if cfg.Tiers.Tier2Threshold >= cfg.Tiers.Tier3Threshold {
		return fmt.Errorf("config validation: tier2_threshold (%.2f) must be below tier3_threshold (%.2f)",
			cfg.Tiers.Tier2Threshold, cfg.Tiers.Tier3Threshold)
	}
	if cfg.Fallback.MediumConfidence >= cfg.Fallback.HighConfidence {
		return fmt.Errorf("config validation: medium_confidence (%.2f) must be below high_confidence (%.2f)",
			cfg.Fallback.MediumConfidence, cfg.Fallback.HighConfidence)
	}

	for _, id := range cfg.Fallback.ErrorContextDefaults {
		if !seen[id] {
			return fmt.Errorf("config validation: error_context_defaults references unknown category %q", id)
		}
	}
	for _, id := range cfg.Fallback.DirtyTreeDefaults {
		if !seen[id] {
			return fmt.Errorf("config validation: dirty_tree_defaults references unknown category %q", id)
		}
	}

	switch cfg.Cache.EvictionPolicy {
	case "lru", "fifo", "lfu":
	default:
		return fmt.Errorf("config validation: unknown cache eviction policy %q (valid: lru, fifo, lfu)", cfg.Cache.EvictionPolicy)
	}

	return nil
}
