package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capgate-project/capgate/pkg/config"
	"github.com/capgate-project/capgate/pkg/scoring"
	"github.com/capgate-project/capgate/pkg/signals"
)

func testEngineConfig() *config.EngineConfig {
	cfg := &config.EngineConfig{
		Categories: testCategories(),
		Fallback: config.FallbackConfig{
			ErrorContextDefaults: []string{"docs"},
			DirtyTreeDefaults:    []string{"git"},
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

func newTestController() *Controller {
	cfg := testEngineConfig()
	return NewController(cfg, NewTierEngine(cfg.Categories, cfg.Tiers))
}

func TestFallbackLevels(t *testing.T) {
	c := newTestController()

	tests := []struct {
		name      string
		cond      Condition
		wantLevel FallbackLevel
		wantIDs   []string
	}{
		{
			name:      "forced emergency loads full catalog bypassing scoring",
			cond:      Condition{ForcedEmergency: true, Reason: "circuit breaker open"},
			wantLevel: LevelEmergency,
			wantIDs:   []string{"core", "db", "docs", "git", "infra", "security", "test"},
		},
		{
			name:      "forced detection loads full catalog",
			cond:      Condition{ForcedDetection: true, Reason: "x"},
			wantLevel: LevelDetectionFailure,
			wantIDs:   []string{"core", "db", "docs", "git", "infra", "security", "test"},
		},
		{
			name:      "all signals failed loads full catalog",
			cond:      Condition{AllSignalsFailed: true},
			wantLevel: LevelDetectionFailure,
			wantIDs:   []string{"core", "db", "docs", "git", "infra", "security", "test"},
		},
		{
			name:      "high confidence is precise",
			cond:      Condition{Scores: scoring.ScoreVector{"git": 0.85, "docs": 0.1}},
			wantLevel: LevelHighConfidence,
			wantIDs:   []string{"git", "core"},
		},
		{
			name: "high max beats ambiguity",
			cond: Condition{Scores: scoring.ScoreVector{"git": 0.85, "test": 0.6}},
			// Two categories above the ambiguity score, but the decisive top
			// score keeps this at L1.
			wantLevel: LevelHighConfidence,
			wantIDs:   []string{"git", "test", "core"},
		},
		{
			name: "multi-domain medium confidence expands rather than discarding",
			cond: Condition{Scores: scoring.ScoreVector{"git": 0.6, "test": 0.6, "db": 0.55}},
			// Several domains above the ambiguity score, but the medium band
			// wins first: the scored selection widens instead of being thrown
			// away for the safe set.
			wantLevel: LevelMediumConfidence,
			wantIDs:   []string{"git", "test", "db", "core"},
		},
		{
			name:      "medium confidence expands",
			cond:      Condition{Scores: scoring.ScoreVector{"git": 0.5, "docs": 0.25, "db": 0.1}},
			wantLevel: LevelMediumConfidence,
			wantIDs:   []string{"git", "docs", "core"},
		},
		{
			name:      "low confidence catch-all",
			cond:      Condition{Scores: scoring.ScoreVector{"git": 0.1}},
			wantLevel: LevelLowConfidence,
			wantIDs:   []string{"git", "core", "test"},
		},
		{
			name:      "empty scores go conservative",
			cond:      Condition{Scores: scoring.ScoreVector{}},
			wantLevel: LevelLowConfidence,
			wantIDs:   []string{"core", "git", "test"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level, ids, rationale := c.Evaluate(tt.cond)
			assert.Equal(t, tt.wantLevel, level)
			assert.Equal(t, tt.wantIDs, ids)
			assert.NotEmpty(t, rationale)
		})
	}
}

func TestFallbackAmbiguityBelowMediumBand(t *testing.T) {
	cfg := testEngineConfig()
	cfg.Fallback.AmbiguityScore = 0.25
	c := NewController(cfg, NewTierEngine(cfg.Categories, cfg.Tiers))

	level, ids, rationale := c.Evaluate(Condition{
		Scores: scoring.ScoreVector{"git": 0.35, "test": 0.3},
	})
	assert.Equal(t, LevelLowConfidence, level)
	assert.Equal(t, []string{"git", "test", "core"}, ids)
	assert.Contains(t, rationale, "ambiguous")
}

func TestFallbackRaisingScoreNeverRemovesCategories(t *testing.T) {
	c := newTestController()

	base := scoring.ScoreVector{"git": 0.5, "docs": 0.25, "db": 0.1}
	_, before, _ := c.Evaluate(Condition{Scores: base})
	require.Equal(t, []string{"git", "docs", "core"}, before)

	raised := scoring.ScoreVector{"git": 0.5, "docs": 0.25, "db": 0.55}
	_, after, _ := c.Evaluate(Condition{Scores: raised})

	for _, id := range before {
		assert.Contains(t, after, id, "raising db must not drop %q", id)
	}
	assert.Contains(t, after, "db")
}

func TestFallbackSafeSetWidensOnEnvironment(t *testing.T) {
	c := newTestController()

	cond := Condition{
		Scores: scoring.ScoreVector{},
		Env: signals.EnvironmentSnapshot{
			FailingTests:  true,
			DirtyWorktree: true,
		},
	}
	level, ids, _ := c.Evaluate(cond)
	require.Equal(t, LevelLowConfidence, level)
	assert.ElementsMatch(t, []string{"core", "git", "test", "docs"}, ids)
}

func TestFallbackExpansionIsBounded(t *testing.T) {
	cfg := testEngineConfig()
	cfg.Fallback.ExpansionLimit = 2
	c := NewController(cfg, NewTierEngine(cfg.Categories, cfg.Tiers))

	// git is selected by tier; docs, db, security and infra are expansion
	// candidates above the floor, but only two may join.
	cond := Condition{Scores: scoring.ScoreVector{
		"git":      0.5,
		"docs":     0.28,
		"db":       0.27,
		"security": 0.26,
		"infra":    0.25,
	}}
	level, ids, _ := c.Evaluate(cond)
	require.Equal(t, LevelMediumConfidence, level)
	assert.Equal(t, []string{"git", "docs", "db", "core"}, ids)
}

func TestFallbackShedTier3(t *testing.T) {
	c := newTestController()

	cond := Condition{
		Scores:    scoring.ScoreVector{"git": 0.85, "db": 0.9},
		ShedTier3: true,
	}
	level, ids, rationale := c.Evaluate(cond)
	assert.Equal(t, LevelHighConfidence, level)
	assert.Equal(t, []string{"git", "core"}, ids)
	assert.Contains(t, rationale, "tier-3 shed")
}

func TestFallbackLevelStrings(t *testing.T) {
	assert.Equal(t, "L1", LevelHighConfidence.String())
	assert.Equal(t, "L5", LevelEmergency.String())
	assert.False(t, LevelLowConfidence.Degraded())
	assert.True(t, LevelDetectionFailure.Degraded())
	assert.True(t, LevelEmergency.Degraded())
}
