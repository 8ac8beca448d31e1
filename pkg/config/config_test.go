package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *EngineConfig {
	cfg := &EngineConfig{
		Categories: []Category{
			{ID: "core", Tier: 1, DefaultSafe: true},
			{ID: "git", Tier: 2, Keywords: KeywordTiers{Direct: []string{"git"}}},
			{ID: "db", Tier: 3},
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestApplyDefaults(t *testing.T) {
	cfg := &EngineConfig{}
	cfg.ApplyDefaults()

	assert.Equal(t, 50, cfg.LatencyBudgetMs)
	assert.Equal(t, 15, cfg.Signals.ExtractorTimeoutMs)
	assert.InDelta(t, 0.9, cfg.Signals.DirectConfidence, 1e-9)
	assert.InDelta(t, 0.7, cfg.Signals.ContextualConfidence, 1e-9)
	assert.InDelta(t, 0.5, cfg.Signals.ActionConfidence, 1e-9)
	assert.InDelta(t, 0.6, cfg.Signals.HistoryBoostCap, 1e-9)
	assert.InDelta(t, 0.3, cfg.Tiers.Tier2Threshold, 1e-9)
	assert.InDelta(t, 0.6, cfg.Tiers.Tier3Threshold, 1e-9)
	assert.InDelta(t, 0.7, cfg.Tiers.InexperiencedFactor, 1e-9)
	assert.InDelta(t, 0.8, cfg.Tiers.ComplexityFactor, 1e-9)
	assert.InDelta(t, 0.8, cfg.Fallback.HighConfidence, 1e-9)
	assert.InDelta(t, 0.4, cfg.Fallback.MediumConfidence, 1e-9)
	assert.Equal(t, 5, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 5000, cfg.Breaker.CooldownMs)
	assert.Equal(t, 300000, cfg.Breaker.MaxCooldownMs)
	assert.Equal(t, 100, cfg.Monitor.WindowSize)
	assert.Equal(t, "lru", cfg.Cache.EvictionPolicy)
	assert.Equal(t, "1m", cfg.Learning.BatchInterval)

	// Explicit values survive.
	cfg2 := &EngineConfig{LatencyBudgetMs: 100}
	cfg2.ApplyDefaults()
	assert.Equal(t, 100, cfg2.LatencyBudgetMs)
}

func TestValidateAcceptsValidConfig(t *testing.T) {
	require.NoError(t, Validate(validConfig()))
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*EngineConfig)
		wantErr string
	}{
		{
			"empty catalog",
			func(c *EngineConfig) { c.Categories = nil },
			"no categories",
		},
		{
			"empty id",
			func(c *EngineConfig) { c.Categories[1].ID = "  " },
			"empty id",
		},
		{
			"duplicate id",
			func(c *EngineConfig) { c.Categories[1].ID = "core" },
			"duplicate",
		},
		{
			"invalid tier",
			func(c *EngineConfig) { c.Categories[1].Tier = 4 },
			"invalid tier",
		},
		{
			"no tier-1",
			func(c *EngineConfig) { c.Categories[0].Tier = 2 },
			"no tier-1",
		},
		{
			"no safe default",
			func(c *EngineConfig) { c.Categories[0].DefaultSafe = false },
			"no default-safe",
		},
		{
			"unknown clue kind",
			func(c *EngineConfig) {
				c.Signals.ContextClues = []ContextClue{{Kind: "smell", Pattern: "x", Category: "git", Confidence: 0.5}}
			},
			"unknown kind",
		},
		{
			"clue references unknown category",
			func(c *EngineConfig) {
				c.Signals.ContextClues = []ContextClue{{Kind: "error", Pattern: "x", Category: "ghost", Confidence: 0.5}}
			},
			"unknown category",
		},
		{
			"clue confidence out of range",
			func(c *EngineConfig) {
				c.Signals.ContextClues = []ContextClue{{Kind: "error", Pattern: "x", Category: "git", Confidence: 1.5}}
			},
			"outside (0,1]",
		},
		{
			"unknown environment flag",
			func(c *EngineConfig) {
				c.Signals.EnvironmentRules = []EnvironmentRule{{Flag: "haunted", Category: "git", Confidence: 0.5}}
			},
			"unknown flag",
		},
		{
			"calibration not increasing",
			func(c *EngineConfig) {
				c.Scoring.Calibration = map[string][]CalibrationPoint{
					"git": {{In: 0.5, Out: 0.5}, {In: 0.5, Out: 0.6}},
				}
			},
			"strictly increasing",
		},
		{
			"tier thresholds inverted",
			func(c *EngineConfig) { c.Tiers.Tier2Threshold = 0.7 },
			"tier2_threshold",
		},
		{
			"fallback thresholds inverted",
			func(c *EngineConfig) { c.Fallback.MediumConfidence = 0.9 },
			"medium_confidence",
		},
		{
			"unknown fallback default",
			func(c *EngineConfig) { c.Fallback.ErrorContextDefaults = []string{"ghost"} },
			"error_context_defaults",
		},
		{
			"unknown eviction policy",
			func(c *EngineConfig) { c.Cache.EvictionPolicy = "random" },
			"eviction policy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `
categories:
  - id: core
    tier: 1
    default_safe: true
  - id: git
    tier: 2
    keywords:
      direct: [git, branch]
signals:
  extractor_timeout_ms: 20
latency_budget_ms: 75
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Parse(path)
	require.NoError(t, err)

	assert.Len(t, cfg.Categories, 2)
	assert.Equal(t, 20, cfg.Signals.ExtractorTimeoutMs)
	assert.Equal(t, 75, cfg.LatencyBudgetMs)
	// Defaults fill the rest.
	assert.InDelta(t, 0.9, cfg.Signals.DirectConfidence, 1e-9)
	assert.Equal(t, []string{"core"}, cfg.TierOneIDs())
	assert.Equal(t, []string{"core"}, cfg.SafeDefaultIDs())
	assert.Equal(t, []string{"core", "git"}, cfg.AllIDs())
	require.NotNil(t, cfg.CategoryByID("git"))
	assert.Nil(t, cfg.CategoryByID("ghost"))
}

func TestParseRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("categories: []\n"), 0o644))

	_, err := Parse(path)
	assert.Error(t, err)
}

func TestParseMissingFile(t *testing.T) {
	_, err := Parse(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestReplaceAndGet(t *testing.T) {
	cfg := validConfig()
	Replace(cfg)
	assert.Same(t, cfg, Get())
}
