// Package config defines the engine configuration schema: the category
// catalog, signal and scoring knobs, tier thresholds, fallback behavior,
// circuit breaker, performance monitor, learning, cache and notification
// settings. Every numeric constant of the pipeline is a config default here,
// never a hard-coded literal in the decision path.
package config

// EngineConfig is the root configuration structure loaded from YAML.
type EngineConfig struct {
	// Categories is the static capability catalog, loaded once at startup
	// and read-only at runtime.
	Categories []Category `yaml:"categories" json:"categories"`

	Signals  SignalConfig   `yaml:"signals,omitempty" json:"signals,omitempty"`
	Scoring  ScoringConfig  `yaml:"scoring,omitempty" json:"scoring,omitempty"`
	Tiers    TierConfig     `yaml:"tiers,omitempty" json:"tiers,omitempty"`
	Fallback FallbackConfig `yaml:"fallback,omitempty" json:"fallback,omitempty"`
	Breaker  BreakerConfig  `yaml:"breaker,omitempty" json:"breaker,omitempty"`
	Monitor  MonitorConfig  `yaml:"monitor,omitempty" json:"monitor,omitempty"`
	Recovery RecoveryConfig `yaml:"recovery,omitempty" json:"recovery,omitempty"`
	Learning LearningConfig `yaml:"learning,omitempty" json:"learning,omitempty"`
	Cache    CacheConfig    `yaml:"cache,omitempty" json:"cache,omitempty"`
	Notify   NotifyConfig   `yaml:"notifications,omitempty" json:"notifications,omitempty"`

	// LatencyBudgetMs is the hard end-to-end decision budget. A breach
	// self-escalates the decision to L4 rather than returning late.
	// Default: 50.
	LatencyBudgetMs int `yaml:"latency_budget_ms,omitempty" json:"latency_budget_ms,omitempty"`
}

// Category describes one optional capability that may be loaded or withheld
// per request.
type Category struct {
	// ID is the unique category identifier (e.g. "git", "test", "debug").
	ID string `yaml:"id" json:"id"`

	// Description is a human-readable summary used in rationales.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Tier controls loading: 1 = always, 2 = medium threshold, 3 = high threshold.
	Tier int `yaml:"tier" json:"tier"`

	// DefaultSafe marks the category as part of the conservative fallback set.
	DefaultSafe bool `yaml:"default_safe,omitempty" json:"default_safe,omitempty"`

	// Keywords configures the keyword matcher for this category.
	Keywords KeywordTiers `yaml:"keywords,omitempty" json:"keywords,omitempty"`
}

// KeywordTiers holds the three keyword classes of the keyword matcher.
// Direct keywords name the capability itself, contextual keywords appear in
// related work, action keywords are verbs that usually imply it.
type KeywordTiers struct {
	Direct     []string `yaml:"direct,omitempty" json:"direct,omitempty"`
	Contextual []string `yaml:"contextual,omitempty" json:"contextual,omitempty"`
	Action     []string `yaml:"action,omitempty" json:"action,omitempty"`
}

// SignalConfig configures the signal extractors.
type SignalConfig struct {
	// ExtractorTimeoutMs is the independent latency budget per extractor.
	// A timed-out extractor contributes an empty confidence map. Default: 15.
	ExtractorTimeoutMs int `yaml:"extractor_timeout_ms,omitempty" json:"extractor_timeout_ms,omitempty"`

	// Keyword base confidences per keyword class. Defaults: 0.9 / 0.7 / 0.5.
	DirectConfidence     float64 `yaml:"direct_confidence,omitempty" json:"direct_confidence,omitempty"`
	ContextualConfidence float64 `yaml:"contextual_confidence,omitempty" json:"contextual_confidence,omitempty"`
	ActionConfidence     float64 `yaml:"action_confidence,omitempty" json:"action_confidence,omitempty"`

	// ContextClues maps query/environment patterns to per-category confidences.
	ContextClues []ContextClue `yaml:"context_clues,omitempty" json:"context_clues,omitempty"`

	// EnvironmentRules map environment snapshot flags to per-category
	// confidences.
	EnvironmentRules []EnvironmentRule `yaml:"environment_rules,omitempty" json:"environment_rules,omitempty"`

	// HistoryBoostCap bounds the session-history recency boost. Default: 0.6.
	HistoryBoostCap float64 `yaml:"history_boost_cap,omitempty" json:"history_boost_cap,omitempty"`

	// ContinuationSimilarity is the token-overlap threshold above which a
	// query is treated as a continuation of a recent one. Default: 0.5.
	ContinuationSimilarity float64 `yaml:"continuation_similarity,omitempty" json:"continuation_similarity,omitempty"`
}

// ContextClue binds a detected pattern (file extension, error token,
// performance token) to a fixed confidence for one category.
type ContextClue struct {
	// Kind is "extension", "error" or "performance".
	Kind string `yaml:"kind" json:"kind"`

	// Pattern is matched case-insensitively as a whole token
	// (e.g. ".sql", "segfault", "slow").
	Pattern string `yaml:"pattern" json:"pattern"`

	Category   string  `yaml:"category" json:"category"`
	Confidence float64 `yaml:"confidence" json:"confidence"`
}

// EnvironmentRule binds one environment snapshot flag to a fixed confidence
// for one category.
type EnvironmentRule struct {
	// Flag is one of: dirty_worktree, merge_conflict, failing_tests,
	// has_test_dir, has_security_dir, has_infra_dir.
	Flag string `yaml:"flag" json:"flag"`

	Category   string  `yaml:"category" json:"category"`
	Confidence float64 `yaml:"confidence" json:"confidence"`
}

// ScoringConfig configures the confidence scorer's initial (pre-learning)
// weights, modifiers and calibration curves.
type ScoringConfig struct {
	// SignalWeights are the global per-signal-type weights. Missing entries
	// default to 1.0. Keys: keyword, context, environment, history.
	SignalWeights map[string]float64 `yaml:"signal_weights,omitempty" json:"signal_weights,omitempty"`

	// Modifiers are fixed category×signal multipliers applied on top of the
	// global signal weight.
	Modifiers []SignalModifier `yaml:"modifiers,omitempty" json:"modifiers,omitempty"`

	// Calibration holds per-category piecewise calibration curves. A missing
	// curve means identity.
	Calibration map[string][]CalibrationPoint `yaml:"calibration,omitempty" json:"calibration,omitempty"`

	// ComplexityCompression pulls scores toward the tier-2 threshold when the
	// caller marks the query high-complexity (0 = full compression,
	// 1 = none). Default: 0.85.
	ComplexityCompression float64 `yaml:"complexity_compression,omitempty" json:"complexity_compression,omitempty"`
}

// SignalModifier is a fixed multiplier for one (category, signal) pair.
type SignalModifier struct {
	Category string  `yaml:"category" json:"category"`
	Signal   string  `yaml:"signal" json:"signal"`
	Factor   float64 `yaml:"factor" json:"factor"`
}

// CalibrationPoint is one knot of a piecewise-linear calibration curve.
// Points must be sorted by In; the curve maps raw fused score to calibrated
// score by linear interpolation.
type CalibrationPoint struct {
	In  float64 `yaml:"in" json:"in"`
	Out float64 `yaml:"out" json:"out"`
}

// TierConfig configures the tier decision engine.
type TierConfig struct {
	// Tier2Threshold gates tier-2 categories. Default: 0.3.
	Tier2Threshold float64 `yaml:"tier2_threshold,omitempty" json:"tier2_threshold,omitempty"`

	// Tier3Threshold gates tier-3 categories. Default: 0.6.
	Tier3Threshold float64 `yaml:"tier3_threshold,omitempty" json:"tier3_threshold,omitempty"`

	// InexperiencedFactor scales thresholds down for inexperienced
	// requesters. Default: 0.7.
	InexperiencedFactor float64 `yaml:"inexperienced_factor,omitempty" json:"inexperienced_factor,omitempty"`

	// ComplexityFactor scales thresholds down for high-complexity queries.
	// Default: 0.8.
	ComplexityFactor float64 `yaml:"complexity_factor,omitempty" json:"complexity_factor,omitempty"`
}

// FallbackConfig configures the fallback chain controller.
type FallbackConfig struct {
	// HighConfidence is the L1 floor on max(score). Default: 0.8.
	HighConfidence float64 `yaml:"high_confidence,omitempty" json:"high_confidence,omitempty"`

	// MediumConfidence is the L2 floor on max(score). Default: 0.4.
	MediumConfidence float64 `yaml:"medium_confidence,omitempty" json:"medium_confidence,omitempty"`

	// ExpansionLimit caps the extra categories L2 may add. Default: 3.
	ExpansionLimit int `yaml:"expansion_limit,omitempty" json:"expansion_limit,omitempty"`

	// ExpansionFloor is the minimum score for an L2 expansion candidate.
	// Default: 0.2.
	ExpansionFloor float64 `yaml:"expansion_floor,omitempty" json:"expansion_floor,omitempty"`

	// AmbiguityScore and AmbiguityCount define the multi-domain L3 trigger:
	// at least AmbiguityCount categories scoring above AmbiguityScore.
	// Defaults: 0.5 and 2.
	AmbiguityScore float64 `yaml:"ambiguity_score,omitempty" json:"ambiguity_score,omitempty"`
	AmbiguityCount int     `yaml:"ambiguity_count,omitempty" json:"ambiguity_count,omitempty"`

	// ErrorContextDefaults are extra L3 categories loaded when the
	// environment shows recent errors or failing tests.
	ErrorContextDefaults []string `yaml:"error_context_defaults,omitempty" json:"error_context_defaults,omitempty"`

	// DirtyTreeDefaults are extra L3 categories loaded when the worktree is
	// dirty or conflicted.
	DirtyTreeDefaults []string `yaml:"dirty_tree_defaults,omitempty" json:"dirty_tree_defaults,omitempty"`
}

// BreakerConfig configures the circuit breaker.
type BreakerConfig struct {
	// WindowSize is the number of recent outcomes kept per evaluation window.
	// Default: 20.
	WindowSize int `yaml:"window_size,omitempty" json:"window_size,omitempty"`

	// FailureThreshold opens the breaker when recent failures reach it.
	// Default: 5.
	FailureThreshold int `yaml:"failure_threshold,omitempty" json:"failure_threshold,omitempty"`

	// ClusterRatio tightens the adaptive threshold by one when a single
	// error kind makes up at least this share of recent failures.
	// Default: 0.6.
	ClusterRatio float64 `yaml:"cluster_ratio,omitempty" json:"cluster_ratio,omitempty"`

	// LoosenAfter raises the adaptive threshold back toward the configured
	// one after this many consecutive successes. Default: 10.
	LoosenAfter int `yaml:"loosen_after,omitempty" json:"loosen_after,omitempty"`

	// CooldownMs is the initial OPEN cooldown before HALF_OPEN. Default: 5000.
	CooldownMs int `yaml:"cooldown_ms,omitempty" json:"cooldown_ms,omitempty"`

	// BackoffFactor multiplies the cooldown on re-open. Default: 2.0.
	BackoffFactor float64 `yaml:"backoff_factor,omitempty" json:"backoff_factor,omitempty"`

	// MaxCooldownMs caps the exponential cooldown. Default: 300000.
	MaxCooldownMs int `yaml:"max_cooldown_ms,omitempty" json:"max_cooldown_ms,omitempty"`

	// HalfOpenProbes is the number of evaluations HALF_OPEN admits. Default: 3.
	HalfOpenProbes int `yaml:"half_open_probes,omitempty" json:"half_open_probes,omitempty"`

	// CloseAfter is the consecutive successes required to close from
	// HALF_OPEN. Default: 3.
	CloseAfter int `yaml:"close_after,omitempty" json:"close_after,omitempty"`
}

// MonitorConfig configures the performance monitor.
type MonitorConfig struct {
	// WindowSize is the number of samples in the rolling window. Default: 100.
	WindowSize int `yaml:"window_size,omitempty" json:"window_size,omitempty"`

	// P95ThresholdMs flags degradation when rolling p95 exceeds it.
	// Default: 5000.
	P95ThresholdMs int `yaml:"p95_threshold_ms,omitempty" json:"p95_threshold_ms,omitempty"`

	// ErrorRateThreshold flags degradation when the rolling error rate
	// exceeds it. Default: 0.10.
	ErrorRateThreshold float64 `yaml:"error_rate_threshold,omitempty" json:"error_rate_threshold,omitempty"`

	// MemoryThresholdBytes flags degradation when the rolling memory
	// estimate exceeds it. Default: 10485760 (10MB).
	MemoryThresholdBytes int64 `yaml:"memory_threshold_bytes,omitempty" json:"memory_threshold_bytes,omitempty"`

	// BreachWindows is the number of consecutive breaching checks before
	// degradation is declared sustained. Default: 3.
	BreachWindows int `yaml:"breach_windows,omitempty" json:"breach_windows,omitempty"`
}

// RecoveryConfig configures the recovery manager.
type RecoveryConfig struct {
	// MaxRetries bounds timeout-kind retries. Default: 3.
	MaxRetries int `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`

	// BaseBackoffMs is the first retry delay; later retries double it with
	// jitter. Default: 10.
	BaseBackoffMs int `yaml:"base_backoff_ms,omitempty" json:"base_backoff_ms,omitempty"`

	// MaxTotalMs bounds the whole recovery attempt so the latency budget is
	// respected. Default: 900.
	MaxTotalMs int `yaml:"max_total_ms,omitempty" json:"max_total_ms,omitempty"`

	// OverloadPerSecond and OverloadBurst configure the throttle applied
	// under SystemOverload. Defaults: 100 and 200.
	OverloadPerSecond float64 `yaml:"overload_per_second,omitempty" json:"overload_per_second,omitempty"`
	OverloadBurst     int     `yaml:"overload_burst,omitempty" json:"overload_burst,omitempty"`
}

// LearningConfig configures the offline learning collector.
type LearningConfig struct {
	// Enabled turns the background retuner on. Record collection is always on.
	Enabled bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`

	// BufferSize bounds the outcome ring buffer. Default: 1024.
	BufferSize int `yaml:"buffer_size,omitempty" json:"buffer_size,omitempty"`

	// BatchInterval is how often the retuner runs (e.g. "1m"). Default: "1m".
	BatchInterval string `yaml:"batch_interval,omitempty" json:"batch_interval,omitempty"`

	// MinBatch is the minimum records required before retuning. Default: 20.
	MinBatch int `yaml:"min_batch,omitempty" json:"min_batch,omitempty"`

	// MaxWeightDelta caps the per-batch change of any signal weight.
	// Default: 0.05.
	MaxWeightDelta float64 `yaml:"max_weight_delta,omitempty" json:"max_weight_delta,omitempty"`

	// MaxCalibrationDelta caps the per-batch change of any calibration knot.
	// Default: 0.02.
	MaxCalibrationDelta float64 `yaml:"max_calibration_delta,omitempty" json:"max_calibration_delta,omitempty"`
}

// CacheConfig configures the optional decision cache.
type CacheConfig struct {
	Enabled bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`

	// TTLSeconds is the entry lifetime. Default: 3600.
	TTLSeconds int `yaml:"ttl_seconds,omitempty" json:"ttl_seconds,omitempty"`

	// MaxEntries bounds the cache; the eviction policy picks victims.
	// Default: 4096.
	MaxEntries int `yaml:"max_entries,omitempty" json:"max_entries,omitempty"`

	// EvictionPolicy is "lru" (default), "fifo" or "lfu".
	EvictionPolicy string `yaml:"eviction_policy,omitempty" json:"eviction_policy,omitempty"`
}

// NotifyConfig configures the user-facing notification emitter.
type NotifyConfig struct {
	Enabled bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`

	// Per-severity cooldowns in seconds. Defaults: 30 / 10 / 0.
	InfoCooldownSeconds     int `yaml:"info_cooldown_seconds,omitempty" json:"info_cooldown_seconds,omitempty"`
	WarningCooldownSeconds  int `yaml:"warning_cooldown_seconds,omitempty" json:"warning_cooldown_seconds,omitempty"`
	CriticalCooldownSeconds int `yaml:"critical_cooldown_seconds,omitempty" json:"critical_cooldown_seconds,omitempty"`

	// RatePerMinute is a global cap across all notifications. Default: 30.
	RatePerMinute int `yaml:"rate_per_minute,omitempty" json:"rate_per_minute,omitempty"`
}

// ApplyDefaults fills every unset knob with its documented default.
func (c *EngineConfig) ApplyDefaults() {
	if c.LatencyBudgetMs <= 0 {
		c.LatencyBudgetMs = 50
	}

	if c.Signals.ExtractorTimeoutMs <= 0 {
		c.Signals.ExtractorTimeoutMs = 15
	}
	if c.Signals.DirectConfidence <= 0 {
		c.Signals.DirectConfidence = 0.9
	}
	if c.Signals.ContextualConfidence <= 0 {
		c.Signals.ContextualConfidence = 0.7
	}
	if c.Signals.ActionConfidence <= 0 {
		c.Signals.ActionConfidence = 0.5
	}
	if c.Signals.HistoryBoostCap <= 0 {
		c.Signals.HistoryBoostCap = 0.6
	}
	if c.Signals.ContinuationSimilarity <= 0 {
		c.Signals.ContinuationSimilarity = 0.5
	}

	if c.Scoring.ComplexityCompression <= 0 {
		c.Scoring.ComplexityCompression = 0.85
	}

	if c.Tiers.Tier2Threshold <= 0 {
		c.Tiers.Tier2Threshold = 0.3
	}
	if c.Tiers.Tier3Threshold <= 0 {
		c.Tiers.Tier3Threshold = 0.6
	}
	if c.Tiers.InexperiencedFactor <= 0 {
		c.Tiers.InexperiencedFactor = 0.7
	}
	if c.Tiers.ComplexityFactor <= 0 {
		c.Tiers.ComplexityFactor = 0.8
	}

	if c.Fallback.HighConfidence <= 0 {
		c.Fallback.HighConfidence = 0.8
	}
	if c.Fallback.MediumConfidence <= 0 {
		c.Fallback.MediumConfidence = 0.4
	}
	if c.Fallback.ExpansionLimit <= 0 {
		c.Fallback.ExpansionLimit = 3
	}
	if c.Fallback.ExpansionFloor <= 0 {
		c.Fallback.ExpansionFloor = 0.2
	}
	if c.Fallback.AmbiguityScore <= 0 {
		c.Fallback.AmbiguityScore = 0.5
	}
	if c.Fallback.AmbiguityCount <= 0 {
		c.Fallback.AmbiguityCount = 2
	}

	if c.Breaker.WindowSize <= 0 {
		c.Breaker.WindowSize = 20
	}
	if c.Breaker.FailureThreshold <= 0 {
		c.Breaker.FailureThreshold = 5
	}
	if c.Breaker.ClusterRatio <= 0 {
		c.Breaker.ClusterRatio = 0.6
	}
	if c.Breaker.LoosenAfter <= 0 {
		c.Breaker.LoosenAfter = 10
	}
	if c.Breaker.CooldownMs <= 0 {
		c.Breaker.CooldownMs = 5000
	}
	if c.Breaker.BackoffFactor <= 1 {
		c.Breaker.BackoffFactor = 2.0
	}
	if c.Breaker.MaxCooldownMs <= 0 {
		c.Breaker.MaxCooldownMs = 300000
	}
	if c.Breaker.HalfOpenProbes <= 0 {
		c.Breaker.HalfOpenProbes = 3
	}
	if c.Breaker.CloseAfter <= 0 {
		c.Breaker.CloseAfter = 3
	}

	if c.Monitor.WindowSize <= 0 {
		c.Monitor.WindowSize = 100
	}
	if c.Monitor.P95ThresholdMs <= 0 {
		c.Monitor.P95ThresholdMs = 5000
	}
	if c.Monitor.ErrorRateThreshold <= 0 {
		c.Monitor.ErrorRateThreshold = 0.10
	}
	if c.Monitor.MemoryThresholdBytes <= 0 {
		c.Monitor.MemoryThresholdBytes = 10 * 1024 * 1024
	}
	if c.Monitor.BreachWindows <= 0 {
		c.Monitor.BreachWindows = 3
	}

	if c.Recovery.MaxRetries <= 0 {
		c.Recovery.MaxRetries = 3
	}
	if c.Recovery.BaseBackoffMs <= 0 {
		c.Recovery.BaseBackoffMs = 10
	}
	if c.Recovery.MaxTotalMs <= 0 {
		c.Recovery.MaxTotalMs = 900
	}
	if c.Recovery.OverloadPerSecond <= 0 {
		c.Recovery.OverloadPerSecond = 100
	}
	if c.Recovery.OverloadBurst <= 0 {
		c.Recovery.OverloadBurst = 200
	}

	if c.Learning.BufferSize <= 0 {
		c.Learning.BufferSize = 1024
	}
	if c.Learning.BatchInterval == "" {
		c.Learning.BatchInterval = "1m"
	}
	if c.Learning.MinBatch <= 0 {
		c.Learning.MinBatch = 20
	}
	if c.Learning.MaxWeightDelta <= 0 {
		c.Learning.MaxWeightDelta = 0.05
	}
	if c.Learning.MaxCalibrationDelta <= 0 {
		c.Learning.MaxCalibrationDelta = 0.02
	}

	if c.Cache.TTLSeconds <= 0 {
		c.Cache.TTLSeconds = 3600
	}
	if c.Cache.MaxEntries <= 0 {
		c.Cache.MaxEntries = 4096
	}
	if c.Cache.EvictionPolicy == "" {
		c.Cache.EvictionPolicy = "lru"
	}

	if c.Notify.InfoCooldownSeconds <= 0 {
		c.Notify.InfoCooldownSeconds = 30
	}
	if c.Notify.WarningCooldownSeconds <= 0 {
		c.Notify.WarningCooldownSeconds = 10
	}
	if c.Notify.RatePerMinute <= 0 {
		c.Notify.RatePerMinute = 30
	}
}

// CategoryByID returns the category with the given ID, or nil.
func (c *EngineConfig) CategoryByID(id string) *Category {
	for i := range c.Categories {
		if c.Categories[i].ID == id {
			return &c.Categories[i]
		}
	}
	return nil
}

// TierOneIDs returns the IDs of all tier-1 (always loaded) categories.
func (c *EngineConfig) TierOneIDs() []string {
	var ids []string
	for _, cat := range c.Categories {
		if cat.Tier == 1 {
			ids = append(ids, cat.ID)
		}
	}
	return ids
}

// SafeDefaultIDs returns the IDs of all default-safe categories.
func (c *EngineConfig) SafeDefaultIDs() []string {
	var ids []string
	for _, cat := range c.Categories {
		if cat.DefaultSafe {
			ids = append(ids, cat.ID)
		}
	}
	return ids
}

// AllIDs returns every category ID in catalog order.
func (c *EngineConfig) AllIDs() []string {
	ids := make([]string, 0, len(c.Categories))
	for _, cat := range c.Categories {
		ids = append(ids, cat.ID)
	}
	return ids
}
