package decision

import (
	"strings"
	"sync"
	"time"

	"github.com/capgate-project/capgate/pkg/breaker"
	"github.com/capgate-project/capgate/pkg/cache"
	"github.com/capgate-project/capgate/pkg/config"
	"github.com/capgate-project/capgate/pkg/learning"
	"github.com/capgate-project/capgate/pkg/monitor"
	"github.com/capgate-project/capgate/pkg/notify"
	"github.com/capgate-project/capgate/pkg/observability/logging"
	"github.com/capgate-project/capgate/pkg/observability/metrics"
	"github.com/capgate-project/capgate/pkg/recovery"
	"github.com/capgate-project/capgate/pkg/scoring"
	"github.com/capgate-project/capgate/pkg/signals"
)

// Engine orchestrates one full evaluation: admission, signal extraction,
// fusion, tier selection, the fallback chain and outcome bookkeeping.
// Decide never returns an error; every failure mode maps to a level.
type Engine struct {
	cfg      *config.EngineConfig
	runner   *signals.Runner
	scorer   *scoring.Scorer
	tiers    *TierEngine
	fallback *Controller
	breaker  *breaker.Breaker
	monitor  *monitor.Monitor
	recovery *recovery.Manager
	learning *learning.Collector
	notifier *notify.Emitter
	cache    *cache.DecisionCache

	catalogVersion string
	budget         time.Duration

	levelMu   sync.Mutex
	lastLevel FallbackLevel
}

type options struct {
	sink        notify.Sink
	breakerOpts []breaker.Option
	runner      *signals.Runner
}

// Option configures an Engine.
type Option func(*options)

// WithNotificationSink routes user-facing notifications to sink.
func WithNotificationSink(sink notify.Sink) Option {
	return func(o *options) { o.sink = sink }
}

// WithBreakerOptions passes options to the engine's breaker. Used by tests
// to inject a clock.
func WithBreakerOptions(opts ...breaker.Option) Option {
	return func(o *options) { o.breakerOpts = append(o.breakerOpts, opts...) }
}

// WithRunner replaces the signal runner. Used by tests to inject failing or
// slow extractors.
func WithRunner(r *signals.Runner) Option {
	return func(o *options) { o.runner = r }
}

// New builds an engine from validated configuration.
func New(cfg *config.EngineConfig, opts ...Option) (*Engine, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	runner := o.runner
	if runner == nil {
		var err error
		runner, err = signals.NewRunner(cfg)
		if err != nil {
			return nil, err
		}
	}

	store := scoring.NewStore(scoring.SnapshotFromConfig(cfg.Scoring))
	tiers := NewTierEngine(cfg.Categories, cfg.Tiers)

	e := &Engine{
		cfg:            cfg,
		runner:         runner,
		scorer:         scoring.NewScorer(store, cfg.Scoring, cfg.Tiers),
		tiers:          tiers,
		breaker:        breaker.New(cfg.Breaker, o.breakerOpts...),
		monitor:        monitor.New(cfg.Monitor),
		recovery:       recovery.NewManager(cfg.Recovery),
		learning:       learning.NewCollector(cfg.Learning, store),
		notifier:       notify.NewEmitter(cfg.Notify, o.sink),
		cache:          cache.New(cfg.Cache),
		catalogVersion: strings.Join(cfg.AllIDs(), ","),
		budget:         time.Duration(cfg.LatencyBudgetMs) * time.Millisecond,
		lastLevel:      LevelHighConfidence,
	}
	e.fallback = NewController(cfg, tiers)

	metrics.CategoriesLoadedGauge.Set(0)
	logging.Infof("Decision engine ready: %d categories, budget=%v, cache=%v, learning=%v",
		len(cfg.Categories), e.budget, cfg.Cache.Enabled, cfg.Learning.Enabled)
	return e, nil
}

// Start launches the background learning loop.
func (e *Engine) Start() {
	e.learning.Start()
}

// Stop stops background work.
func (e *Engine) Stop() {
	e.learning.Stop()
}

// Decide evaluates one request and always returns a usable decision.
func (e *Engine) Decide(req *signals.Request) *Decision {
	start := time.Now()

	phase, allowed := e.breaker.Gate()
	if !allowed {
		return e.forced(start, req, Condition{
			Env:             req.Environment,
			ForcedEmergency: true,
			Reason:          "circuit breaker open",
		}, "", false)
	}

	if !e.recovery.Admit() {
		e.recovery.Run(recovery.KindSystemOverload, nil)
		return e.forced(start, req, Condition{
			Env:             req.Environment,
			ForcedDetection: true,
			Reason:          "system overload, load shed",
		}, recovery.KindSystemOverload, true)
	}

	// The cache is bypassed while HALF_OPEN: a probe must exercise the full
	// pipeline so the breaker records a real outcome, otherwise the probe
	// budget drains on cache hits and the breaker can never close.
	var key string
	if e.cache.IsEnabled() && phase == breaker.Closed {
		key = cache.Fingerprint(req, e.catalogVersion, e.scorer.Store().Current().Version, phase.String())
		if v, ok := e.cache.Get(key); ok {
			if cached, ok := v.(*Decision); ok {
				out := *cached
				out.Cached = true
				out.Latency = time.Since(start)
				return &out
			}
		}
	}

	if e.monitor.Degraded() {
		// This evaluation never runs the pipeline, so an admitted probe slot
		// is handed back rather than left unresolved.
		e.breaker.Release()
		return e.forced(start, req, Condition{
			Env:             req.Environment,
			ForcedEmergency: true,
			Reason:          "sustained performance degradation",
		}, "", false)
	}

	results := e.runner.Run(req)
	cond := Condition{
		Env:            req.Environment,
		Inexperienced:  req.Inexperienced,
		HighComplexity: req.HighComplexity,
	}
	var failKind recovery.Kind

	if signals.AllFailed(results) {
		kind := classifyResults(results)
		action := e.recovery.Run(kind, func() bool {
			results = e.runner.Run(req)
			return !signals.AllFailed(results)
		})
		switch action {
		case recovery.ActionRecovered:
			// Retried extraction produced usable signals; continue normally.
		case recovery.ActionEscalateEmergency:
			cond.ForcedEmergency = true
			cond.Reason = string(kind)
			failKind = kind
		case recovery.ActionShedTier3:
			// The retried extraction succeeded under memory pressure; the
			// scored pipeline continues with tier-3 evaluation shed.
			cond.ShedTier3 = true
			failKind = kind
		default:
			cond.ForcedDetection = true
			cond.Reason = string(kind)
			failKind = kind
		}
	}

	cond.Scores = e.scorer.Fuse(results, req.HighComplexity)

	// A budget breach means the answer is already late; a precise selection
	// is worth less than a fast, generous one.
	if !cond.ForcedEmergency && !cond.ForcedDetection && time.Since(start) > e.budget {
		cond.ForcedDetection = true
		cond.Reason = "latency budget exceeded"
		failKind = recovery.KindTimeout
	}

	level, ids, rationale := e.fallback.Evaluate(cond)
	d := &Decision{
		RequestID:  learning.NewRecordID(),
		Categories: ids,
		Level:      level,
		LevelName:  level.String(),
		Rationale:  rationale,
		Scores:     cond.Scores,
		Latency:    time.Since(start),
		At:         start,
	}

	e.account(d, true)
	e.learning.Add(&learning.Record{
		ID:         d.RequestID,
		Predicted:  append([]string(nil), ids...),
		Failure:    level == LevelDetectionFailure,
		Level:      level.String(),
		Scores:     cond.Scores.Clone(),
		SignalHits: signalHits(results),
	})
	if failKind != "" {
		e.breaker.RecordFailure(string(failKind))
	} else if level.Degraded() {
		e.breaker.RecordFailure(string(recovery.KindDetectionFailure))
	} else {
		e.breaker.RecordSuccess()
	}

	if key != "" && level <= LevelMediumConfidence {
		stored := *d
		e.cache.Put(key, &stored)
	}
	return d
}

// Observe reports the categories actually used for an earlier decision so
// the learning loop can grade it.
func (e *Engine) Observe(requestID string, used []string) {
	e.learning.Observe(requestID, used)
}

// RollbackLearning republishes the pre-retune parameter snapshot.
func (e *Engine) RollbackLearning() bool {
	return e.learning.Rollback()
}

// RetuneNow triggers one learning batch immediately.
func (e *Engine) RetuneNow() {
	e.learning.Retune()
}

// Status accessors for the API server.

func (e *Engine) BreakerState() breaker.State { return e.breaker.Snapshot() }

func (e *Engine) MonitorAggregates() monitor.Aggregates { return e.monitor.Snapshot() }

func (e *Engine) LearningStats() learning.Stats { return e.learning.Stats() }

func (e *Engine) CacheStats() cache.Stats { return e.cache.Stats() }

func (e *Engine) Config() *config.EngineConfig { return e.cfg }

// forced builds a decision for a condition decided before extraction ran.
// A detection failure still records a failure-flagged learning record; there
// are no signal hits to attribute, but the over-inclusion is graded.
func (e *Engine) forced(start time.Time, req *signals.Request, cond Condition, failKind recovery.Kind, recordBreaker bool) *Decision {
	level, ids, rationale := e.fallback.Evaluate(cond)
	d := &Decision{
		RequestID:  learning.NewRecordID(),
		Categories: ids,
		Level:      level,
		LevelName:  level.String(),
		Rationale:  rationale,
		Latency:    time.Since(start),
		At:         start,
	}
	e.account(d, cond.ForcedDetection)
	if level == LevelDetectionFailure {
		e.learning.Add(&learning.Record{
			ID:        d.RequestID,
			Predicted: append([]string(nil), ids...),
			Failure:   true,
			Level:     level.String(),
		})
	}
	if recordBreaker {
		e.breaker.RecordFailure(string(failKind))
	}
	return d
}

// account records the shared per-decision bookkeeping: metrics, the rolling
// performance window and the level-change notification.
func (e *Engine) account(d *Decision, countAsFailure bool) {
	metrics.RecordDecision(d.LevelName, d.Latency.Seconds(), len(d.Categories))
	e.monitor.Record(d.Latency, estimateBytes(d), countAsFailure && d.Level.Degraded())

	e.levelMu.Lock()
	prev := e.lastLevel
	e.lastLevel = d.Level
	e.levelMu.Unlock()
	e.notifier.LevelChange(prev.String(), d.LevelName)

	logging.Debugf("Decision %s: level=%s categories=%v latency=%v",
		d.RequestID, d.LevelName, d.Categories, d.Latency)
}

// classifyResults maps a fully-failed extraction to an error kind: any
// concrete extractor error wins over plain timeouts.
func classifyResults(results []signals.Result) recovery.Kind {
	for _, res := range results {
		if res.Err != nil {
			return recovery.Classify(res.Err)
		}
	}
	return recovery.KindTimeout
}

// signalHits records which categories each signal fired for, the attribution
// the learning loop retunes weights from.
func signalHits(results []signals.Result) map[string][]string {
	hits := make(map[string][]string, len(results))
	for _, res := range results {
		if res.Failed() || len(res.Confidences) == 0 {
			continue
		}
		ids := make([]string, 0, len(res.Confidences))
		for id := range res.Confidences {
			ids = append(ids, id)
		}
		hits[res.Signal] = ids
	}
	return hits
}

// estimateBytes is a coarse per-decision footprint estimate for the
// performance monitor's memory threshold.
func estimateBytes(d *Decision) int64 {
	n := int64(len(d.Rationale))
	for _, id := range d.Categories {
		n += int64(len(id)) + 16
	}
	n += int64(len(d.Scores)) * 32
	return n + 128
}
