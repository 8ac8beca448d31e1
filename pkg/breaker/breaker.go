// Package breaker implements the pipeline circuit breaker. It tracks recent
// evaluation outcomes per error kind and forces the safest fallback level
// while the pipeline is unhealthy.
//
// Phase transitions are one-directional per evaluation:
//
//	CLOSED    → OPEN       on adaptive threshold breach
//	OPEN      → HALF_OPEN  after the cooldown elapses
//	HALF_OPEN → CLOSED     after CloseAfter consecutive successes
//	HALF_OPEN → OPEN       on any single failure, with increased backoff
package breaker

import (
	"sync"
	"time"

	"github.com/capgate-project/capgate/pkg/config"
	"github.com/capgate-project/capgate/pkg/observability/logging"
	"github.com/capgate-project/capgate/pkg/observability/metrics"
)

// Phase is the breaker health phase.
type Phase int

const (
	Closed Phase = iota
	HalfOpen
	Open
)

func (p Phase) String() string {
	switch p {
	case Closed:
		return "CLOSED"
	case HalfOpen:
		return "HALF_OPEN"
	case Open:
		return "OPEN"
	default:
		return "UNKNOWN"
	}
}

// outcome is one recorded evaluation result.
type outcome struct {
	kind    string // empty on success
	failure bool
	at      time.Time
}

// Breaker is the process-wide breaker state. It is owned by a single engine
// instance and injected where needed; every read-and-possibly-transition
// happens inside one critical section, so no observer sees a torn
// transition.
type Breaker struct {
	mu  sync.Mutex
	cfg config.BreakerConfig

	phase  Phase
	window []outcome

	adaptiveThreshold    int
	consecutiveSuccesses int

	cooldown      time.Duration
	cooldownUntil time.Time

	halfOpenProbes    int
	halfOpenSuccesses int

	lastTransition time.Time

	now func() time.Time
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithClock injects a clock. Used by tests to drive cooldowns.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// New creates a closed breaker.
func New(cfg config.BreakerConfig, opts ...Option) *Breaker {
	b := &Breaker{
		cfg:               cfg,
		phase:             Closed,
		adaptiveThreshold: cfg.FailureThreshold,
		cooldown:          time.Duration(cfg.CooldownMs) * time.Millisecond,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	metrics.RecordBreakerPhase(float64(Closed))
	return b
}

// Gate is called once at the start of each evaluation. It performs the
// OPEN→HALF_OPEN transition when the cooldown has elapsed and admits or
// rejects the evaluation. A rejected evaluation must be answered with the
// emergency fallback, not an error.
func (b *Breaker) Gate() (Phase, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.phase {
	case Closed:
		return Closed, true

	case Open:
		if b.now().Before(b.cooldownUntil) {
			return Open, false
		}
		b.transition(HalfOpen)
		b.halfOpenProbes = 1
		b.halfOpenSuccesses = 0
		return HalfOpen, true

	default: // HalfOpen
		if b.halfOpenProbes >= b.cfg.HalfOpenProbes {
			return HalfOpen, false
		}
		b.halfOpenProbes++
		return HalfOpen, true
	}
}

// Release returns an admitted HALF_OPEN probe slot that produced no outcome.
// Called when an evaluation exits early without exercising the pipeline, so
// the probe budget is not consumed by evaluations that can never record a
// success or failure.
func (b *Breaker) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.phase == HalfOpen && b.halfOpenProbes > 0 {
		b.halfOpenProbes--
	}
}

// RecordSuccess records a successful evaluation.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.append(outcome{at: b.now()})
	b.consecutiveSuccesses++

	switch b.phase {
	case HalfOpen:
		b.halfOpenSuccesses++
		if b.halfOpenSuccesses >= b.cfg.CloseAfter {
			b.transition(Closed)
			b.cooldown = time.Duration(b.cfg.CooldownMs) * time.Millisecond
			b.window = nil
		}
	case Closed:
		// Sustained success loosens a tightened threshold back toward the
		// configured one.
		if b.adaptiveThreshold < b.cfg.FailureThreshold &&
			b.consecutiveSuccesses >= b.cfg.LoosenAfter {
			b.adaptiveThreshold++
			b.consecutiveSuccesses = 0
			logging.Debugf("Breaker threshold loosened to %d", b.adaptiveThreshold)
		}
	}
}

// RecordFailure records a failed evaluation of the given error kind.
func (b *Breaker) RecordFailure(kind string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.append(outcome{kind: kind, failure: true, at: b.now()})
	b.consecutiveSuccesses = 0

	switch b.phase {
	case HalfOpen:
		// A single failure while probing reopens with increased backoff.
		b.reopen()

	case Closed:
		b.tightenIfClustered()
		if b.failureCount() >= b.adaptiveThreshold {
			b.reopen()
		}
	}
}

// State is a read-only snapshot for the status API.
type State struct {
	Phase                string    `json:"phase"`
	FailureCount         int       `json:"failure_count"`
	AdaptiveThreshold    int       `json:"adaptive_threshold"`
	ConsecutiveSuccesses int       `json:"consecutive_successes"`
	CooldownUntil        time.Time `json:"cooldown_until,omitempty"`
	LastTransition       time.Time `json:"last_transition,omitempty"`
}

// Snapshot returns the current breaker state.
func (b *Breaker) Snapshot() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return State{
		Phase:                b.phase.String(),
		FailureCount:         b.failureCount(),
		AdaptiveThreshold:    b.adaptiveThreshold,
		ConsecutiveSuccesses: b.consecutiveSuccesses,
		CooldownUntil:        b.cooldownUntil,
		LastTransition:       b.lastTransition,
	}
}

// reopen moves to OPEN and escalates the cooldown exponentially, capped.
// Callers hold the mutex.
func (b *Breaker) reopen() {
	if b.phase == HalfOpen || b.phase == Open {
		b.cooldown = time.Duration(float64(b.cooldown) * b.cfg.BackoffFactor)
	}
	maxCooldown := time.Duration(b.cfg.MaxCooldownMs) * time.Millisecond
	if b.cooldown > maxCooldown {
		b.cooldown = maxCooldown
	}
	b.cooldownUntil = b.now().Add(b.cooldown)
	b.transition(Open)
}

// tightenIfClustered lowers the adaptive threshold when one error kind
// dominates recent failures. Callers hold the mutex.
func (b *Breaker) tightenIfClustered() {
	counts := make(map[string]int)
	total := 0
	for _, o := range b.window {
		if o.failure {
			counts[o.kind]++
			total++
		}
	}
	if total < 2 {
		return
	}
	for _, n := range counts {
		if float64(n)/float64(total) >= b.cfg.ClusterRatio {
			if b.adaptiveThreshold > 2 {
				b.adaptiveThreshold--
				logging.Debugf("Breaker threshold tightened to %d (clustered failures)", b.adaptiveThreshold)
			}
			return
		}
	}
}

func (b *Breaker) transition(to Phase) {
	if b.phase == to {
		return
	}
	from := b.phase
	b.phase = to
	b.lastTransition = b.now()
	metrics.RecordBreakerTransition(from.String(), to.String())
	metrics.RecordBreakerPhase(float64(to))
	logging.Infof("Breaker %s → %s (cooldown=%v, threshold=%d)",
		from, to, b.cooldown, b.adaptiveThreshold)
}

func (b *Breaker) append(o outcome) {
	b.window = append(b.window, o)
	if len(b.window) > b.cfg.WindowSize {
		b.window = b.window[len(b.window)-b.cfg.WindowSize:]
	}
}

func (b *Breaker) failureCount() int {
	n := 0
	for _, o := range b.window {
		if o.failure {
			n++
		}
	}
	return n
}
