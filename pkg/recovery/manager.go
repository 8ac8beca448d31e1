package recovery

import (
	"math/rand"
	"time"

	"golang.org/x/time/rate"

	"github.com/capgate-project/capgate/pkg/config"
	"github.com/capgate-project/capgate/pkg/observability/logging"
	"github.com/capgate-project/capgate/pkg/observability/metrics"
)

// Action is what the fallback controller should do after recovery ran.
type Action int

const (
	// ActionRecovered means the retried operation succeeded; continue the
	// normal pipeline with the recovered result.
	ActionRecovered Action = iota

	// ActionEscalateDetection means load the full catalog via the
	// detection-failure level (L4).
	ActionEscalateDetection

	// ActionEscalateEmergency means go straight to the emergency level (L5)
	// and signal the breaker.
	ActionEscalateEmergency

	// ActionShedTier3 means the single retry succeeded; continue the scored
	// pipeline with tier-3 evaluation shed.
	ActionShedTier3
)

func (a Action) String() string {
	switch a {
	case ActionRecovered:
		return "recovered"
	case ActionEscalateDetection:
		return "escalate_detection"
	case ActionEscalateEmergency:
		return "escalate_emergency"
	case ActionShedTier3:
		return "shed_tier3"
	default:
		return "unknown"
	}
}

// Manager executes bounded recovery strategies. It never raises: every path
// ends in an Action the fallback controller can translate into a level.
type Manager struct {
	cfg config.RecoveryConfig

	// throttle sheds load under SystemOverload. Allow() is non-blocking.
	throttle *rate.Limiter

	// sleep is swappable for tests.
	sleep func(time.Duration)
}

// NewManager creates a recovery manager.
func NewManager(cfg config.RecoveryConfig) *Manager {
	return &Manager{
		cfg:      cfg,
		throttle: rate.NewLimiter(rate.Limit(cfg.OverloadPerSecond), cfg.OverloadBurst),
		sleep:    time.Sleep,
	}
}

// Admit reports whether a new evaluation may proceed under the overload
// throttle. A denied evaluation classifies as SystemOverload.
func (m *Manager) Admit() bool {
	return m.throttle.Allow()
}

// Run executes the strategy for the given error kind. retry re-runs the
// failed stage and reports whether it succeeded; it must itself be bounded
// by the extractor budgets.
func (m *Manager) Run(kind Kind, retry func() bool) Action {
	start := time.Now()
	budget := time.Duration(m.cfg.MaxTotalMs) * time.Millisecond

	var action Action
	switch kind {
	case KindTimeout:
		action = m.retryWithBackoff(retry, start, budget)

	case KindNetworkFailure:
		// A failed snapshot fetch means the environment view is stale;
		// retrying inside the latency budget cannot fix it.
		action = ActionEscalateEmergency

	case KindMemoryPressure:
		// Shed tier-3 evaluation and give the lighter pipeline one retry;
		// if that fails too, detection cannot be trusted.
		if retry != nil && retry() {
			action = ActionShedTier3
		} else {
			action = ActionEscalateDetection
		}

	case KindVersionMismatch, KindDetectionFailure:
		action = ActionEscalateDetection

	case KindSystemOverload:
		action = ActionEscalateDetection

	default:
		action = ActionEscalateDetection
	}

	metrics.RecordRecoveryAttempt(string(kind), action.String())
	logging.Debugf("Recovery for %s finished in %v: %s", kind, time.Since(start), action)
	return action
}

// retryWithBackoff retries with jittered exponential backoff, bounded by
// both the attempt count and the total recovery budget.
func (m *Manager) retryWithBackoff(retry func() bool, start time.Time, budget time.Duration) Action {
	if retry == nil {
		return ActionEscalateDetection
	}

	delay := time.Duration(m.cfg.BaseBackoffMs) * time.Millisecond
	for attempt := 1; attempt <= m.cfg.MaxRetries; attempt++ {
		if time.Since(start) >= budget {
			break
		}
		if retry() {
			logging.Debugf("Recovery retry succeeded on attempt %d", attempt)
			return ActionRecovered
		}

		// Full jitter keeps concurrent recoveries from synchronizing.
		jittered := time.Duration(rand.Int63n(int64(delay) + 1))
		if remaining := budget - time.Since(start); jittered > remaining {
			jittered = remaining
		}
		if jittered > 0 {
			m.sleep(jittered)
		}
		delay *= 2
	}
	return ActionEscalateDetection
}
