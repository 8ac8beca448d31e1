// Package notify emits rate-limited, severity-gated user-facing messages on
// fallback-level changes. The cooldown map is purely a rate limiter; it is
// never a source of truth for pipeline state.
package notify

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/capgate-project/capgate/pkg/config"
	"github.com/capgate-project/capgate/pkg/observability/logging"
	"github.com/capgate-project/capgate/pkg/observability/metrics"
)

// Severity gates which events reach the user.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event is one user-facing message.
type Event struct {
	Severity Severity  `json:"severity"`
	Key      string    `json:"key"`
	Message  string    `json:"message"`
	At       time.Time `json:"at"`
}

// Sink consumes emitted events; typically a UI adapter outside this core.
type Sink func(Event)

// Emitter deduplicates events by (severity, key) within per-severity
// cooldowns and enforces a global rate cap.
type Emitter struct {
	cfg  config.NotifyConfig
	sink Sink

	mu       sync.Mutex
	lastSent map[string]time.Time

	limiter *rate.Limiter
	now     func() time.Time
}

// NewEmitter creates an emitter delivering to sink. A nil sink drops events
// after accounting, which keeps the engine wiring uniform when the UI layer
// is absent.
func NewEmitter(cfg config.NotifyConfig, sink Sink) *Emitter {
	return &Emitter{
		cfg:      cfg,
		sink:     sink,
		lastSent: make(map[string]time.Time),
		limiter:  rate.NewLimiter(rate.Limit(float64(cfg.RatePerMinute)/60.0), cfg.RatePerMinute),
		now:      time.Now,
	}
}

// Emit delivers the event unless it is suppressed by cooldown or the global
// cap. Critical events ignore the per-key cooldown by default config (0s).
func (e *Emitter) Emit(severity Severity, key, message string) bool {
	if !e.cfg.Enabled {
		return false
	}

	cooldown := e.cooldownFor(severity)
	mapKey := string(severity) + "|" + key

	e.mu.Lock()
	now := e.now()
	if last, ok := e.lastSent[mapKey]; ok && cooldown > 0 && now.Sub(last) < cooldown {
		e.mu.Unlock()
		metrics.RecordNotification(string(severity), "suppressed")
		return false
	}
	e.lastSent[mapKey] = now
	e.mu.Unlock()

	if !e.limiter.Allow() {
		metrics.RecordNotification(string(severity), "rate_limited")
		return false
	}

	event := Event{Severity: severity, Key: key, Message: message, At: now}
	if e.sink != nil {
		e.sink(event)
	}
	metrics.RecordNotification(string(severity), "sent")
	logging.Debugf("Notification sent: severity=%s key=%s", severity, key)
	return true
}

// LevelChange emits the appropriate notification for a fallback level
// transition. Severity scales with how degraded the new level is.
func (e *Emitter) LevelChange(from, to string) {
	if from == to {
		return
	}
	var severity Severity
	switch to {
	case "L5":
		severity = SeverityCritical
	case "L4":
		severity = SeverityWarning
	default:
		severity = SeverityInfo
	}
	e.Emit(severity, "fallback_level_change",
		fmt.Sprintf("Capability loading moved from %s to %s", from, to))
}

func (e *Emitter) cooldownFor(severity Severity) time.Duration {
	switch severity {
	case SeverityCritical:
		return time.Duration(e.cfg.CriticalCooldownSeconds) * time.Second
	case SeverityWarning:
		return time.Duration(e.cfg.WarningCooldownSeconds) * time.Second
	default:
		return time.Duration(e.cfg.InfoCooldownSeconds) * time.Second
	}
}
