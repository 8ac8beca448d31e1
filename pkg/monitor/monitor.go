// Package monitor keeps rolling latency, memory and error-rate aggregates
// for the decision pipeline and flags sustained degradation, which the
// fallback controller treats as an emergency condition until cleared.
package monitor

import (
	"sort"
	"sync"
	"time"

	"github.com/capgate-project/capgate/pkg/config"
	"github.com/capgate-project/capgate/pkg/observability/logging"
	"github.com/capgate-project/capgate/pkg/observability/metrics"
)

// sample is one recorded evaluation.
type sample struct {
	latency time.Duration
	bytes   int64
	failed  bool
}

// Monitor maintains a fixed-size rolling window of evaluation samples.
type Monitor struct {
	mu  sync.Mutex
	cfg config.MonitorConfig

	samples []sample
	next    int
	filled  bool

	consecutiveBreaches int
	degraded            bool
}

// New creates a monitor with an empty window.
func New(cfg config.MonitorConfig) *Monitor {
	return &Monitor{
		cfg:     cfg,
		samples: make([]sample, cfg.WindowSize),
	}
}

// Record adds one evaluation sample and re-checks the degradation state.
func (m *Monitor) Record(latency time.Duration, estimatedBytes int64, failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.samples[m.next] = sample{latency: latency, bytes: estimatedBytes, failed: failed}
	m.next++
	if m.next == len(m.samples) {
		m.next = 0
		m.filled = true
	}

	// Check once per full pass over the window so a single slow request
	// cannot flap the flag.
	if m.next%check(m.cfg.WindowSize) == 0 {
		m.evaluateLocked()
	}
}

func check(window int) int {
	n := window / 4
	if n < 1 {
		return 1
	}
	return n
}

// Degraded reports whether sustained degradation is currently flagged.
func (m *Monitor) Degraded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.degraded
}

// Aggregates is a read-only view of the rolling window for the status API.
type Aggregates struct {
	SampleCount    int           `json:"sample_count"`
	P50            time.Duration `json:"p50_ns"`
	P95            time.Duration `json:"p95_ns"`
	ErrorRate      float64       `json:"error_rate"`
	MemoryEstimate int64         `json:"memory_estimate_bytes"`
	Degraded       bool          `json:"degraded"`
}

// Snapshot computes the current aggregates.
func (m *Monitor) Snapshot() Aggregates {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.aggregatesLocked()
}

func (m *Monitor) aggregatesLocked() Aggregates {
	count := m.next
	if m.filled {
		count = len(m.samples)
	}
	agg := Aggregates{SampleCount: count, Degraded: m.degraded}
	if count == 0 {
		return agg
	}

	latencies := make([]time.Duration, 0, count)
	failures := 0
	var bytes int64
	for i := 0; i < count; i++ {
		s := m.samples[i]
		latencies = append(latencies, s.latency)
		bytes += s.bytes
		if s.failed {
			failures++
		}
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	agg.P50 = latencies[count/2]
	p95Idx := (count * 95) / 100
	if p95Idx >= count {
		p95Idx = count - 1
	}
	agg.P95 = latencies[p95Idx]
	agg.ErrorRate = float64(failures) / float64(count)
	agg.MemoryEstimate = bytes
	return agg
}

// evaluateLocked updates the sustained-degradation flag. Thresholds must be
// breached on BreachWindows consecutive checks to set it; one clean check
// clears it.
func (m *Monitor) evaluateLocked() {
	agg := m.aggregatesLocked()
	if agg.SampleCount == 0 {
		return
	}

	metrics.PerformanceP95Gauge.Set(agg.P95.Seconds())
	metrics.PerformanceErrorRateGauge.Set(agg.ErrorRate)

	breached := agg.P95 > time.Duration(m.cfg.P95ThresholdMs)*time.Millisecond ||
		agg.ErrorRate > m.cfg.ErrorRateThreshold ||
		agg.MemoryEstimate > m.cfg.MemoryThresholdBytes

	if breached {
		m.consecutiveBreaches++
		if !m.degraded && m.consecutiveBreaches >= m.cfg.BreachWindows {
			m.degraded = true
			metrics.DegradedGauge.Set(1)
			logging.Warnf("Sustained degradation: p95=%v error_rate=%.2f memory=%dB",
				agg.P95, agg.ErrorRate, agg.MemoryEstimate)
		}
		return
	}

	m.consecutiveBreaches = 0
	if m.degraded {
		m.degraded = false
		metrics.DegradedGauge.Set(0)
		logging.Infof("Degradation cleared: p95=%v error_rate=%.2f", agg.P95, agg.ErrorRate)
	}
}
