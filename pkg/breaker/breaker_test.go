package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capgate-project/capgate/pkg/config"
)

// fakeClock drives cooldowns deterministically.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func testBreakerConfig() config.BreakerConfig {
	cfg := config.BreakerConfig{}
	root := &config.EngineConfig{Breaker: cfg}
	root.ApplyDefaults()
	return root.Breaker
}

func newTestBreaker(t *testing.T) (*Breaker, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	return New(testBreakerConfig(), WithClock(clock.now)), clock
}

func failN(b *Breaker, kind string, n int) {
	for i := 0; i < n; i++ {
		b.RecordFailure(kind)
	}
}

func TestBreakerStartsClosed(t *testing.T) {
	b, _ := newTestBreaker(t)
	phase, allowed := b.Gate()
	assert.Equal(t, Closed, phase)
	assert.True(t, allowed)
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(t)

	// Alternate kinds so clustering never tightens the threshold.
	kinds := []string{"timeout", "network_failure", "detection_failure", "timeout", "network_failure"}
	for _, k := range kinds[:4] {
		b.RecordFailure(k)
		phase, _ := b.Gate()
		require.Equal(t, Closed, phase, "must stay closed below the threshold")
	}
	b.RecordFailure(kinds[4])

	phase, allowed := b.Gate()
	assert.Equal(t, Open, phase)
	assert.False(t, allowed)
}

func TestBreakerClusteredFailuresTightenThreshold(t *testing.T) {
	b, _ := newTestBreaker(t)

	// Four identical failures: clustering lowers the adaptive threshold, so
	// the breaker opens before the configured threshold of five.
	failN(b, "timeout", 4)
	phase, _ := b.Gate()
	assert.Equal(t, Open, phase)
}

func TestBreakerHalfOpenAfterCooldown(t *testing.T) {
	b, clock := newTestBreaker(t)
	failN(b, "timeout", 5)

	_, allowed := b.Gate()
	require.False(t, allowed)

	clock.advance(5001 * time.Millisecond)
	phase, allowed := b.Gate()
	assert.Equal(t, HalfOpen, phase)
	assert.True(t, allowed)
}

func TestBreakerHalfOpenProbeBudget(t *testing.T) {
	b, clock := newTestBreaker(t)
	failN(b, "timeout", 5)
	clock.advance(6 * time.Second)

	// Default allows three probes; the fourth is rejected.
	for i := 0; i < 3; i++ {
		_, allowed := b.Gate()
		require.True(t, allowed, "probe %d must be admitted", i+1)
	}
	_, allowed := b.Gate()
	assert.False(t, allowed)
}

func TestBreakerReleaseReturnsProbeSlot(t *testing.T) {
	b, clock := newTestBreaker(t)
	failN(b, "timeout", 5)
	clock.advance(6 * time.Second)

	// Exhaust the probe budget without recording any outcome.
	for i := 0; i < 3; i++ {
		_, allowed := b.Gate()
		require.True(t, allowed)
	}
	_, allowed := b.Gate()
	require.False(t, allowed)

	// Releasing an unresolved probe re-admits one evaluation, so early-exit
	// paths cannot wedge the breaker in HALF_OPEN.
	b.Release()
	_, allowed = b.Gate()
	assert.True(t, allowed)
	assert.Equal(t, "HALF_OPEN", b.Snapshot().Phase)
}

func TestBreakerReleaseIsNoOpWhenClosed(t *testing.T) {
	b, _ := newTestBreaker(t)
	b.Release()
	phase, allowed := b.Gate()
	assert.Equal(t, Closed, phase)
	assert.True(t, allowed)
}

func TestBreakerClosesAfterProbeSuccesses(t *testing.T) {
	b, clock := newTestBreaker(t)
	failN(b, "timeout", 5)
	clock.advance(6 * time.Second)

	for i := 0; i < 3; i++ {
		_, allowed := b.Gate()
		require.True(t, allowed)
		b.RecordSuccess()
	}

	phase, allowed := b.Gate()
	assert.Equal(t, Closed, phase)
	assert.True(t, allowed)
}

func TestBreakerReopensOnProbeFailureWithBackoff(t *testing.T) {
	b, clock := newTestBreaker(t)
	failN(b, "timeout", 5)
	first := b.Snapshot().CooldownUntil

	clock.advance(6 * time.Second)
	_, allowed := b.Gate()
	require.True(t, allowed)
	b.RecordFailure("timeout")

	st := b.Snapshot()
	assert.Equal(t, "OPEN", st.Phase)

	// The second cooldown is doubled: 10s from the reopen instant.
	gap := st.CooldownUntil.Sub(clock.t)
	assert.Equal(t, 10*time.Second, gap)
	assert.True(t, st.CooldownUntil.After(first))

	// Still open before the longer cooldown elapses.
	clock.advance(9 * time.Second)
	_, allowed = b.Gate()
	assert.False(t, allowed)
}

func TestBreakerCooldownIsCapped(t *testing.T) {
	cfg := testBreakerConfig()
	cfg.MaxCooldownMs = 20000
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	b := New(cfg, WithClock(clock.now))

	failN(b, "timeout", 5)
	for i := 0; i < 5; i++ {
		clock.advance(time.Duration(cfg.MaxCooldownMs+1000) * time.Millisecond)
		_, allowed := b.Gate()
		require.True(t, allowed)
		b.RecordFailure("timeout")
	}

	gap := b.Snapshot().CooldownUntil.Sub(clock.t)
	assert.LessOrEqual(t, gap, 20*time.Second)
}

func TestBreakerCloseResetsCooldown(t *testing.T) {
	b, clock := newTestBreaker(t)
	failN(b, "timeout", 5)

	// Reopen once to escalate the cooldown.
	clock.advance(6 * time.Second)
	_, _ = b.Gate()
	b.RecordFailure("timeout")

	// Recover fully.
	clock.advance(11 * time.Second)
	for i := 0; i < 3; i++ {
		_, allowed := b.Gate()
		require.True(t, allowed)
		b.RecordSuccess()
	}
	require.Equal(t, "CLOSED", b.Snapshot().Phase)

	// A fresh trip uses the base cooldown again, not the escalated one.
	failN(b, "a", 1)
	failN(b, "b", 1)
	failN(b, "c", 1)
	failN(b, "a", 1)
	failN(b, "b", 1)
	gap := b.Snapshot().CooldownUntil.Sub(clock.t)
	assert.Equal(t, 5*time.Second, gap)
}

func TestBreakerSuccessesLoosenTightenedThreshold(t *testing.T) {
	b, _ := newTestBreaker(t)

	// Two clustered failures tighten the threshold to four.
	failN(b, "timeout", 2)
	require.Equal(t, 4, b.Snapshot().AdaptiveThreshold)

	// Ten consecutive successes loosen it back by one.
	for i := 0; i < 10; i++ {
		b.RecordSuccess()
	}
	assert.Equal(t, 5, b.Snapshot().AdaptiveThreshold)
}
