package executor

import (
	"testing"
	"time"

	"intent-gateway/internal/common/logger"

	"github.com/stretchr/testify/assert"
)

func newTestBreaker(t *testing.T, threshold int, cooldown time.Duration) (*Breaker, *time.Time) {
	t.Helper()
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	b := NewBreaker("test-ds", threshold, cooldown, logger.NewTestLogger(t))
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(t, 3, time.Minute)

	for i := 0; i < 2; i++ {
		assert.True(t, b.Allow())
		b.RecordFailure()
	}
	assert.Equal(t, BreakerClosed, b.State())

	assert.True(t, b.Allow())
	b.RecordFailure()
	assert.Equal(t, BreakerOpen, b.State())
	assert.False(t, b.Allow())
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(t, 3, time.Minute)

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()

	assert.Equal(t, BreakerClosed, b.State(), "non-consecutive failures never open the breaker")
}

func TestBreaker_HalfOpenProbeAfterCooldown(t *testing.T) {
	b, now := newTestBreaker(t, 1, time.Minute)

	b.Allow()
	b.RecordFailure()
	assert.Equal(t, BreakerOpen, b.State())
	assert.False(t, b.Allow())

	// Cooldown elapses: exactly one probe goes through.
	*now = now.Add(2 * time.Minute)
	assert.True(t, b.Allow())
	assert.Equal(t, BreakerHalfOpen, b.State())
	assert.False(t, b.Allow(), "only one probe in flight")

	b.RecordSuccess()
	assert.Equal(t, BreakerClosed, b.State())
	assert.True(t, b.Allow())
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	b, now := newTestBreaker(t, 1, time.Minute)

	b.Allow()
	b.RecordFailure()
	*now = now.Add(2 * time.Minute)

	assert.True(t, b.Allow()) // probe
	b.RecordFailure()
	assert.Equal(t, BreakerOpen, b.State())
	assert.False(t, b.Allow(), "cooldown restarts after a failed probe")

	*now = now.Add(2 * time.Minute)
	assert.True(t, b.Allow())
	b.RecordSuccess()
	assert.Equal(t, BreakerClosed, b.State())
}
