// internal/executor/breaker.go
package executor

import (
	"sync"
	"time"

	"intent-gateway/internal/common/logger"
	"intent-gateway/internal/common/metrics"
)

// BreakerState is the circuit breaker state for one datasource.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// Breaker protects one datasource from repeated calls while it is failing.
// Consecutive failures past the threshold open the breaker; after the
// cooldown a single probe is let through, and one success closes it again.
// Shared across queries, so all access goes through the mutex.
type Breaker struct {
	datasource string
	threshold  int
	cooldown   time.Duration
	logger     logger.Logger
	now        func() time.Time

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	probing  bool
}

// NewBreaker creates a closed breaker for a datasource.
func NewBreaker(datasource string, threshold int, cooldown time.Duration, log logger.Logger) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	return &Breaker{
		datasource: datasource,
		threshold:  threshold,
		cooldown:   cooldown,
		logger:     log.WithFields(map[string]interface{}{"component": "breaker", "datasource": datasource}),
		now:        time.Now,
		state:      BreakerClosed,
	}
}

// Allow reports whether a call may proceed. In the open state it starts the
// half-open probe once the cooldown has elapsed; only one probe is in flight
// at a time.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return false
		}
		b.transition(BreakerHalfOpen)
		b.probing = true
		return true
	case BreakerHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	}
	return false
}

// RecordSuccess closes the breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.probing = false
	if b.state != BreakerClosed {
		b.transition(BreakerClosed)
	}
}

// RecordFailure counts a failed call. The probe failing reopens immediately;
// in the closed state the threshold applies.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.probing = false
	switch b.state {
	case BreakerHalfOpen:
		b.openedAt = b.now()
		b.transition(BreakerOpen)
	case BreakerClosed:
		b.failures++
		if b.failures >= b.threshold {
			b.openedAt = b.now()
			b.transition(BreakerOpen)
		}
	}
}

// State returns the current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// transition must be called with the mutex held.
func (b *Breaker) transition(to BreakerState) {
	from := b.state
	b.state = to
	if to == BreakerClosed {
		b.failures = 0
	}

	metrics.BreakerTransitions.WithLabelValues(b.datasource, string(to)).Inc()
	b.logger.Warn("Circuit breaker state change", map[string]interface{}{
		"from": string(from),
		"to":   string(to),
	})
}
