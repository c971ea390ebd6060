package worker

import (
	"sync"
	"time"

	"github.com/jmehdipour/agency-crm/internal/logger"
	"github.com/jmehdipour/agency-crm/internal/metrics"
	"go.uber.org/zap"
)

// BreakerState is the relay breaker position; its value is what the
// agcrm_relay_breaker_state gauge reports.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// Breaker stops the relay from hammering Kafka while publishes keep failing.
// After threshold consecutive failures it opens for openFor; then a single
// trial batch is let through, and its outcome closes or reopens it.
type Breaker struct {
	mu        sync.Mutex
	state     BreakerState
	failures  int
	threshold int
	openFor   time.Duration
	reopenAt  time.Time
	probing   bool
}

func NewBreaker(threshold int, openFor time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 1
	}
	metrics.RelayBreakerState.Set(float64(BreakerClosed))
	return &Breaker{threshold: threshold, openFor: openFor}
}

func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Ready reports whether TryAcquire would currently succeed, without taking
// the trial slot.
func (b *Breaker) Ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.admits(time.Now())
}

// TryAcquire admits a publish attempt. Once openFor has passed on an open
// breaker, the first caller becomes the half-open trial.
func (b *Breaker) TryAcquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.admits(time.Now()) {
		return false
	}
	if b.state != BreakerClosed {
		b.transition(BreakerHalfOpen)
		b.probing = true
	}
	return true
}

func (b *Breaker) admits(now time.Time) bool {
	switch b.state {
	case BreakerOpen:
		return !b.probing && now.After(b.reopenAt)
	case BreakerHalfOpen:
		return !b.probing
	}
	return true
}

func (b *Breaker) OnSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.probing = false
	b.transition(BreakerClosed)
}

func (b *Breaker) OnFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	if b.state == BreakerHalfOpen || b.failures >= b.threshold {
		b.probing = false
		b.reopenAt = time.Now().Add(b.openFor)
		b.transition(BreakerOpen)
	}
}

// transition must be called with mu held.
func (b *Breaker) transition(to BreakerState) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to

	metrics.RelayBreakerState.Set(float64(to))
	metrics.RelayBreakerTransitions.WithLabelValues(to.String()).Inc()
	logger.Log.Info("relay breaker state changed",
		zap.Stringer("from", from),
		zap.Stringer("to", to),
		zap.Int("consecutive_failures", b.failures),
	)
}
