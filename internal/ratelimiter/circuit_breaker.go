package ratelimiter

import (
	"context"
	"time"

	"github.com/lowc1012/facility-ratelimiter/internal/log"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultFailureThreshold = 3
	defaultResetAfter       = 30 * time.Second
	fallbackLogInterval     = 30 * time.Second
)

// CircuitState is the state of the breaker guarding the remote counter.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ensure that CircuitBreaker satisfies the Counter interface
var _ Counter = &CircuitBreaker{}

// CircuitBreaker sends checks to a remote counter while it is healthy and to a
// local fallback after threshold consecutive failures, for resetAfter. The first
// check after the cooldown probes the remote again.
//
// Failure counting is best-effort under contention; the breaker only has to
// avoid wedging permanently open or closed.
type CircuitBreaker struct {
	remote     Counter
	fallback   Counter
	threshold  int64
	resetAfter time.Duration
	timeNow    func() time.Time

	failures  *atomic.Int64
	openUntil *atomic.Time

	fallbackLog rate.Sometimes
}

// BreakerOption configures a CircuitBreaker.
type BreakerOption func(*CircuitBreaker)

// WithFailureThreshold sets how many consecutive remote failures open the circuit.
func WithFailureThreshold(n int) BreakerOption {
	return func(b *CircuitBreaker) {
		if n > 0 {
			b.threshold = int64(n)
		}
	}
}

// WithResetAfter sets how long the circuit stays open.
func WithResetAfter(d time.Duration) BreakerOption {
	return func(b *CircuitBreaker) {
		if d > 0 {
			b.resetAfter = d
		}
	}
}

// WithBreakerClock overrides the clock, mainly for tests.
func WithBreakerClock(now func() time.Time) BreakerOption {
	return func(b *CircuitBreaker) { b.timeNow = now }
}

func NewCircuitBreaker(remote, fallback Counter, opts ...BreakerOption) *CircuitBreaker {
	b := &CircuitBreaker{
		remote:      remote,
		fallback:    fallback,
		threshold:   defaultFailureThreshold,
		resetAfter:  defaultResetAfter,
		timeNow:     time.Now,
		failures:    atomic.NewInt64(0),
		openUntil:   atomic.NewTime(time.Time{}),
		fallbackLog: rate.Sometimes{First: 1, Interval: fallbackLogInterval},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Check never returns an error: remote failures are counted and the hit is
// served by the fallback counter instead.
func (b *CircuitBreaker) Check(ctx context.Context, key string, policy Policy) (Result, error) {
	now := b.timeNow()
	if now.Before(b.openUntil.Load()) {
		return b.fallback.Check(ctx, key, policy)
	}

	res, err := b.remote.Check(ctx, key, policy)
	if err == nil {
		b.failures.Store(0)
		b.openUntil.Store(time.Time{})
		return res, nil
	}

	failures := b.failures.Inc()
	if failures >= b.threshold {
		until := now.Add(b.resetAfter)
		b.openUntil.Store(until)
		log.Logger().Warn("Rate limit backend circuit opened",
			zap.Int64("consecutiveFailures", failures),
			zap.Time("openUntil", until),
			zap.Error(err))
	} else {
		b.fallbackLog.Do(func() {
			log.Logger().Warn("Rate limit backend failed, using local counter", zap.Error(err))
		})
	}
	return b.fallback.Check(ctx, key, policy)
}

// State reports the breaker state as seen at the current time.
func (b *CircuitBreaker) State() CircuitState {
	until := b.openUntil.Load()
	switch {
	case until.IsZero():
		return CircuitClosed
	case b.timeNow().Before(until):
		return CircuitOpen
	default:
		return CircuitHalfOpen
	}
}

// ConsecutiveFailures returns the current failure streak of the remote counter.
func (b *CircuitBreaker) ConsecutiveFailures() int64 {
	return b.failures.Load()
}

// Close releases the remote counter when it owns resources.
func (b *CircuitBreaker) Close() error {
	if c, ok := b.remote.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
