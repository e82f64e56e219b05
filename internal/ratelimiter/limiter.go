package ratelimiter

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/lowc1012/facility-ratelimiter/internal/log"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Limiter is the single entry point request handlers use. It owns one Counter
// for the life of the process and never looks at its concrete type; build it
// once in the composition root and pass it to the handlers that need it.
type Limiter struct {
	counter Counter
	timeNow func() time.Time
	janitor func(ctx context.Context)
	closers []io.Closer

	startOnce sync.Once
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the clock used to derive window indexes.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.timeNow = now }
}

// WithJanitor registers a background sweep started by Start.
func WithJanitor(start func(ctx context.Context)) Option {
	return func(l *Limiter) { l.janitor = start }
}

// WithCloser registers a resource released by Close.
func WithCloser(c io.Closer) Option {
	return func(l *Limiter) { l.closers = append(l.closers, c) }
}

func NewLimiter(counter Counter, opts ...Option) *Limiter {
	l := &Limiter{
		counter: counter,
		timeNow: time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Evaluate counts one hit for clientID under policy and reports the decision.
// It never fails: an invalid policy or a counter error is logged and the hit
// is let through.
func (l *Limiter) Evaluate(ctx context.Context, policy Policy, clientID string) Decision {
	now := l.timeNow()
	if err := policy.Validate(); err != nil {
		log.Logger().Error("Refusing to evaluate invalid policy", zap.Error(err))
		return allowAll(policy, now)
	}

	key := compositeKey(policy, clientID, now)

	res, err := l.counter.Check(ctx, key, policy)
	if err != nil {
		log.Logger().Error("Rate limit check failed, allowing request",
			zap.String("key", key), zap.Error(err))
		return allowAll(policy, now)
	}

	if !res.Allowed {
		log.Logger().Info("Rate limit exceeded",
			zap.String("key", key),
			zap.Int("count", res.Count),
			zap.Int("limit", policy.MaxRequests))
	}

	return Decision{
		Allowed:      res.Allowed,
		Limit:        policy.MaxRequests,
		Remaining:    res.Remaining,
		WindowEndsAt: res.WindowEndsAt,
	}
}

// allowAll is the decision handed out when the hit could not be counted. A
// policy with a non-positive window still reports a reset no earlier than now.
func allowAll(policy Policy, now time.Time) Decision {
	remaining := policy.MaxRequests
	if remaining < 0 {
		remaining = 0
	}
	window := policy.Window()
	if window < 0 {
		window = 0
	}
	return Decision{
		Allowed:      true,
		Limit:        policy.MaxRequests,
		Remaining:    remaining,
		WindowEndsAt: now.Add(window),
	}
}

// Status reports the quota for clientID without counting a hit.
//
// The answer is an estimate built from the policy alone: Remaining is always the
// full quota and WindowEndsAt is one window from now. It does not read the
// stored counter.
func (l *Limiter) Status(policy Policy, clientID string) Status {
	return Status{
		Limit:        policy.MaxRequests,
		Remaining:    policy.MaxRequests,
		WindowEndsAt: l.timeNow().Add(policy.Window()),
	}
}

// Now returns the limiter's current time.
func (l *Limiter) Now() time.Time {
	return l.timeNow()
}

// Start launches the background sweep of the local counter, if any. It stops
// when ctx is done. Only the first call has an effect.
func (l *Limiter) Start(ctx context.Context) {
	l.startOnce.Do(func() {
		if l.janitor != nil {
			l.janitor(ctx)
		}
	})
}

// Close releases every registered resource.
func (l *Limiter) Close() error {
	var err error
	for _, c := range l.closers {
		err = multierr.Append(err, c.Close())
	}
	return err
}
