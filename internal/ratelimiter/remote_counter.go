package ratelimiter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/lowc1012/facility-ratelimiter/internal/log"
	"github.com/lowc1012/facility-ratelimiter/internal/ratelimiter/transport"
	"go.uber.org/zap"
)

const defaultRemoteTimeout = 2 * time.Second

// ErrBackendUnavailable wraps every failure of the distributed counter service.
var ErrBackendUnavailable = errors.New("rate limit backend unavailable")

// ensure that RemoteCounter satisfies the Counter interface
var _ Counter = &RemoteCounter{}

// RemoteCounter counts hits in a distributed atomic counter service. The service
// owns expiry: the key is given a TTL of one window when its counter is created.
type RemoteCounter struct {
	transport transport.Transport
	timeout   time.Duration
	timeNow   func() time.Time
}

// RemoteOption configures a RemoteCounter.
type RemoteOption func(*RemoteCounter)

// WithTimeout bounds every call to the backend. Non-positive values keep the default.
func WithTimeout(d time.Duration) RemoteOption {
	return func(c *RemoteCounter) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRemoteClock overrides the clock, mainly for tests.
func WithRemoteClock(now func() time.Time) RemoteOption {
	return func(c *RemoteCounter) { c.timeNow = now }
}

func NewRemoteCounter(t transport.Transport, opts ...RemoteOption) *RemoteCounter {
	c := &RemoteCounter{
		transport: t,
		timeout:   defaultRemoteTimeout,
		timeNow:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check increments key and, only on the hit that creates the counter, sets its
// expiry. Re-arming the expiry on every hit would keep a busy key alive forever.
func (c *RemoteCounter) Check(ctx context.Context, key string, policy Policy) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.transport.Do(ctx, "INCR", key)
	if err != nil {
		log.Logger().Warn("Failed to increase key", zap.String("key", key), zap.Error(err))
		return Result{}, fmt.Errorf("%w: incr: %w", ErrBackendUnavailable, err)
	}
	count, err := toInt64(raw)
	if err != nil {
		return Result{}, fmt.Errorf("%w: incr: %w", ErrBackendUnavailable, err)
	}

	if count == 1 {
		if _, err := c.transport.Do(ctx, "EXPIRE", key, policy.WindowSeconds); err != nil {
			log.Logger().Warn("Failed to set an expiration to key", zap.String("key", key), zap.Error(err))
			return Result{}, fmt.Errorf("%w: expire: %w", ErrBackendUnavailable, err)
		}
	}

	n := int(count)
	return Result{
		Allowed:      n <= policy.MaxRequests,
		Count:        n,
		Remaining:    remaining(policy.MaxRequests, n),
		WindowEndsAt: windowEnd(c.timeNow(), policy),
	}, nil
}

// Close releases the transport.
func (c *RemoteCounter) Close() error {
	return c.transport.Close()
}

func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case json.Number:
		return n.Int64()
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected counter result %T", v)
	}
}
