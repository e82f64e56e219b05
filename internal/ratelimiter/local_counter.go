package ratelimiter

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/lowc1012/facility-ratelimiter/internal/log"
	"go.uber.org/zap"
)

const (
	defaultLocalMaxKeys  = 10000
	defaultSweepInterval = time.Minute
)

// ensure that LocalCounter satisfies the Counter interface
var _ Counter = &LocalCounter{}

type counterEntry struct {
	count        int
	windowEndsAt time.Time
}

// LocalCounter is an in-process fixed-window counter. It serves single-instance
// deployments on its own and is the fallback of the circuit breaker otherwise.
//
// Entries are kept in a size-capped LRU and swept by a janitor once their window
// has elapsed, so a large set of distinct clients cannot grow memory without bound.
// Like every fixed-window counter it allows up to twice the nominal rate in a
// short burst straddling two windows.
type LocalCounter struct {
	mu            sync.Mutex
	entries       *simplelru.LRU[string, *counterEntry]
	timeNow       func() time.Time
	maxKeys       int
	sweepInterval time.Duration
}

// LocalOption configures a LocalCounter.
type LocalOption func(*LocalCounter)

// WithLocalClock overrides the clock, mainly for tests.
func WithLocalClock(now func() time.Time) LocalOption {
	return func(c *LocalCounter) { c.timeNow = now }
}

// WithMaxKeys caps the number of live entries. The least recently used entry is
// evicted when the cap is reached.
func WithMaxKeys(n int) LocalOption {
	return func(c *LocalCounter) { c.maxKeys = n }
}

// WithSweepInterval sets how often the janitor removes elapsed entries.
func WithSweepInterval(d time.Duration) LocalOption {
	return func(c *LocalCounter) { c.sweepInterval = d }
}

func NewLocalCounter(opts ...LocalOption) *LocalCounter {
	c := &LocalCounter{
		timeNow:       time.Now,
		maxKeys:       defaultLocalMaxKeys,
		sweepInterval: defaultSweepInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxKeys <= 0 {
		c.maxKeys = defaultLocalMaxKeys
	}

	// NewLRU only fails on a non-positive size, which is ruled out above.
	entries, _ := simplelru.NewLRU[string, *counterEntry](c.maxKeys, nil)
	c.entries = entries
	return c
}

// Check counts one hit for key. It never returns an error.
func (c *LocalCounter) Check(_ context.Context, key string, policy Policy) (Result, error) {
	now := c.timeNow()

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries.Get(key)
	if !ok || !now.Before(entry.windowEndsAt) {
		// a stale entry is superseded, never reset in place. The entry's end is
		// measured from its first hit, so it can trail the aligned boundary at
		// which the composite key rolls over by up to one window.
		entry = &counterEntry{
			count:        1,
			windowEndsAt: now.Add(policy.Window()),
		}
		c.entries.Add(key, entry)
		return Result{
			Allowed:      true,
			Count:        1,
			Remaining:    remaining(policy.MaxRequests, 1),
			WindowEndsAt: entry.windowEndsAt,
		}, nil
	}

	entry.count++
	return Result{
		Allowed:      entry.count <= policy.MaxRequests,
		Count:        entry.count,
		Remaining:    remaining(policy.MaxRequests, entry.count),
		WindowEndsAt: entry.windowEndsAt,
	}, nil
}

// Sweep removes every entry whose window has elapsed and returns how many were removed.
func (c *LocalCounter) Sweep() int {
	now := c.timeNow()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, key := range c.entries.Keys() {
		entry, ok := c.entries.Peek(key)
		if ok && !now.Before(entry.windowEndsAt) {
			c.entries.Remove(key)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, elapsed or not.
func (c *LocalCounter) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// StartJanitor runs Sweep every sweep interval until ctx is done.
func (c *LocalCounter) StartJanitor(ctx context.Context) {
	if c.sweepInterval <= 0 {
		return
	}

	t := time.NewTicker(c.sweepInterval)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n := c.Sweep(); n > 0 {
					log.Logger().Debug("Swept elapsed local counters", zap.Int("removed", n))
				}
			}
		}
	}()
}
