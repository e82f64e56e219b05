package ratelimiter

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lowc1012/facility-ratelimiter/internal/ratelimiter/transport"
)

// windowStart is aligned to a minute boundary so 60s windows start exactly here.
var windowStart = time.Date(2022, 5, 10, 9, 15, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// mockTransport is an in-memory counter service that can be told to fail.
type mockTransport struct {
	mu       sync.Mutex
	counters map[string]int64
	calls    []string
	fail     error
}

func newMockTransport() *mockTransport {
	return &mockTransport{counters: make(map[string]int64)}
}

func (m *mockTransport) Do(_ context.Context, args ...interface{}) (interface{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cmd, _ := args[0].(string)
	key, _ := args[1].(string)
	m.calls = append(m.calls, cmd+" "+key)
	if m.fail != nil {
		return nil, m.fail
	}

	switch cmd {
	case "INCR":
		m.counters[key]++
		return m.counters[key], nil
	case "EXPIRE":
		return int64(1), nil
	default:
		return nil, errors.New("unknown command " + cmd)
	}
}

func (m *mockTransport) Close() error { return nil }

func (m *mockTransport) SetFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

func (m *mockTransport) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

var errTransportDown = errors.New("connection refused")

var _ transport.Transport = &mockTransport{}
