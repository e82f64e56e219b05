package ratelimiter

import (
	"context"
	"time"
)

// Result is the outcome of one counter check.
type Result struct {
	Allowed      bool
	Count        int
	Remaining    int
	WindowEndsAt time.Time
}

// Counter counts hits per composite key under a fixed-window policy.
// Implementations must be safe for concurrent use.
type Counter interface {
	Check(ctx context.Context, key string, policy Policy) (Result, error)
}

// Decision is what the limiter reports back to request handlers.
type Decision struct {
	Allowed      bool
	Limit        int
	Remaining    int
	WindowEndsAt time.Time
}

// Status is the answer of the non-mutating status probe.
type Status struct {
	Limit        int
	Remaining    int
	WindowEndsAt time.Time
}

func remaining(limit, count int) int {
	if r := limit - count; r > 0 {
		return r
	}
	return 0
}
