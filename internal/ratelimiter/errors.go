package ratelimiter

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrRateLimited matches every ExceededError via errors.Is.
var ErrRateLimited = errors.New("rate limit exceeded")

// ExceededError describes a denied decision and when the caller may retry.
type ExceededError struct {
	Limit             int
	RetryAfterSeconds int
	WindowEndsAt      time.Time
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded: limit %d, retry after %ds", e.Limit, e.RetryAfterSeconds)
}

func (e *ExceededError) Is(target error) bool {
	return target == ErrRateLimited
}

// Translate turns a denied decision into an ExceededError. Allowed decisions
// translate to nil.
func Translate(d Decision, now time.Time) *ExceededError {
	if d.Allowed {
		return nil
	}
	return &ExceededError{
		Limit:             d.Limit,
		RetryAfterSeconds: RetryAfterSeconds(d.WindowEndsAt, now),
		WindowEndsAt:      d.WindowEndsAt,
	}
}

// RetryAfterSeconds is the whole number of seconds, rounded up, until windowEndsAt.
func RetryAfterSeconds(windowEndsAt, now time.Time) int {
	wait := windowEndsAt.Sub(now)
	if wait <= 0 {
		return 0
	}
	return int(math.Ceil(wait.Seconds()))
}
