package ratelimiter

import (
	"strconv"
	"strings"
	"time"
)

const (
	defaultNamespace = "default"
	unknownClient    = "unknown"
)

// windowIndex numbers the fixed window that contains now.
func windowIndex(now time.Time, policy Policy) int64 {
	return now.UnixMilli() / (int64(policy.WindowSeconds) * 1000)
}

// windowEnd is the instant the fixed window containing now closes, in now's
// location.
func windowEnd(now time.Time, policy Policy) time.Time {
	size := int64(policy.WindowSeconds) * 1000
	return time.UnixMilli((windowIndex(now, policy) + 1) * size).In(now.Location())
}

// compositeKey addresses one counter entry: namespace:clientID:windowIndex.
// Two hits inside the same window always land on the same key.
func compositeKey(policy Policy, clientID string, now time.Time) string {
	ns := strings.TrimSpace(policy.Namespace)
	if ns == "" {
		ns = defaultNamespace
	}
	if clientID == "" {
		clientID = unknownClient
	}

	var b strings.Builder
	b.Grow(len(ns) + len(clientID) + 22)
	b.WriteString(ns)
	b.WriteByte(':')
	b.WriteString(clientID)
	b.WriteByte(':')
	b.WriteString(strconv.FormatInt(windowIndex(now, policy), 10))
	return b.String()
}
