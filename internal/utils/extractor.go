package utils

import (
	"net/http"
	"strings"
)

const (
	forwardedForHeader = "X-Forwarded-For"
	realIPHeader       = "X-Real-IP"

	// UnknownClient is returned when no identity and no origin header is available.
	UnknownClient = "unknown"
)

// Extractor represents the way we extract a rate limiting key from an HTTP request.
// It must not read the request body.
type Extractor interface {
	Extract(r *http.Request) (string, error)
}

// IdentityFunc returns the authenticated user id of a request, or "" for anonymous callers.
type IdentityFunc func(r *http.Request) string

// ResolveClientID picks the key a caller is throttled under. An explicit identity
// wins over network origin: it is more precise and does not punish users behind a
// shared NAT. Otherwise the first X-Forwarded-For entry is used, then X-Real-IP,
// then the literal "unknown".
func ResolveClientID(explicitID, forwardedFor, realIP string) string {
	if explicitID != "" {
		return explicitID
	}
	if forwardedFor != "" {
		first, _, _ := strings.Cut(forwardedFor, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if realIP = strings.TrimSpace(realIP); realIP != "" {
		return realIP
	}
	return UnknownClient
}

type clientExtractor struct {
	identity IdentityFunc
}

// NewClientExtractor creates an extractor that resolves the client id from the
// request identity and its proxy headers. identity may be nil.
func NewClientExtractor(identity IdentityFunc) Extractor {
	return &clientExtractor{identity: identity}
}

// Extract never fails; a request without identity or origin headers is keyed "unknown".
func (c *clientExtractor) Extract(r *http.Request) (string, error) {
	var explicitID string
	if c.identity != nil {
		explicitID = c.identity(r)
	}
	return ResolveClientID(explicitID, r.Header.Get(forwardedForHeader), r.Header.Get(realIPHeader)), nil
}
