package ratelimiter

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrInvalidPolicy is returned when a policy has a non-positive quota or window.
var ErrInvalidPolicy = errors.New("invalid rate limit policy")

// Policy is an immutable throttling rule: at most MaxRequests hits per
// WindowSeconds for one client inside Namespace.
//
// Namespace keeps unrelated policies apart when they share a client id, so that
// authentication attempts and booking attempts of the same caller are counted
// separately.
type Policy struct {
	MaxRequests   int
	WindowSeconds int
	Namespace     string
}

// NewPolicy builds a validated policy.
func NewPolicy(maxRequests, windowSeconds int, namespace string) (Policy, error) {
	p := Policy{
		MaxRequests:   maxRequests,
		WindowSeconds: windowSeconds,
		Namespace:     namespace,
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// Validate checks that quota and window are both at least one.
func (p Policy) Validate() error {
	if p.MaxRequests < 1 {
		return fmt.Errorf("%w: max requests must be >= 1, got %d", ErrInvalidPolicy, p.MaxRequests)
	}
	if p.WindowSeconds < 1 {
		return fmt.Errorf("%w: window must be >= 1s, got %d", ErrInvalidPolicy, p.WindowSeconds)
	}
	return nil
}

// Window returns the window length as a duration.
func (p Policy) Window() time.Duration {
	return time.Duration(p.WindowSeconds) * time.Second
}

// Preset policies used by the facility API.
var (
	PresetAPI     = Policy{MaxRequests: 60, WindowSeconds: 60, Namespace: "api"}
	PresetAuth    = Policy{MaxRequests: 5, WindowSeconds: 60, Namespace: "auth"}
	PresetChat    = Policy{MaxRequests: 30, WindowSeconds: 60, Namespace: "chat"}
	PresetUpload  = Policy{MaxRequests: 10, WindowSeconds: 60, Namespace: "upload"}
	PresetStrict  = Policy{MaxRequests: 3, WindowSeconds: 60, Namespace: "strict"}
	PresetBooking = Policy{MaxRequests: 10, WindowSeconds: 60, Namespace: "booking"}
)

// Catalogue is a named set of policies.
type Catalogue map[string]Policy

// DefaultCatalogue returns a fresh copy of the built-in presets.
func DefaultCatalogue() Catalogue {
	return Catalogue{
		"api":     PresetAPI,
		"auth":    PresetAuth,
		"chat":    PresetChat,
		"upload":  PresetUpload,
		"strict":  PresetStrict,
		"booking": PresetBooking,
	}
}

// Lookup returns the policy registered under name.
func (c Catalogue) Lookup(name string) (Policy, bool) {
	p, ok := c[name]
	return p, ok
}

// Names returns the registered policy names in lexical order.
func (c Catalogue) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WithOverrides returns a copy of c where every entry of overrides replaces or
// adds a policy. An override without a namespace inherits its name.
func (c Catalogue) WithOverrides(overrides map[string]Policy) (Catalogue, error) {
	out := make(Catalogue, len(c)+len(overrides))
	for name, p := range c {
		out[name] = p
	}
	for name, p := range overrides {
		if p.Namespace == "" {
			p.Namespace = name
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("policy %q: %w", name, err)
		}
		out[name] = p
	}
	return out, nil
}

// LookupPreset returns the built-in preset registered under name.
func LookupPreset(name string) (Policy, bool) {
	return DefaultCatalogue().Lookup(name)
}
