package ratelimiter

import (
	"fmt"

	"github.com/lowc1012/facility-ratelimiter/internal/config"
	"github.com/lowc1012/facility-ratelimiter/internal/log"
	"github.com/lowc1012/facility-ratelimiter/internal/ratelimiter/transport"
	"go.uber.org/zap"
)

// Backend names reported by Build.
const (
	BackendREST  = "rest"
	BackendRedis = "redis"
	BackendLocal = "local"
)

// Build selects the counter backend from configuration. REST credentials win,
// then a Redis address; without either the limiter runs on the local counter
// alone, which is only accurate for a single instance.
func Build(cfg config.Config) (*Limiter, string) {
	local := NewLocalCounter(
		WithMaxKeys(cfg.RateLimiter.LocalMaxKeys),
		WithSweepInterval(cfg.RateLimiter.SweepInterval),
	)

	var (
		t       transport.Transport
		backend string
	)
	switch {
	case cfg.Remote.Configured():
		t = transport.NewRESTTransport(cfg.Remote.URL, cfg.Remote.Token, cfg.RateLimiter.Timeout)
		backend = BackendREST
	case cfg.Redis.Addr != "":
		t = transport.DialRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		backend = BackendRedis
	default:
		if log.IsProductionEnv(cfg.Environment) {
			log.Logger().Warn("Distributed rate limit backend is not configured, limits are per instance",
				zap.String("environment", cfg.Environment))
		} else {
			log.Logger().Info("Using in-process rate limit counter")
		}
		return NewLimiter(local, WithJanitor(local.StartJanitor)), BackendLocal
	}

	remote := NewRemoteCounter(t, WithTimeout(cfg.RateLimiter.Timeout))
	breaker := NewCircuitBreaker(remote, local,
		WithFailureThreshold(cfg.RateLimiter.FailureThreshold),
		WithResetAfter(cfg.RateLimiter.ResetAfter),
	)
	log.Logger().Info("Using distributed rate limit counter", zap.String("backend", backend))

	return NewLimiter(breaker,
		WithJanitor(local.StartJanitor),
		WithCloser(breaker),
	), backend
}

// BuildCatalogue applies configured overrides on top of the built-in presets.
func BuildCatalogue(cfg config.Config) (Catalogue, error) {
	overrides := make(map[string]Policy, len(cfg.RateLimiter.Policies))
	for name, o := range cfg.RateLimiter.Policies {
		overrides[name] = Policy{
			MaxRequests:   o.MaxRequests,
			WindowSeconds: o.WindowSeconds,
			Namespace:     o.Namespace,
		}
	}

	catalogue, err := DefaultCatalogue().WithOverrides(overrides)
	if err != nil {
		return nil, fmt.Errorf("build policy catalogue: %w", err)
	}
	return catalogue, nil
}
