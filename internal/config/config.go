// Package config loads the limiter configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig
	Environment string
	Remote      RemoteConfig
	Redis       RedisConfig
	RateLimiter RateLimiterConfig
}

type ServerConfig struct {
	Port string
}

// RemoteConfig holds the REST counter service credentials. Both must be set for
// the distributed backend to be used.
type RemoteConfig struct {
	URL   string
	Token string
}

// Configured reports whether both the endpoint and the token are present.
func (r RemoteConfig) Configured() bool {
	return r.URL != "" && r.Token != ""
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RateLimiterConfig struct {
	Timeout          time.Duration
	FailureThreshold int
	ResetAfter       time.Duration
	LocalMaxKeys     int
	SweepInterval    time.Duration
	Policies         map[string]PolicyOverride
}

// PolicyOverride replaces or adds a named policy.
type PolicyOverride struct {
	MaxRequests   int    `yaml:"max_requests"`
	WindowSeconds int    `yaml:"window_seconds"`
	Namespace     string `yaml:"namespace"`
}

// Load reads the configuration. A .env file in the working directory is
// honoured when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	redisCfg, err := buildRedisConfig()
	if err != nil {
		return Config{}, err
	}

	limiterCfg, err := buildRateLimiterConfig()
	if err != nil {
		return Config{}, err
	}

	return Config{
		Server:      ServerConfig{Port: getEnv("SERVER_PORT", "8080")},
		Environment: getEnv("APP_ENV", "development"),
		Remote: RemoteConfig{
			URL:   strings.TrimSpace(os.Getenv("UPSTASH_REDIS_REST_URL")),
			Token: strings.TrimSpace(os.Getenv("UPSTASH_REDIS_REST_TOKEN")),
		},
		Redis:       redisCfg,
		RateLimiter: limiterCfg,
	}, nil
}

func buildRedisConfig() (RedisConfig, error) {
	db, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return RedisConfig{}, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	return RedisConfig{
		Addr:     strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
	}, nil
}

func buildRateLimiterConfig() (RateLimiterConfig, error) {
	timeoutMs, err := getPositiveInt("RATELIMIT_TIMEOUT_MS", "2000")
	if err != nil {
		return RateLimiterConfig{}, err
	}
	threshold, err := getPositiveInt("RATELIMIT_BREAKER_THRESHOLD", "3")
	if err != nil {
		return RateLimiterConfig{}, err
	}
	resetSeconds, err := getPositiveInt("RATELIMIT_BREAKER_RESET_SECONDS", "30")
	if err != nil {
		return RateLimiterConfig{}, err
	}
	maxKeys, err := getPositiveInt("RATELIMIT_LOCAL_MAX_KEYS", "10000")
	if err != nil {
		return RateLimiterConfig{}, err
	}
	sweepSeconds, err := getPositiveInt("RATELIMIT_SWEEP_SECONDS", "60")
	if err != nil {
		return RateLimiterConfig{}, err
	}

	policies, err := loadPolicies(strings.TrimSpace(os.Getenv("RATELIMIT_POLICIES_FILE")))
	if err != nil {
		return RateLimiterConfig{}, err
	}

	return RateLimiterConfig{
		Timeout:          time.Duration(timeoutMs) * time.Millisecond,
		FailureThreshold: threshold,
		ResetAfter:       time.Duration(resetSeconds) * time.Second,
		LocalMaxKeys:     maxKeys,
		SweepInterval:    time.Duration(sweepSeconds) * time.Second,
		Policies:         policies,
	}, nil
}

// loadPolicies reads a YAML map of policy name to override. An empty path
// yields no overrides.
func loadPolicies(path string) (map[string]PolicyOverride, error) {
	if path == "" {
		return map[string]PolicyOverride{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read RATELIMIT_POLICIES_FILE: %w", err)
	}

	var doc struct {
		Policies map[string]PolicyOverride `yaml:"policies"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse RATELIMIT_POLICIES_FILE: %w", err)
	}
	if doc.Policies == nil {
		doc.Policies = map[string]PolicyOverride{}
	}
	return doc.Policies, nil
}

func getPositiveInt(key, fallback string) (int, error) {
	v, err := strconv.Atoi(getEnv(key, fallback))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive, got %d", key, v)
	}
	return v, nil
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}
