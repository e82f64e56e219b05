package log

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
)

var (
	mu     sync.RWMutex
	logger *zap.Logger
	once   sync.Once
)

// Logger returns the process-wide logger. It is built lazily from APP_ENV the
// first time it is requested unless SetLogger was called before.
func Logger() *zap.Logger {
	once.Do(func() {
		mu.Lock()
		defer mu.Unlock()
		if logger == nil {
			logger = build(os.Getenv("APP_ENV"))
		}
	})

	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// SetLogger replaces the process-wide logger.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	once.Do(func() {})

	mu.Lock()
	defer mu.Unlock()
	logger = l
}

// IsProductionEnv reports whether env names a production-like deployment.
// Anything that is not explicitly a development, local or test environment counts.
func IsProductionEnv(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "", "dev", "development", "local", "test":
		return false
	default:
		return true
	}
}

func build(env string) *zap.Logger {
	var (
		l   *zap.Logger
		err error
	)
	if IsProductionEnv(env) {
		l, err = zap.NewProduction()
	} else {
		l, err = zap.NewDevelopment()
	}
	if err != nil {
		return zap.NewNop()
	}
	return l
}
