package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lowc1012/facility-ratelimiter/internal/config"
	"github.com/lowc1012/facility-ratelimiter/internal/log"
	limiter "github.com/lowc1012/facility-ratelimiter/internal/ratelimiter"
	"github.com/lowc1012/facility-ratelimiter/internal/utils"
	"github.com/lowc1012/facility-ratelimiter/pkg/ratelimiter"
	"go.uber.org/zap"
)

// userIDHeader carries the authenticated member id set by the upstream auth proxy.
const userIDHeader = "X-User-Id"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Logger().Fatal("Failed to load config", zap.Error(err))
	}
	defer func() { _ = log.Logger().Sync() }()

	catalogue, err := limiter.BuildCatalogue(cfg)
	if err != nil {
		log.Logger().Fatal("Failed to build policies", zap.Error(err))
	}

	l, backend := limiter.Build(cfg)
	defer func() {
		if err := l.Close(); err != nil {
			log.Logger().Warn("Failed to close rate limiter", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	l.Start(ctx)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: newRouter(l, catalogue),
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			errCh <- err
		}
	}()
	log.Logger().Info("Server listening",
		zap.String("addr", srv.Addr),
		zap.String("backend", backend),
		zap.Strings("policies", catalogue.Names()))

	select {
	case <-ctx.Done():
		log.Logger().Info("Shutdown signal received")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Logger().Error("Server error", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Logger().Warn("Graceful shutdown failed", zap.Error(err))
	}
}

// newRouter mounts a throttled demo endpoint per preset plus the status probe.
func newRouter(l *limiter.Limiter, catalogue limiter.Catalogue) http.Handler {
	extractor := utils.NewClientExtractor(func(r *http.Request) string {
		return r.Header.Get(userIDHeader)
	})

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		for _, name := range catalogue.Names() {
			policy, _ := catalogue.Lookup(name)
			r.With(ratelimiter.Middleware(l, policy, extractor)).
				Post("/"+name, acceptedHandler(name))
			r.Method(http.MethodGet, "/"+name+"/ratelimit", ratelimiter.StatusHandler(l, policy, extractor))
		}
	})
	return r
}

func acceptedHandler(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]string{"policy": name, "status": "accepted"})
	}
}
