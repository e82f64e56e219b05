package ratelimiter

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/lowc1012/facility-ratelimiter/internal/log"
	limiter "github.com/lowc1012/facility-ratelimiter/internal/ratelimiter"
	"github.com/lowc1012/facility-ratelimiter/internal/utils"
	"go.uber.org/zap"
)

const (
	rateLimitLimit     = "X-RateLimit-Limit"
	rateLimitRemaining = "X-RateLimit-Remaining"
	rateLimitReset     = "X-RateLimit-Reset"
	retryAfter         = "Retry-After"
	requestID          = "X-Request-Id"

	exceededMessage = "Too many requests. Please slow down and try again later."
)

// Config defines the configuration for the rate limiter handler.
type Config struct {
	Extractor utils.Extractor
	Limiter   *limiter.Limiter
	Policy    limiter.Policy
}

type httpRateLimiterHandler struct {
	handler http.Handler
	config  *Config
}

// Wrap returns a handler that evaluates policy for every request before calling
// handler. Denied requests get a 429 response and never reach handler. When
// extractor is nil the client is identified by its proxy headers alone.
func Wrap(handler http.Handler, l *limiter.Limiter, policy limiter.Policy, extractor utils.Extractor) http.Handler {
	if extractor == nil {
		extractor = utils.NewClientExtractor(nil)
	}
	return NewHTTPRateLimiterHandler(handler, &Config{
		Extractor: extractor,
		Limiter:   l,
		Policy:    policy,
	})
}

// Middleware is Wrap in the func(http.Handler) http.Handler shape routers expect.
func Middleware(l *limiter.Limiter, policy limiter.Policy, extractor utils.Extractor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return Wrap(next, l, policy, extractor)
	}
}

// NewHTTPRateLimiterHandler wraps an existing http.Handler object performing rate limiting before
// sending the request to the wrapped handler.
func NewHTTPRateLimiterHandler(originalHandler http.Handler, config *Config) http.Handler {
	return &httpRateLimiterHandler{
		handler: originalHandler,
		config:  config,
	}
}

// exceededBody is the JSON payload of a 429 response.
type exceededBody struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter"`
	RequestID  string `json:"requestId"`
}

// ServeHTTP performs rate limiting and, if the request was allowed, sends it to the
// wrapped handler. Rate limit headers are set on both outcomes so the client
// knows where it stands.
func (h *httpRateLimiterHandler) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	key, err := h.config.Extractor.Extract(request)
	if err != nil {
		log.Logger().Warn("Failed to extract rate limiting key, using fallback", zap.Error(err))
		key = utils.UnknownClient
	}

	decision := h.config.Limiter.Evaluate(request.Context(), h.config.Policy, key)

	writer.Header().Set(rateLimitLimit, strconv.Itoa(decision.Limit))
	writer.Header().Set(rateLimitRemaining, strconv.Itoa(decision.Remaining))
	writer.Header().Set(rateLimitReset, strconv.FormatInt(decision.WindowEndsAt.Unix(), 10))

	if exceeded := limiter.Translate(decision, h.config.Limiter.Now()); exceeded != nil {
		id := request.Header.Get(requestID)
		if id == "" {
			id = uuid.NewString()
		}
		writer.Header().Set(retryAfter, strconv.Itoa(exceeded.RetryAfterSeconds))
		writeJSON(writer, http.StatusTooManyRequests, exceededBody{
			Error:      "rate_limit_exceeded",
			Message:    exceededMessage,
			RetryAfter: exceeded.RetryAfterSeconds,
			RequestID:  id,
		})
		return
	}

	// only allowed requests reach the wrapped handler; the headers above are
	// flushed together with whatever it writes
	h.handler.ServeHTTP(writer, request)
}

// statusBody is the JSON payload of the status probe.
type statusBody struct {
	Limit     int   `json:"limit"`
	Remaining int   `json:"remaining"`
	Reset     int64 `json:"reset"`
}

// StatusHandler serves the non-mutating quota probe for policy. Remaining is the
// policy default, not the stored count.
func StatusHandler(l *limiter.Limiter, policy limiter.Policy, extractor utils.Extractor) http.Handler {
	if extractor == nil {
		extractor = utils.NewClientExtractor(nil)
	}
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		key, _ := extractor.Extract(request)
		status := l.Status(policy, key)
		writeJSON(writer, http.StatusOK, statusBody{
			Limit:     status.Limit,
			Remaining: status.Remaining,
			Reset:     status.WindowEndsAt.Unix(),
		})
	})
}

func writeJSON(writer http.ResponseWriter, status int, body interface{}) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	if err := json.NewEncoder(writer).Encode(body); err != nil {
		log.Logger().Warn("Failed to write body to HTTP response", zap.Error(err))
	}
}
