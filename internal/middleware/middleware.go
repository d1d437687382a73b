package middleware

import (
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/popeskul/insdr-dispatcher/internal/config"
)

// Config holds middleware configuration.
type Config struct {
	Logger *zap.Logger

	CORS *CORSConfig

	RateLimit      rate.Limit
	RateLimitBurst int

	RequestTimeout time.Duration
}

// NewConfig maps the middleware section of the application config.
func NewConfig(cfg config.MiddlewareConfig, logger *zap.Logger) *Config {
	c := &Config{
		Logger:         logger,
		RateLimit:      rate.Limit(cfg.RateLimit),
		RateLimitBurst: cfg.RateLimitBurst,
		RequestTimeout: time.Duration(cfg.RequestTimeout) * time.Second,
	}
	if cfg.RateLimit <= 0 {
		c.RateLimit = rate.Inf
	}
	if c.RateLimitBurst <= 0 {
		c.RateLimitBurst = 1
	}
	if cfg.EnableCORS {
		c.CORS = DefaultCORSConfig(cfg.AllowedOrigins...)
	}
	return c
}

// Chain creates a middleware chain with all configured middleware. The
// returned stop func ends the rate limiter's cleanup loop.
func Chain(config *Config) (func(http.Handler) http.Handler, func()) {
	rateLimiter := NewRateLimiter(config.RateLimit, config.RateLimitBurst)

	return func(handler http.Handler) http.Handler {
		// outer to inner: logger, request id, recovery, cors, rate limit, timeout
		h := handler

		h = Timeout(config.RequestTimeout)(h)

		h = rateLimiter.Middleware()(h)

		if config.CORS != nil {
			h = CORS(config.CORS)(h)
		}

		h = Recovery(config.Logger)(h)

		h = Logger(config.Logger)(h)

		h = RequestID(h)

		return h
	}, rateLimiter.Stop
}
