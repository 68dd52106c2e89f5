package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// visitorTTL is how long an idle client keeps its bucket.
const visitorTTL = 10 * time.Minute

// visitor tracks the rate limit state for a single IP.
type visitor struct {
	tokens    float64
	lastCheck time.Time
}

// RateLimiter is a per-IP token-bucket rate limiter guarding the
// conversion endpoints.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     float64 // tokens per second
	burst    int     // max tokens
	now      func() time.Time
}

// NewRateLimiter creates a rate limiter with the given rate (requests/sec)
// and burst size. Stale visitors are swept until ctx is done.
func NewRateLimiter(ctx context.Context, rps float64, burst int) *RateLimiter {
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rps,
		burst:    burst,
		now:      time.Now,
	}

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.cleanup()
			}
		}
	}()

	return rl
}

// Middleware returns an echo middleware function that enforces rate limits.
func (rl *RateLimiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			if !rl.allow(ip) {
				slog.Warn("rate limit exceeded", "ip", ip, "path", c.Path())
				return c.JSON(http.StatusTooManyRequests, echo.Map{
					"error": "Too many conversion requests, try again later",
				})
			}
			return next(c)
		}
	}
}

func (rl *RateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[ip]
	now := rl.now()

	if !exists {
		rl.visitors[ip] = &visitor{
			tokens:    float64(rl.burst) - 1,
			lastCheck: now,
		}
		return rl.burst > 0
	}

	// Refill based on elapsed time
	elapsed := now.Sub(v.lastCheck).Seconds()
	v.tokens += elapsed * rl.rate
	if v.tokens > float64(rl.burst) {
		v.tokens = float64(rl.burst)
	}
	v.lastCheck = now

	if v.tokens < 1 {
		return false
	}

	v.tokens--
	return true
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-visitorTTL)
	for ip, v := range rl.visitors {
		if v.lastCheck.Before(cutoff) {
			delete(rl.visitors, ip)
		}
	}
}

// RequestLogger returns an echo middleware that logs requests using slog.
// Failed conversions are logged at warn level.
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			req := c.Request()
			res := c.Response()

			level := slog.LevelInfo
			if res.Status >= http.StatusBadRequest {
				level = slog.LevelWarn
			}

			slog.Log(req.Context(), level, "request",
				"method", req.Method,
				"path", req.URL.Path,
				"route", c.Path(),
				"status", res.Status,
				"latency_ms", time.Since(start).Milliseconds(),
				"ip", c.RealIP(),
				"bytes_in", req.ContentLength,
				"bytes_out", res.Size,
			)

			return err
		}
	}
}
