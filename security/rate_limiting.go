package security

import (
	"fmt"
	"strings"
	"time"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

// RateLimiter throttles booking traffic per caller with a Redis
// fixed-window counter, shared across instances.
type RateLimiter struct {
	redis     *redis.Client
	perMinute int
}

func NewRateLimiter(redisClient *redis.Client, perMinute int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 30
	}
	return &RateLimiter{redis: redisClient, perMinute: perMinute}
}

// BookingRateLimit limits booking-path requests per authenticated account,
// falling back to the client IP for anonymous calls.
func (r *RateLimiter) BookingRateLimit() func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		caller := e.RealIP()
		if e.Auth != nil {
			caller = fmt.Sprintf("user:%s", e.Auth.Id)
		}
		key := fmt.Sprintf("ratelimit:%s", caller)

		count, err := r.redis.Incr(e.Request.Context(), key).Result()
		if err == nil {
			if count == 1 {
				r.redis.Expire(e.Request.Context(), key, time.Minute)
			}
			if count > int64(r.perMinute) {
				return e.JSON(429, map[string]string{
					"error": "Too many requests. Please try again later.",
				})
			}
		}
		// A Redis hiccup must not take the booking path down with it.

		return e.Next()
	}
}

// AntiBotMiddleware rejects obvious scripted clients before they reach the
// seat map polling endpoints.
func (r *RateLimiter) AntiBotMiddleware() func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		if isSuspiciousUserAgent(e.Request.Header.Get("User-Agent")) {
			return e.JSON(403, map[string]string{
				"error": "Access denied",
			})
		}
		return e.Next()
	}
}

func isSuspiciousUserAgent(ua string) bool {
	suspicious := []string{"bot", "crawler", "spider", "scraper"}
	for _, pattern := range suspicious {
		if strings.Contains(strings.ToLower(ua), pattern) {
			return true
		}
	}
	return false
}

// RequireAdminKey guards the administrative endpoints with a static key
// checked against its bcrypt hash from configuration.
func RequireAdminKey(keyHash string) func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		key := e.Request.Header.Get("X-Admin-Key")
		if key == "" {
			return apis.NewUnauthorizedError("missing admin key", nil)
		}
		if err := bcrypt.CompareHashAndPassword([]byte(keyHash), []byte(key)); err != nil {
			return apis.NewForbiddenError("invalid admin key", nil)
		}
		return e.Next()
	}
}
