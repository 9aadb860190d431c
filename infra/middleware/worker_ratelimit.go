package middleware

import (
	"math"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"triage_worker/pkg/apperr"
	"triage_worker/pkg/ratelimit"
)

// RateLimit rejects callers over their window with 429 and Retry-After.
// The caller is the token subject when authenticated, else the client IP.
func RateLimit(limiter ratelimit.Limiter, group string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, _ := c.Locals(SubjectKey).(string)
		if caller == "" {
			caller = c.IP()
		}

		allowed, wait := limiter.Allow(c.UserContext(), ratelimit.Key(group, caller))
		if allowed {
			return c.Next()
		}

		seconds := int(math.Ceil(wait.Seconds()))
		if seconds < 1 {
			seconds = 1
		}
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(seconds))
		return apperr.RateLimited()
	}
}
