package bootstrap

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"triage_worker/pkg/apperr"
	"triage_worker/pkg/response"
)

const devTokenTTL = time.Hour

// RegisterDevRoutes adds development-only helpers. They must never be
// registered in production.
func RegisterDevRoutes(app *fiber.App, secret string) {
	dev := app.Group("/dev")

	// POST /dev/token {"subject": "..."} issues a short lived reviewer token.
	dev.Post("/token", func(c *fiber.Ctx) error {
		var req struct {
			Subject string `json:"subject"`
		}
		if err := c.BodyParser(&req); err != nil || req.Subject == "" {
			return apperr.MissingField("subject")
		}

		now := time.Now()
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Subject:   req.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(devTokenTTL)),
		}).SignedString([]byte(secret))
		if err != nil {
			return apperr.InternalWithError(err)
		}
		return response.OK(c, fiber.Map{
			"token":      token,
			"expires_at": now.Add(devTokenTTL).UTC().Format(time.RFC3339),
		})
	})
}
