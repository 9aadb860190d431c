// Package http exposes the triage services over fiber.
package http

import (
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"

	"triage_worker/infra/middleware"
	"triage_worker/pkg/apperr"
)

// parseBody decodes the JSON request body into v.
func parseBody(c *fiber.Ctx, v any) error {
	if len(c.Body()) == 0 {
		return apperr.BadRequest("request body is required")
	}
	if err := json.Unmarshal(c.Body(), v); err != nil {
		return apperr.BadRequest("invalid request body").WithDetail("reason", err.Error())
	}
	return nil
}

// subject returns the authenticated caller, or "" when auth is disabled.
func subject(c *fiber.Ctx) string {
	s, _ := c.Locals(middleware.SubjectKey).(string)
	return s
}

// queryLimit reads ?limit= clamped to [1, max].
func queryLimit(c *fiber.Ctx, def, max int) int {
	limit := c.QueryInt("limit", def)
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
