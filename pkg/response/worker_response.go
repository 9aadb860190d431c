// Package response provides the JSON envelope shared by handlers and the
// error middleware.
package response

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// =============================================================================
// Standard API Response
// =============================================================================

// Response is the standard API response structure.
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Meta      *Meta      `json:"meta,omitempty"`
	RequestID string     `json:"request_id,omitempty"`
	Timestamp string     `json:"timestamp"`
}

// ErrorInfo contains error details.
type ErrorInfo struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Meta contains list metadata.
type Meta struct {
	Total int `json:"total"`
	Limit int `json:"limit,omitempty"`
}

// RequestIDKey is the fiber Locals key holding the request id.
const RequestIDKey = "request_id"

// =============================================================================
// Response Builders
// =============================================================================

func envelope(c *fiber.Ctx) Response {
	requestID, _ := c.Locals(RequestIDKey).(string)
	return Response{
		RequestID: requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// OK returns a successful response.
func OK(c *fiber.Ctx, data any) error {
	r := envelope(c)
	r.Success = true
	r.Data = data
	return c.JSON(r)
}

// OKWithMeta returns a successful response with metadata.
func OKWithMeta(c *fiber.Ctx, data any, meta *Meta) error {
	r := envelope(c)
	r.Success = true
	r.Data = data
	r.Meta = meta
	return c.JSON(r)
}

// Created returns a 201 created response.
func Created(c *fiber.Ctx, data any) error {
	c.Status(fiber.StatusCreated)
	return OK(c, data)
}

// Accepted returns a 202 accepted response.
func Accepted(c *fiber.Ctx, data any) error {
	c.Status(fiber.StatusAccepted)
	return OK(c, data)
}

// Error returns an error response.
func Error(c *fiber.Ctx, status int, info *ErrorInfo) error {
	r := envelope(c)
	r.Error = info
	return c.Status(status).JSON(r)
}
