package http

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/streetblock/internal/core/domain"
)

// APIError is a structured error response.
type APIError struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`    // Error code: bad_request, ambiguous_intersection, upstream_exhausted, etc.
	Message   string `json:"message"` // Human-readable message
	RequestID string `json:"request_id,omitempty"`
	Details   any    `json:"details,omitempty"`
}

func newError(c *fiber.Ctx, status int, code, message string, details any) error {
	reqID, _ := c.Locals("requestid").(string)
	if reqID == "" {
		reqID = RequestIDFromCtx(c.UserContext())
	}
	return c.Status(status).JSON(APIError{
		Status:    status,
		Code:      code,
		Message:   message,
		RequestID: reqID,
		Details:   details,
	})
}

// errBadRequest returns a 400 error.
func errBadRequest(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusBadRequest, "bad_request", msg, nil)
}

// errInternal returns a 500 error.
func errInternal(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusInternalServerError, "internal_error", msg, nil)
}

// respondError maps service errors to HTTP responses.
func respondError(c *fiber.Ctx, err error) error {
	var (
		malformed *domain.MalformedChainError
		ambiguous *domain.AmbiguousIntersectionError
		exhausted *domain.ExhaustedAttemptsError
	)
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		return errBadRequest(c, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return newError(c, fiber.StatusGatewayTimeout, "timeout", "request timed out", nil)
	case errors.As(err, &ambiguous):
		return newError(c, fiber.StatusUnprocessableEntity, "ambiguous_intersection", err.Error(), ambiguous.Attempts)
	case errors.As(err, &malformed):
		return newError(c, fiber.StatusUnprocessableEntity, "malformed_chain", err.Error(), fiber.Map{"reason": malformed.Reason})
	case errors.As(err, &exhausted):
		endpoints := make([]string, len(exhausted.Failures))
		for i, f := range exhausted.Failures {
			endpoints[i] = f.Endpoint.String()
		}
		return newError(c, fiber.StatusBadGateway, "upstream_exhausted", err.Error(), fiber.Map{"endpoints": endpoints})
	default:
		LoggerFromCtx(c.UserContext()).Error("unhandled error", "error", err)
		return errInternal(c, err.Error())
	}
}
