package httpx

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/amjacademy/messaging-backend/internal/apperrors"
)

type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func requestID(c *fiber.Ctx) string {
	if v := c.Locals("requestid"); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func Error(c *fiber.Ctx, status int, code string, message string) error {
	if message == "" {
		message = "Request failed"
	}
	return c.Status(status).JSON(ErrorResponse{
		Error:     message,
		Code:      code,
		RequestID: requestID(c),
	})
}

func BadRequest(c *fiber.Ctx, code string, message string) error {
	return Error(c, fiber.StatusBadRequest, code, message)
}

func Unauthorized(c *fiber.Ctx, code string, message string) error {
	return Error(c, fiber.StatusUnauthorized, code, message)
}

func Forbidden(c *fiber.Ctx, code string, message string) error {
	return Error(c, fiber.StatusForbidden, code, message)
}

func NotFound(c *fiber.Ctx, code string, message string) error {
	return Error(c, fiber.StatusNotFound, code, message)
}

func Conflict(c *fiber.Ctx, code string, message string) error {
	return Error(c, fiber.StatusConflict, code, message)
}

func Internal(c *fiber.Ctx, code string) error {
	return Error(c, fiber.StatusInternalServerError, code, "Internal server error")
}

// FromAppError maps a service-layer coded error onto an HTTP response.
// ALREADY_EXISTS is mapped to 409 for the rare caller that surfaces it;
// conversation creation races never reach here (resolved in the service).
func FromAppError(c *fiber.Ctx, err error) error {
	var ae *apperrors.AppError
	if !errors.As(err, &ae) {
		return Internal(c, "internal_error")
	}
	switch ae.Code {
	case apperrors.CodeInvalidArgument:
		return BadRequest(c, "invalid_argument", ae.Message)
	case apperrors.CodeNotFound:
		return NotFound(c, "not_found", ae.Message)
	case apperrors.CodeAlreadyExists:
		return Conflict(c, "already_exists", ae.Message)
	case apperrors.CodeFailedPrecondition:
		return BadRequest(c, "failed_precondition", ae.Message)
	default:
		return Internal(c, "internal_error")
	}
}

func LocalUint(c *fiber.Ctx, key string) (uint, error) {
	v := c.Locals(key)
	if v == nil {
		return 0, fmt.Errorf("missing local %s", key)
	}
	u, ok := v.(uint)
	if !ok {
		return 0, fmt.Errorf("invalid local %s", key)
	}
	return u, nil
}

func LocalString(c *fiber.Ctx, key string) string {
	if v := c.Locals(key); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
