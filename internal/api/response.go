// Package api exposes targets, actions, views and the alert pipeline over HTTP.
package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"pgsentry/internal/domain"
)

// APIError is the body of every error response.
type APIError struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

// Error codes.
const (
	ErrCodeBadRequest           = "BAD_REQUEST"
	ErrCodeNoCredentials        = "NO_CREDENTIALS"
	ErrCodeIncorrectCredentials = "INCORRECT_CREDENTIALS"
	ErrCodeNotEnoughPermissions = "NOT_ENOUGH_PERMISSIONS"
	ErrCodeNotFound             = "NOT_FOUND"
	ErrCodeTargetNotFound       = "TARGET_NOT_FOUND"
	ErrCodeActionNotFound       = "ACTION_NOT_FOUND"
	ErrCodeViewNotFound         = "VIEW_NOT_FOUND"
	ErrCodeAlertNotFound        = "ALERT_NOT_FOUND"
	ErrCodeArgumentRequired     = "ARGUMENT_REQUIRED"
	ErrCodeWrongArgumentType    = "WRONG_ARGUMENT_TYPE"
	ErrCodeInternalError        = "INTERNAL_ERROR"
)

// Success sends data as a 200 JSON response.
func Success(c *fiber.Ctx, data any) error {
	return c.JSON(data)
}

// Error sends an error JSON response with the given status code.
func Error(c *fiber.Ctx, status int, code, detail string) error {
	return c.Status(status).JSON(APIError{Code: code, Detail: detail})
}

// BadRequest sends a 400 Bad Request error response.
func BadRequest(c *fiber.Ctx, detail string) error {
	return Error(c, fiber.StatusBadRequest, ErrCodeBadRequest, detail)
}

// InternalError sends a 500 response without exposing the cause.
func InternalError(c *fiber.Ctx) error {
	return Error(c, fiber.StatusInternalServerError, ErrCodeInternalError, "internal server error")
}

// statusFor maps a domain error to its HTTP status and code. ok is false for
// errors that have no client-facing meaning.
func statusFor(err error) (status int, code string, ok bool) {
	var (
		actionNotFound *domain.ActionNotFoundError
		viewNotFound   *domain.ViewNotFoundError
		argRequired    *domain.ArgumentRequiredError
		wrongType      *domain.WrongArgumentTypeError
		stepErr        *domain.StepError
		fiberErr       *fiber.Error
	)

	switch {
	case errors.Is(err, domain.ErrNoCredentials):
		return fiber.StatusUnauthorized, ErrCodeNoCredentials, true
	case errors.Is(err, domain.ErrIncorrectCredentials):
		return fiber.StatusUnauthorized, ErrCodeIncorrectCredentials, true
	case errors.Is(err, domain.ErrNotEnoughPermissions):
		return fiber.StatusForbidden, ErrCodeNotEnoughPermissions, true
	case errors.Is(err, domain.ErrTargetNotFound):
		return fiber.StatusNotFound, ErrCodeTargetNotFound, true
	case errors.Is(err, domain.ErrAlertNotFound):
		return fiber.StatusNotFound, ErrCodeAlertNotFound, true
	case errors.As(err, &actionNotFound):
		return fiber.StatusNotFound, ErrCodeActionNotFound, true
	case errors.As(err, &viewNotFound):
		return fiber.StatusNotFound, ErrCodeViewNotFound, true
	case errors.As(err, &argRequired):
		return fiber.StatusBadRequest, ErrCodeArgumentRequired, true
	case errors.As(err, &wrongType):
		return fiber.StatusBadRequest, ErrCodeWrongArgumentType, true
	case errors.As(err, &stepErr):
		return fiber.StatusBadGateway, string(stepErr.Kind), true
	case errors.As(err, &fiberErr):
		code := ErrCodeBadRequest
		switch {
		case fiberErr.Code == fiber.StatusNotFound:
			code = ErrCodeNotFound
		case fiberErr.Code >= fiber.StatusInternalServerError:
			return fiberErr.Code, ErrCodeInternalError, true
		}
		return fiberErr.Code, code, true
	}
	return 0, "", false
}
