package models

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// Error codes carried by AppError. Handlers map these onto HTTP statuses and
// websocket error frames; services return them without knowing the transport.
const (
	CodeAuthError       = "AUTH_ERROR"
	CodeNotAuthorized   = "NOT_AUTHORIZED"
	CodeNotFound        = "NOT_FOUND"
	CodeAlreadyExists   = "ALREADY_EXISTS"
	CodeAlreadyResolved = "ALREADY_RESOLVED"
	CodeAlreadyFriends  = "ALREADY_FRIENDS"
	CodeNotFriends      = "NOT_FRIENDS"
	CodeValidationError = "VALIDATION_ERROR"
	CodeInternalError   = "INTERNAL_ERROR"
)

// AppError is the application error type. Message is safe to show to clients;
// Err holds the internal cause and never crosses the wire.
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewAuthError(message string) *AppError {
	return &AppError{Code: CodeAuthError, Message: message}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{Code: CodeNotAuthorized, Message: message}
}

func NewNotFoundError(message string) *AppError {
	return &AppError{Code: CodeNotFound, Message: message}
}

func NewAlreadyExistsError(message string) *AppError {
	return &AppError{Code: CodeAlreadyExists, Message: message}
}

func NewAlreadyResolvedError(message string) *AppError {
	return &AppError{Code: CodeAlreadyResolved, Message: message}
}

func NewAlreadyFriendsError(message string) *AppError {
	return &AppError{Code: CodeAlreadyFriends, Message: message}
}

func NewNotFriendsError(message string) *AppError {
	return &AppError{Code: CodeNotFriends, Message: message}
}

func NewValidationError(message string) *AppError {
	return &AppError{Code: CodeValidationError, Message: message}
}

func NewInternalError(err error) *AppError {
	return &AppError{Code: CodeInternalError, Message: "internal server error", Err: err}
}

// StatusForError maps an error to an HTTP status code.
func StatusForError(err error) int {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return fiber.StatusInternalServerError
	}
	switch appErr.Code {
	case CodeAuthError:
		return fiber.StatusUnauthorized
	case CodeNotAuthorized, CodeNotFriends:
		return fiber.StatusForbidden
	case CodeNotFound:
		return fiber.StatusNotFound
	case CodeAlreadyExists, CodeAlreadyResolved, CodeAlreadyFriends:
		return fiber.StatusConflict
	case CodeValidationError:
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

// RespondWithError writes a JSON error response. Internal errors are reported
// without their underlying detail.
func RespondWithError(c *fiber.Ctx, err error) error {
	status := StatusForError(err)

	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Code != CodeInternalError {
		return c.Status(status).JSON(fiber.Map{
			"error": appErr.Message,
			"code":  appErr.Code,
		})
	}

	return c.Status(status).JSON(fiber.Map{
		"error": "internal server error",
		"code":  CodeInternalError,
	})
}
