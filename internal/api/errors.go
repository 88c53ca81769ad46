package api

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"trigger-console/internal/auth"
	"trigger-console/internal/console"
	"trigger-console/internal/editor"
	"trigger-console/internal/listview"
	"trigger-console/internal/platform"
)

type AppError struct {
	Code    string        `json:"code"`
	Status  int           `json:"-"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
}

type ErrorDetail struct {
	Field   string `json:"field,omitempty"`
	Rule    string `json:"rule,omitempty"`
	Message string `json:"message"`
}

func (e *AppError) Error() string {
	return e.Message
}

type ErrorResponse struct {
	Error *AppError `json:"error"`
}

func NewAppError(code string, status int, msg string) *AppError {
	return &AppError{Code: code, Status: status, Message: msg}
}

func NotFoundError(kind, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Status:  404,
		Message: fmt.Sprintf("%s %s not found", kind, id),
	}
}

func ValidationError(details []ErrorDetail) *AppError {
	return &AppError{
		Code:    "VALIDATION_FAILED",
		Status:  422,
		Message: "Validation failed",
		Details: details,
	}
}

func UnauthorizedError(msg string) *AppError {
	return &AppError{Code: "UNAUTHORIZED", Status: 401, Message: msg}
}

func ForbiddenError(msg string) *AppError {
	return &AppError{Code: "FORBIDDEN", Status: 403, Message: msg}
}

func ConflictError(msg string) *AppError {
	return &AppError{Code: "CONFLICT", Status: 409, Message: msg}
}

func InvalidPayloadError(msg string) *AppError {
	return &AppError{Code: "INVALID_PAYLOAD", Status: 400, Message: msg}
}

// toAppError maps domain errors onto HTTP errors. Unknown errors map to nil.
func toAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var verr *editor.ValidationError
	if errors.As(err, &verr) {
		details := make([]ErrorDetail, len(verr.Fields))
		for i, f := range verr.Fields {
			details[i] = ErrorDetail{Field: string(f.Field), Rule: "invalid", Message: f.Message}
		}
		return ValidationError(details)
	}

	var serr *platform.ServiceError
	if errors.As(err, &serr) {
		return &AppError{Code: "PLATFORM_ERROR", Status: 502, Message: serr.Error()}
	}

	switch {
	case errors.Is(err, editor.ErrUnknownField),
		errors.Is(err, editor.ErrInvalidValue),
		errors.Is(err, listview.ErrUnknownEvent):
		return InvalidPayloadError(err.Error())
	case errors.Is(err, editor.ErrReadOnly):
		return ForbiddenError("Built-in records cannot be edited or cloned")
	case errors.Is(err, editor.ErrSubmitInProgress):
		return ConflictError("A submission is already in progress")
	case errors.Is(err, editor.ErrClosed):
		return &AppError{Code: "EDITOR_CLOSED", Status: 409, Message: "Editor is closed"}
	case errors.Is(err, console.ErrEditorNotFound):
		return &AppError{Code: "NOT_FOUND", Status: 404, Message: err.Error()}
	case errors.Is(err, listview.ErrNotVisible):
		return &AppError{Code: "NOT_FOUND", Status: 404, Message: err.Error()}
	case errors.Is(err, console.ErrClosed):
		return &AppError{Code: "UNAVAILABLE", Status: 503, Message: "Console is shutting down"}
	case errors.Is(err, auth.ErrInvalidCredentials):
		return UnauthorizedError("Invalid username or password")
	case errors.Is(err, auth.ErrAccountDisabled):
		return UnauthorizedError("Account is disabled")
	case errors.Is(err, auth.ErrInvalidRefreshToken):
		return UnauthorizedError("Invalid refresh token")
	case errors.Is(err, auth.ErrRefreshTokenExpired):
		return UnauthorizedError("Refresh token expired")
	}
	return nil
}

// ErrorHandler renders every error as an ErrorResponse.
func ErrorHandler(c *fiber.Ctx, err error) error {
	if appErr := toAppError(err); appErr != nil {
		return c.Status(appErr.Status).JSON(ErrorResponse{Error: appErr})
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(ErrorResponse{
			Error: &AppError{Code: "HTTP_ERROR", Message: fiberErr.Message},
		})
	}

	log.Errorf("api: %s %s: %v", c.Method(), c.Path(), err)
	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
		Error: &AppError{
			Code:    "INTERNAL_ERROR",
			Message: "Internal server error",
		},
	})
}
