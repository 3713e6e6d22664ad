package access

import (
	"errors"
	"net/http"

	"access-service/internal/models"
	"access-service/internal/service"
)

// Code is the machine readable reason carried by every guard failure.
type Code string

const (
	CodeAuthenticationRequired Code = "AUTHENTICATION_REQUIRED"
	CodeInvalidToken           Code = "INVALID_TOKEN"
	CodeSessionNotFound        Code = "SESSION_NOT_FOUND"
	CodeSessionExpired         Code = "SESSION_EXPIRED"
	CodeNotAdministrator       Code = "NOT_ADMINISTRATOR"
	CodeRateLimitExceeded      Code = "RATE_LIMIT_EXCEEDED"
	CodePermissionDenied       Code = "PERMISSION_DENIED"
	CodeValidationError        Code = "VALIDATION_ERROR"
	CodeNotFound               Code = "NOT_FOUND"
	CodeInternalError          Code = "INTERNAL_ERROR"
)

// Error is a failure that is safe to show to the caller. The cause, if any,
// is kept for logging and never serialized.
type Error struct {
	Code       Code                `json:"code"`
	Message    string              `json:"message"`
	RetryAfter int                 `json:"retryAfter,omitempty"`
	Required   []models.Permission `json:"required,omitempty"`
	Held       []models.Permission `json:"held,omitempty"`
	Violations []string            `json:"violations,omitempty"`

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return string(e.Code) + ": " + e.Message + ": " + e.cause.Error()
	}
	return string(e.Code) + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Status maps the code to an HTTP status.
func (e *Error) Status() int {
	switch e.Code {
	case CodeAuthenticationRequired, CodeInvalidToken, CodeSessionNotFound, CodeSessionExpired:
		return http.StatusUnauthorized
	case CodeNotAdministrator, CodePermissionDenied:
		return http.StatusForbidden
	case CodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case CodeValidationError:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Internal wraps cause behind the generic internal error message.
func Internal(cause error) *Error {
	return &Error{Code: CodeInternalError, Message: "An internal error occurred", cause: cause}
}

// FromAuth translates an admin credential failure into a guard error.
// Errors that are not credential failures become internal errors.
func FromAuth(err error) *Error {
	switch {
	case errors.Is(err, service.ErrTokenMissing):
		return &Error{Code: CodeAuthenticationRequired, Message: "Admin authentication required", cause: err}
	case errors.Is(err, service.ErrTokenInvalid):
		return &Error{Code: CodeInvalidToken, Message: "Invalid admin token", cause: err}
	case errors.Is(err, service.ErrTokenOrphaned):
		return &Error{Code: CodeSessionNotFound, Message: "Admin session not found", cause: err}
	case errors.Is(err, service.ErrAdminSessionExpired):
		return &Error{Code: CodeSessionExpired, Message: "Admin session expired", cause: err}
	case errors.Is(err, service.ErrBaseSessionRequired):
		return &Error{Code: CodeAuthenticationRequired, Message: "A valid session is required", cause: err}
	case errors.Is(err, service.ErrNotAdministrator):
		return &Error{Code: CodeNotAdministrator, Message: "Administrator access required", cause: err}
	default:
		return Internal(err)
	}
}

// AsError returns err as an *Error, converting anything else to an
// internal error.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}
