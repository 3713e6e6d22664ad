package service

import "errors"

var (
	ErrBaseSessionRequired = errors.New("a valid session is required")
	ErrNotAdministrator    = errors.New("user is not an administrator")

	ErrTokenMissing        = errors.New("admin token missing")
	ErrTokenInvalid        = errors.New("admin token invalid")
	ErrTokenOrphaned       = errors.New("admin session not found for token")
	ErrAdminSessionExpired = errors.New("admin session expired")

	ErrUnknownAction = errors.New("unknown rate limited action")
)

// IsAuthFailure reports whether err is one of the admin credential failures.
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrTokenMissing) ||
		errors.Is(err, ErrTokenInvalid) ||
		errors.Is(err, ErrTokenOrphaned) ||
		errors.Is(err, ErrAdminSessionExpired)
}
