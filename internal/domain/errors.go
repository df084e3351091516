package domain

import "errors"

// Common errors
var (
	ErrNotFound  = errors.New("record not found")
	ErrForbidden = errors.New("access forbidden")
	ErrConflict  = errors.New("record was modified by another request, retry")

	ErrInvalidInput      = errors.New("invalid input")
	ErrInconsistentState = errors.New("inconsistent membership state")

	ErrDuplicatePhone = errors.New("member with this phone already exists")
	ErrDuplicateEmail = errors.New("email is already in use")

	ErrInvalidCredentials = errors.New("incorrect email or password")
	ErrTokenInvalid       = errors.New("token is invalid or has expired")
)
