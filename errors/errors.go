package errors

import "fmt"

var (
	ErrWorkerPanic        = fmt.Errorf("worker panic")
	ErrEmptyIdentity      = fmt.Errorf("identity must not be empty")
	ErrNotAuthenticated   = fmt.Errorf("connection is not authenticated")
	ErrIdentityMismatch   = fmt.Errorf("declared identity does not match the resolved token")
	ErrMissingFields      = fmt.Errorf("payload is missing required fields")
	ErrUserAlreadyExists  = fmt.Errorf("a user with this email already exists")
	ErrUserNotFound       = fmt.Errorf("user not found")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrInvalidPassword    = fmt.Errorf("password does not meet complexity requirements")
	ErrTokenGeneration    = fmt.Errorf("failed to generate token")
	ErrInvalidToken       = fmt.Errorf("invalid or expired token")
)
