// Package business_flow contains the domain flows behind the HTTP surface
package business_flow

import (
	"errors"
	"fmt"
)

// Domain errors returned by flows. Handlers map these onto HTTP statuses.
var (
	ErrLinkNotFound      = errors.New("short link not found")
	ErrUserDoesNotExist  = errors.New("user does not exist")
	ErrInvalidPassword   = errors.New("invalid password")
	ErrSessionNotFound   = errors.New("session not found or expired")
	ErrCodeExhausted     = errors.New("could not allocate a free short code")
	ErrShortCodeConflict = errors.New("short code was claimed concurrently")
	ErrInvalidInput      = errors.New("invalid input")
	ErrCacheUnavailable  = errors.New("cache is unavailable")
	ErrInternalServer    = errors.New("internal server error")
	ErrDatabaseOperation = errors.New("database operation failed")
)

// BusinessError wraps a domain error with a stable code and a message safe
// to return to clients.
type BusinessError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

// NewBusinessError creates a new business error with a code and message
func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Error code constants used in client-facing responses
const (
	ErrCodeLinkNotFound     = "LINK_NOT_FOUND"
	ErrCodeUserNotFound     = "USER_NOT_FOUND"
	ErrCodeInvalidPassword  = "INVALID_PASSWORD"
	ErrCodeSessionNotFound  = "SESSION_NOT_FOUND"
	ErrCodeShortCodeTaken   = "SHORT_CODE_CONFLICT"
	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeDatabaseError    = "DATABASE_ERROR"
)

// IsNotFound reports whether err is a not-found domain error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrLinkNotFound) ||
		errors.Is(err, ErrUserDoesNotExist) ||
		errors.Is(err, ErrSessionNotFound)
}

// IsAuthenticationError reports whether err should surface as a 401
func IsAuthenticationError(err error) bool {
	return errors.Is(err, ErrInvalidPassword) ||
		errors.Is(err, ErrSessionNotFound)
}
