package rocketchat

import (
	"errors"
	"fmt"
)

// Error types reported by the server in the "errorType" field.
const (
	ErrTypeCouldNotSaveIdentity = "error-could-not-save-identity"
	ErrTypeInvalidUsername      = "error-invalid-username"
	ErrTypeFieldUnavailable     = "error-field-unavailable"
	ErrTypeNotAllowed           = "error-not-allowed"
)

var (
	// ErrLoginFailed wraps the server's answer when login did not succeed.
	ErrLoginFailed = errors.New("rocketchat: login failed")
	// ErrNoUsernameSuggestion means the server did not offer a username.
	ErrNoUsernameSuggestion = errors.New("rocketchat: no username suggestion")
)

// APIError is a failure reported inside a response body. Callers can use
// errors.As to inspect it:
//
//	var apiErr *APIError
//	if errors.As(err, &apiErr) && apiErr.ErrorType == ErrTypeNotAllowed { ... }
type APIError struct {
	// StatusCode is the HTTP status of the response.
	StatusCode int
	// Status is the "status" discriminator, set by login and logout.
	Status string
	// ErrorType is the machine-readable "errorType" field, if any.
	ErrorType string
	// Message is the human-readable "error" or "message" field.
	Message string
}

func (e *APIError) Error() string {
	if e.ErrorType != "" {
		return fmt.Sprintf("rocketchat: %s (%d): %s", e.ErrorType, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("rocketchat: %d: %s", e.StatusCode, e.Message)
}

// IsErrorType reports whether err is an *APIError with the given error type.
func IsErrorType(err error, errorType string) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorType == errorType
	}
	return false
}
