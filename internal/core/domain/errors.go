// Package domain defines the core domain models for metalgate.
package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a business domain error with a structured error code.
//
// Codes follow the MG-<AREA>-<NNNN> format; the trailing digits mirror the
// closest HTTP status so that transports can map them mechanically.
type DomainError struct {
	Code    string // Error code (e.g., "MG-AUTH-4011")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// DetailOf returns the most specific human-readable text of err: the
// details of a DomainError when present, its message otherwise.
func DetailOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		if de.Details != "" {
			return de.Details
		}
		return de.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// ============================================================================
// Authentication Errors (AUTH)
// ============================================================================

var (
	// ErrInvalidCredentials indicates the login credentials were rejected.
	ErrInvalidCredentials = NewDomainError("MG-AUTH-4010", "invalid credentials")

	// ErrSessionExpired indicates an authenticated call was rejected and the
	// session has been torn down. The caller must log in again.
	ErrSessionExpired = NewDomainError("MG-AUTH-4011", "session expired")

	// ErrNotAuthenticated indicates an authenticated operation was attempted
	// without an authenticated session.
	ErrNotAuthenticated = NewDomainError("MG-AUTH-4012", "not authenticated")

	// ErrUserExists indicates the username is already registered.
	ErrUserExists = NewDomainError("MG-AUTH-4090", "username already registered")

	// ErrUserNotFound indicates the user does not exist.
	ErrUserNotFound = NewDomainError("MG-AUTH-4040", "user not found")
)

// ============================================================================
// API Key Errors (KEY)
// ============================================================================

var (
	// ErrAPIKeyNotFound indicates the API key was not found.
	ErrAPIKeyNotFound = NewDomainError("MG-KEY-4040", "API key not found")

	// ErrAPIKeyConflict indicates the API key already exists.
	ErrAPIKeyConflict = NewDomainError("MG-KEY-4090", "API key already exists")

	// ErrAPIKeyInactive indicates the API key is unknown or disabled.
	ErrAPIKeyInactive = NewDomainError("MG-KEY-4010", "invalid or inactive API key")
)

// ============================================================================
// Price Errors (PRICE)
// ============================================================================

var (
	// ErrUpstreamUnavailable indicates a commodity quote could not be obtained.
	// It is per-commodity and never fatal to the rest of an aggregate.
	ErrUpstreamUnavailable = NewDomainError("MG-PRICE-5020", "upstream unavailable")

	// ErrUnknownCommodity indicates the commodity is not supported.
	ErrUnknownCommodity = NewDomainError("MG-PRICE-4000", "unknown commodity")
)

// ============================================================================
// Transport and System Errors (NET, SYS)
// ============================================================================

var (
	// ErrNetwork indicates a transport-level failure. Callers may retry manually.
	ErrNetwork = NewDomainError("MG-NET-5030", "network error")

	// ErrRequestFailed indicates the server answered with an unexpected status.
	ErrRequestFailed = NewDomainError("MG-NET-5000", "request failed")

	// ErrNotFound indicates the server could not find the requested resource.
	ErrNotFound = NewDomainError("MG-NET-4040", "not found")

	// ErrStorage indicates a storage layer error.
	ErrStorage = NewDomainError("MG-SYS-5001", "storage error")

	// ErrInternal indicates an internal server error.
	ErrInternal = NewDomainError("MG-SYS-5000", "internal server error")
)

// ============================================================================
// Argument Errors (ARG)
// ============================================================================

var (
	// ErrValidation indicates input was rejected. Details carry the server
	// message verbatim when it originates from the collaborator API.
	ErrValidation = NewDomainError("MG-ARG-4000", "validation failed")
)
