package model

import (
	"errors"
	"fmt"
)

// Sentinel errors for the client-side failure taxonomy.
// Use errors.Is() to check against these.
var (
	// ErrNetwork marks requests that could not complete at all.
	ErrNetwork = errors.New("network failure")
	// ErrUnauthorized marks 401 responses. Handled inside the request
	// wrapper's refresh-and-retry protocol; callers only ever observe it
	// as ErrSessionExpired.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrRejected marks 4xx responses carrying a structured message
	// (stock exceeded, invalid coupon, and so on).
	ErrRejected = errors.New("request rejected")
	// ErrServer marks 5xx responses.
	ErrServer = errors.New("server failure")
	// ErrSessionExpired is the terminal signal after a failed
	// refresh-and-retry: the session is gone and the caller must not
	// retry.
	ErrSessionExpired = errors.New("session expired")
	// ErrRateLimited marks 429 responses.
	ErrRateLimited = errors.New("rate limited")
)

// APIError is the structured error surfaced to callers for display.
// StatusCode is 0 when no HTTP response was received (the "N/A" case).
// Implements error and supports unwrapping to the sentinels above.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Err        error  `json:"-"`
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Status renders the status code for display, "N/A" when no response
// was received.
func (e *APIError) Status() string {
	if e.StatusCode == 0 {
		return "N/A"
	}
	return fmt.Sprintf("%d", e.StatusCode)
}

// NewNetworkError wraps a transport-level failure (no HTTP response).
func NewNetworkError(err error) *APIError {
	return &APIError{
		Code:       "NETWORK_FAILURE",
		Message:    "request could not complete",
		StatusCode: 0,
		Err:        fmt.Errorf("%w: %v", ErrNetwork, err),
	}
}

// NewUnauthorizedError creates a 401 error for auth failures.
func NewUnauthorizedError(reason string) *APIError {
	return &APIError{
		Code:       "UNAUTHORIZED",
		Message:    reason,
		StatusCode: 401,
		Err:        ErrUnauthorized,
	}
}

// NewDomainError creates an error for a 4xx response with a structured
// message. Callers map well-known messages (stock exceeded, invalid
// coupon) to user-facing text.
func NewDomainError(statusCode int, message string) *APIError {
	if message == "" {
		message = "request rejected"
	}
	return &APIError{
		Code:       "DOMAIN_REJECTION",
		Message:    message,
		StatusCode: statusCode,
		Err:        ErrRejected,
	}
}

// NewServerError creates an error for a 5xx response.
func NewServerError(statusCode int, message string) *APIError {
	if message == "" {
		message = "backend request failed"
	}
	return &APIError{
		Code:       "SERVER_FAILURE",
		Message:    message,
		StatusCode: statusCode,
		Err:        ErrServer,
	}
}

// NewSessionExpiredError creates the terminal error returned after a
// failed refresh. Callers treat it as "no further action possible".
func NewSessionExpiredError() *APIError {
	return &APIError{
		Code:       "SESSION_EXPIRED",
		Message:    "session expired, sign in again",
		StatusCode: 401,
		Err:        ErrSessionExpired,
	}
}

// NewValidationError creates a 400 error for input the client rejects
// before issuing a request.
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Code:       "VALIDATION_ERROR",
		Message:    fmt.Sprintf("invalid %s: %s", field, reason),
		StatusCode: 400,
		Err:        ErrRejected,
	}
}

// NewRateLimitError creates a 429 error.
func NewRateLimitError(message string) *APIError {
	if message == "" {
		message = "rate limit exceeded, please retry later"
	}
	return &APIError{
		Code:       "RATE_LIMITED",
		Message:    message,
		StatusCode: 429,
		Err:        ErrRateLimited,
	}
}

// AsAPIError extracts an *APIError from an error chain, wrapping
// unknown errors as network failures so callers always get the
// {status, message} shape.
func AsAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return NewNetworkError(err)
}
