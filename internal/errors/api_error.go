package errors

import (
	"net/http"
	"time"
)

// APIError is the error every service returns to the HTTP layer. Cause is
// the underlying failure; it is logged but never sent to the client.
type APIError struct {
	Status  int         `json:"-"`
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	Cause   error       `json:"-"`
}

func (e *APIError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Cause
}

// WithCause records err as the cause and returns e.
func (e *APIError) WithCause(err error) *APIError {
	e.Cause = err
	return e
}

// Body is the JSON error envelope written for e.
func (e *APIError) Body() map[string]interface{} {
	body := map[string]interface{}{
		"code":    e.Code,
		"message": e.Message,
	}
	if e.Details != nil {
		body["details"] = e.Details
	}
	return map[string]interface{}{"error": body}
}

func New(status int, code, message string) *APIError {
	return &APIError{
		Status:  status,
		Code:    code,
		Message: message,
	}
}

func Internal(message string) *APIError {
	if message == "" {
		message = "internal server error"
	}
	return New(http.StatusInternalServerError, "internal_error", message)
}

func BadRequest(code, message string) *APIError {
	return New(http.StatusBadRequest, code, message)
}

func Unauthorized(message string) *APIError {
	if message == "" {
		message = "unauthorized"
	}
	return New(http.StatusUnauthorized, "unauthorized", message)
}

func Forbidden(message string) *APIError {
	if message == "" {
		message = "forbidden"
	}
	return New(http.StatusForbidden, "forbidden", message)
}

func NotFound(code, message string) *APIError {
	return New(http.StatusNotFound, code, message)
}

func Conflict(code, message string, details interface{}) *APIError {
	err := New(http.StatusConflict, code, message)
	err.Details = details
	return err
}

// TooManyRequests carries the retry delay in details so clients can back off.
func TooManyRequests(message string, retryAfter time.Duration) *APIError {
	if message == "" {
		message = "too many requests"
	}
	err := New(http.StatusTooManyRequests, "too_many_requests", message)
	if retryAfter > 0 {
		err.Details = map[string]interface{}{"retryAfterMs": retryAfter.Milliseconds()}
	}
	return err
}

func InvalidJSON() *APIError {
	return BadRequest("invalid_json", "invalid request body")
}
