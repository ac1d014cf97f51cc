package api

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrUnauthorized       = errors.New("api: unauthorized")
	ErrInvalidResponse    = errors.New("api: invalid server response")
	ErrMissingCalendarID  = errors.New("api: calendar id is empty")
	ErrMismatchedResponse = errors.New("api: response count does not match request")
)

// Error is a failed API call. Code is the API error code from the response
// body when one was sent.
type Error struct {
	Op         string
	StatusCode int
	Code       int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("api %s: %s: %v", e.Op, e.Message, e.Err)
	case e.StatusCode != 0 && e.Code != 0:
		return fmt.Sprintf("api %s: %s (status %d, code %d)", e.Op, e.Message, e.StatusCode, e.Code)
	case e.StatusCode != 0:
		return fmt.Sprintf("api %s: %s (status %d)", e.Op, e.Message, e.StatusCode)
	default:
		return fmt.Sprintf("api %s: %s", e.Op, e.Message)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsTemporary reports whether the same call may succeed later.
func (e *Error) IsTemporary() bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
		http.StatusRequestTimeout:
		return true
	}
	return false
}

func newStatusError(op string, status, code int, message string) *Error {
	e := &Error{Op: op, StatusCode: status, Code: code, Message: message}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		e.Err = ErrUnauthorized
	}
	return e
}

func wrapError(op, message string, err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return &Error{Op: op, Message: message, Err: err}
}
