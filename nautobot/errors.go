package nautobot

import (
	"errors"
	"fmt"
	"net/http"
)

// Error classes of inventory calls.
var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrUnreachable  = errors.New("inventory unreachable")
)

// APIError - Non-2xx response from the inventory API.
type APIError struct {
	Method     string
	Endpoint   string
	StatusCode int
	Body       string
}

func (err *APIError) Error() string {
	body := err.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("%v %v: status %v: %v", err.Method, err.Endpoint, err.StatusCode, body)
}

// Unwrap - Class of the error, for errors.Is.
func (err *APIError) Unwrap() error {
	switch err.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	}
	return nil
}

// IsFatal - If the error means every further call would fail too.
func IsFatal(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}
