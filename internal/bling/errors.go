package bling

import (
	"errors"
	"fmt"
)

// ErrRetriesExhausted marks a call that failed after the full attempt budget.
var ErrRetriesExhausted = errors.New("retries exhausted")

// ErrUnauthorized marks a call the remote kept rejecting with 401 even after
// the refresh retries allowed per call.
var ErrUnauthorized = errors.New("unauthorized after token refresh")

// APIError is a non-success response from the remote API.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("api status %d", e.Status)
	}
	return fmt.Sprintf("api status %d: %s", e.Status, e.Body)
}

// IsNotFound reports whether err is a remote 404.
func IsNotFound(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Status == 404
}
