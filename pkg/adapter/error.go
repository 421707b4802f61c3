package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// statusOverloaded is Anthropic's "overloaded" response code.
const statusOverloaded = 529

// AdapterError carries the provider status behind a failed Generate call.
type AdapterError struct {
	Provider  string
	Status    int
	Temporary bool
	Err       error
}

func (e *AdapterError) Error() string {
	if e == nil {
		return "adapter error"
	}
	prefix := e.Provider
	if prefix == "" {
		prefix = "adapter"
	}
	switch {
	case e.Err != nil && e.Status != 0:
		return fmt.Sprintf("%s (status %d): %v", prefix, e.Status, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", prefix, e.Err)
	default:
		return fmt.Sprintf("%s: status %d", prefix, e.Status)
	}
}

func (e *AdapterError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsTransient reports whether a classifier call that failed with err may be
// retried. Caller cancellation never is.
func IsTransient(err error) bool {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, context.DeadlineExceeded):
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var ae *AdapterError
	if !errors.As(err, &ae) {
		return false
	}
	if ae.Temporary {
		return true
	}
	switch ae.Status {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, statusOverloaded:
		return true
	}
	return ae.Status >= 500 && ae.Status <= 599
}

// IsAuth reports whether err is a rejected credential. These are worth a
// louder log line since every later call will fail the same way.
func IsAuth(err error) bool {
	var ae *AdapterError
	return errors.As(err, &ae) && (ae.Status == http.StatusUnauthorized || ae.Status == http.StatusForbidden)
}
