package client

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrInvalidBaseURL is returned by New for relative or non-http URLs.
var ErrInvalidBaseURL = errors.New("invalid base url")

// NetworkError is a request that never produced an HTTP response.
type NetworkError struct {
	Method string
	URL    string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: network error: %v", e.Method, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Timeout reports whether the request ran out of time.
func (e *NetworkError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}

// HTTPError is a response with status >= 400. Err is set when a 401 could
// not be recovered because the refresh was rejected.
type HTTPError struct {
	StatusCode int
	Method     string
	URL        string
	Detail     string
	Body       []byte
	Retried    bool
	Err        error
}

func (e *HTTPError) Error() string {
	msg := fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.StatusCode)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *HTTPError) Unwrap() error { return e.Err }

// StatusCode extracts the HTTP status from err, or 0 if err is not an *HTTPError.
func StatusCode(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode
	}
	return 0
}
