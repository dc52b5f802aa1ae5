package client

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-auth-client/internal/redact"
	"github.com/rs/zerolog"
)

// HeaderRequestID correlates a request with its log lines.
const HeaderRequestID = "X-Request-Id"

// RoundTripperFunc adapts a function to http.RoundTripper.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

// Middleware wraps a transport.
type Middleware func(http.RoundTripper) http.RoundTripper

// Chain applies middleware outer to inner, so mw[0] sees the request first.
func Chain(base http.RoundTripper, mw ...Middleware) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	chained := base
	for i := len(mw) - 1; i >= 0; i-- {
		chained = mw[i](chained)
	}
	return chained
}

// NewTransport is the transport every client in the process shares:
// request metadata first, then logging, then base.
func NewTransport(base http.RoundTripper, logger zerolog.Logger, userAgent string) http.RoundTripper {
	return Chain(base, WithMetadata(userAgent), WithLogging(logger))
}

// WithMetadata sets X-Request-Id (unless the caller already did), User-Agent and Accept.
func WithMetadata(userAgent string) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			r = r.Clone(r.Context())
			if r.Header.Get(HeaderRequestID) == "" {
				r.Header.Set(HeaderRequestID, uuid.NewString())
			}
			if userAgent != "" {
				r.Header.Set("User-Agent", userAgent)
			}
			if r.Header.Get("Accept") == "" {
				r.Header.Set("Accept", "application/json")
			}
			return next.RoundTrip(r)
		})
	}
}

// WithLogging writes one entry for the outbound request and one for its outcome.
// Only the method, the redacted URL and the request id are logged, never headers
// or bodies.
func WithLogging(logger zerolog.Logger) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			start := time.Now()
			l := logger.With().
				Str("method", r.Method).
				Str("url", redact.URLValue(r.URL)).
				Str("request_id", r.Header.Get(HeaderRequestID)).
				Logger()

			if evt := l.Debug(); evt.Enabled() {
				evt.Interface("headers", redact.Header(r.Header)).Msg("HTTP request")
			}

			resp, err := next.RoundTrip(r)
			if err != nil {
				l.Error().Err(err).Dur("dur", time.Since(start)).Msg("HTTP request failed")
				return nil, err
			}

			evt := l.Info()
			if resp.StatusCode >= http.StatusBadRequest {
				evt = l.Warn()
			}
			evt.Int("status", resp.StatusCode).Dur("dur", time.Since(start)).Msg("HTTP response")
			return resp, nil
		})
	}
}
