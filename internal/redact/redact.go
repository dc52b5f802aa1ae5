// Package redact scrubs credentials out of values that end up in logs.
package redact

import (
	"net/http"
	"net/url"
	"strings"
)

const (
	redactedToken = "[REDACTED_TOKEN]"
	redactedValue = "[REDACTED]"
)

// sensitiveParams are query parameters that carry credentials.
var sensitiveParams = []string{
	"access_token",
	"refresh_token",
	"id_token",
	"token",
	"code",
	"client_secret",
	"password",
}

// sensitiveHeaders are never written to logs verbatim.
var sensitiveHeaders = []string{
	"Authorization",
	"Proxy-Authorization",
	"Cookie",
	"Set-Cookie",
}

// Token is the placeholder logged in place of a token value.
func Token() string { return redactedToken }

// URL returns u as a string with credential-bearing query values replaced.
// Unparsable input is returned fully redacted.
func URL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return redactedValue
	}
	return URLValue(u)
}

// URLValue is URL for an already parsed *url.URL. The input is not modified.
func URLValue(u *url.URL) string {
	if u == nil {
		return ""
	}
	clone := *u
	if clone.User != nil {
		clone.User = url.User(clone.User.Username())
	}
	if clone.RawQuery == "" {
		return clone.String()
	}

	q := clone.Query()
	changed := false
	for _, p := range sensitiveParams {
		for key := range q {
			if strings.EqualFold(key, p) {
				q.Set(key, redactedValue)
				changed = true
			}
		}
	}
	if changed {
		clone.RawQuery = q.Encode()
	}
	return clone.String()
}

// Header returns a copy of h that is safe to log.
func Header(h http.Header) http.Header {
	out := h.Clone()
	for _, name := range sensitiveHeaders {
		if out.Get(name) == "" {
			continue
		}
		if name == "Authorization" || name == "Proxy-Authorization" {
			scheme, _, _ := strings.Cut(out.Get(name), " ")
			out.Set(name, scheme+" "+redactedToken)
			continue
		}
		out.Set(name, redactedValue)
	}
	return out
}
