package fakeapi

import (
	"encoding/json"
	"net/http"
	"time"
)

const contentTypeJSON = "application/json; charset=utf-8"

// tokenPayload is the token shape returned inside the {"data": ...} envelope.
type tokenPayload struct {
	AccessToken           string    `json:"access_token"`
	RefreshToken          string    `json:"refresh_token"`
	AccessTokenExpiresAt  time.Time `json:"access_token_expires_at"`
	RefreshTokenExpiresAt time.Time `json:"refresh_token_expires_at"`
	ExpiresIn             int       `json:"expires_in"`
}

func newTokenPayload(t *issuedTokens) tokenPayload {
	return tokenPayload{
		AccessToken:           t.AccessToken,
		RefreshToken:          t.RefreshToken,
		AccessTokenExpiresAt:  t.AccessTokenExpiresAt.UTC(),
		RefreshTokenExpiresAt: t.RefreshTokenExpiresAt.UTC(),
		ExpiresIn:             int(t.AccessTokenExpiresAt.Sub(t.IssuedAt).Seconds()),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeData wraps v in the {"data": v} envelope, adding any metadata fields.
func writeData(w http.ResponseWriter, status int, v any, meta map[string]any) {
	body := map[string]any{"data": v}
	for k, m := range meta {
		body[k] = m
	}
	writeJSON(w, status, body)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// writeOAuthError writes an OAuth2 error response
func writeOAuthError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	writeJSON(w, statusCode, map[string]string{
		"error":             errorCode,
		"error_description": description,
	})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
