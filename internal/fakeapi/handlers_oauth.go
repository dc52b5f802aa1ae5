package fakeapi

import (
	"net/http"
)

// oauthTokenResponse is the RFC 6749 token endpoint response.
type oauthTokenResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int    `json:"expires_in,omitempty"`
	RefreshToken     string `json:"refresh_token,omitempty"`
	RefreshExpiresIn int    `json:"refresh_expires_in,omitempty"`
}

// WellKnownOpenIDConfig serves the OIDC discovery document. The issuer is the
// URL the request arrived on.
func (s *Server) WellKnownOpenIDConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		baseURL := getScheme(r) + "://" + r.Host

		resp := map[string]any{
			"issuer":                   baseURL,
			"authorization_endpoint":   baseURL + "/oauth2/authorize",
			"token_endpoint":           baseURL + RouteOAuth2Token,
			"jwks_uri":                 baseURL + RouteWellKnownJWKS,
			"response_types_supported": []string{"code"},
			"subject_types_supported":  []string{"public"},
			"grant_types_supported":    []string{"refresh_token"},

			"id_token_signing_alg_values_supported": []string{s.signer.GetSigningMethod().Alg()},
			"token_endpoint_auth_methods_supported": []string{"client_secret_basic", "client_secret_post"},
		}

		w.Header().Set("Cache-Control", "public, max-age=3600")
		writeJSON(w, http.StatusOK, resp)
	}
}

// WellKnownJWKS serves the public keys that verify access tokens.
func (s *Server) WellKnownJWKS() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		writeJSON(w, http.StatusOK, s.signer.JWKS())
	}
}

// Token implements the refresh_token grant.
func (s *Server) Token() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.refreshCount.Add(1)
		s.sleepForRefresh(r)

		if err := r.ParseForm(); err != nil {
			writeOAuthError(w, "invalid_request", "Failed to parse form data", http.StatusBadRequest)
			return
		}
		if r.FormValue("grant_type") != "refresh_token" {
			writeOAuthError(w, "unsupported_grant_type", "Only refresh_token is supported", http.StatusBadRequest)
			return
		}
		if s.failRefresh.Load() {
			writeOAuthError(w, "invalid_grant", "refresh token revoked", http.StatusBadRequest)
			return
		}

		tokens, err := s.rotateRefreshToken(r.FormValue("refresh_token"))
		if err != nil {
			writeOAuthError(w, "invalid_grant", err.Error(), http.StatusBadRequest)
			return
		}

		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Pragma", "no-cache")
		writeJSON(w, http.StatusOK, oauthTokenResponse{
			AccessToken:      tokens.AccessToken,
			TokenType:        "Bearer",
			ExpiresIn:        int(tokens.AccessTokenExpiresAt.Sub(tokens.IssuedAt).Seconds()),
			RefreshToken:     tokens.RefreshToken,
			RefreshExpiresIn: int(tokens.RefreshTokenExpiresAt.Sub(tokens.IssuedAt).Seconds()),
		})
	}
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
