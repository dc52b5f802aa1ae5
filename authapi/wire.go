package authapi

import (
	"time"

	"github.com/jrsteele09/go-auth-client/credentials"
	"github.com/jrsteele09/go-auth-client/internal/utils"
)

// TokenResponse is the token payload the auth endpoints return inside the
// {"data": ...} envelope.
type TokenResponse struct {
	// AccessToken is the bearer token for API calls.
	AccessToken string `json:"access_token,omitempty"`

	// RefreshToken is exchanged for a new pair when the access token expires.
	// Rotated on each use.
	RefreshToken string `json:"refresh_token,omitempty"`

	// AccessTokenExpiresAt and RefreshTokenExpiresAt are absolute expiries.
	// Either may be missing, in which case ExpiresIn/RefreshExpiresIn or the
	// JWT exp claim are used instead.
	AccessTokenExpiresAt  *time.Time `json:"access_token_expires_at,omitempty"`
	RefreshTokenExpiresAt *time.Time `json:"refresh_token_expires_at,omitempty"`

	// ExpiresIn is the lifetime in seconds of the access token.
	ExpiresIn int `json:"expires_in,omitempty"`

	// RefreshExpiresIn is the lifetime in seconds of the refresh token.
	RefreshExpiresIn int `json:"refresh_expires_in,omitempty"`

	// OTPRequired is set by login when a one-time code must be verified
	// before tokens are issued.
	OTPRequired bool `json:"otp_required,omitempty"`
}

// TokenPair converts the response, resolving expiries against now. A nil
// pair is returned when the response carries no access token.
func (tr *TokenResponse) TokenPair(now time.Time) *credentials.TokenPair {
	if tr == nil || tr.AccessToken == "" {
		return nil
	}
	return &credentials.TokenPair{
		AccessToken:           tr.AccessToken,
		RefreshToken:          tr.RefreshToken,
		AccessTokenExpiresAt:  resolveExpiry(tr.AccessTokenExpiresAt, tr.ExpiresIn, tr.AccessToken, now),
		RefreshTokenExpiresAt: resolveExpiry(tr.RefreshTokenExpiresAt, tr.RefreshExpiresIn, tr.RefreshToken, now),
	}
}

// resolveExpiry prefers an explicit timestamp, then a relative lifetime, then
// the token's own exp claim when it is a JWT.
func resolveExpiry(explicit *time.Time, lifetimeSeconds int, token string, now time.Time) time.Time {
	if exp := utils.Value(explicit); !exp.IsZero() {
		return exp.UTC()
	}
	if lifetimeSeconds > 0 {
		return now.Add(time.Duration(lifetimeSeconds) * time.Second).UTC()
	}
	if exp := credentials.ExpiryFromJWT(token); !exp.IsZero() {
		return exp.UTC()
	}
	return time.Time{}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type otpRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}
