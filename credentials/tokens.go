package credentials

import (
	"errors"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// ErrInvalidTokenPair is returned when a pair is missing either token.
var ErrInvalidTokenPair = errors.New("token pair requires both an access and a refresh token")

// TokenPair is the credential set the client authenticates with.
// A zero expiry means the expiry is unknown and is treated as expired.
type TokenPair struct {
	AccessToken           string    `json:"access_token"`
	RefreshToken          string    `json:"refresh_token"`
	AccessTokenExpiresAt  time.Time `json:"access_token_expires_at"`
	RefreshTokenExpiresAt time.Time `json:"refresh_token_expires_at"`
}

// Validate rejects pairs with an empty token.
func (p TokenPair) Validate() error {
	if strings.TrimSpace(p.AccessToken) == "" || strings.TrimSpace(p.RefreshToken) == "" {
		return ErrInvalidTokenPair
	}
	return nil
}

// AccessExpired reports whether now is within buffer of the access token expiry.
func (p TokenPair) AccessExpired(now time.Time, buffer time.Duration) bool {
	if p.AccessTokenExpiresAt.IsZero() {
		return true
	}
	return !now.Before(p.AccessTokenExpiresAt.Add(-buffer))
}

// RefreshExpired reports whether the refresh token expiry has passed.
func (p TokenPair) RefreshExpired(now time.Time) bool {
	if p.RefreshTokenExpiresAt.IsZero() {
		return true
	}
	return !now.Before(p.RefreshTokenExpiresAt)
}

// ExpiryFromJWT returns the exp claim of a JWT without verifying its signature.
// Opaque tokens and tokens without exp give the zero time.
func ExpiryFromJWT(rawToken string) time.Time {
	if strings.Count(rawToken, ".") != 2 {
		return time.Time{}
	}

	token, _, err := jwtlib.NewParser().ParseUnverified(rawToken, jwtlib.MapClaims{})
	if err != nil {
		return time.Time{}
	}

	exp, err := token.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
