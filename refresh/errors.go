package refresh

import (
	"errors"
	"fmt"
)

// ErrAuthExpired means the session can no longer be authenticated. Every
// refresh failure satisfies errors.Is(err, ErrAuthExpired).
var ErrAuthExpired = errors.New("authentication expired")

var (
	ErrRefreshFailed       = fmt.Errorf("%w: token refresh failed", ErrAuthExpired)
	ErrNoRefreshFunc       = fmt.Errorf("%w: no refresh function configured", ErrAuthExpired)
	ErrNoRefreshToken      = fmt.Errorf("%w: no refresh token stored", ErrAuthExpired)
	ErrRefreshTokenExpired = fmt.Errorf("%w: refresh token expired", ErrAuthExpired)
)

func refreshFailure(cause error) error {
	if cause == nil {
		return ErrRefreshFailed
	}
	return fmt.Errorf("%w: %w", ErrRefreshFailed, cause)
}
