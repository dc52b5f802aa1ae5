package credentials

import (
	"context"

	apperrors "github.com/jrsteele09/go-auth-client/internal/errors"
)

// Storage keys
const (
	KeyAccessToken           = "access_token"
	KeyRefreshToken          = "refresh_token"
	KeyAccessTokenExpiresAt  = "access_token_expires_at"
	KeyRefreshTokenExpiresAt = "refresh_token_expires_at"

	// KeyLegacyBearerToken held the single bearer token of older app versions.
	// It is only ever removed.
	KeyLegacyBearerToken = "bearer_token"
)

// ErrNotFound is returned by Storage.Get when the key has no value.
var ErrNotFound = apperrors.ErrNotFound

// Storage is durable, encrypted-at-rest key/value storage.
type Storage interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// BatchStorage is implemented by storage that can write several keys atomically.
type BatchStorage interface {
	Storage
	SetMany(ctx context.Context, values map[string]string) error
}
