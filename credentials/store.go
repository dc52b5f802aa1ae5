package credentials

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultExpiryBuffer is how early an access token counts as expired.
const DefaultExpiryBuffer = 30 * time.Second

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Store persists the token pair through a Storage.
type Store struct {
	storage Storage
	nowFunc func() time.Time
	logger  zerolog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithNowFunc sets the clock used for expiry checks.
func WithNowFunc(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.nowFunc = now
	}
}

func WithLogger(logger zerolog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates a Store over storage.
func NewStore(storage Storage, options ...StoreOption) *Store {
	s := &Store{
		storage: storage,
		logger:  log.Logger,
	}
	for _, opt := range options {
		opt(s)
	}
	if s.nowFunc == nil {
		s.nowFunc = func() time.Time { return NowTimeFunc() }
	}
	s.logger = s.logger.With().Str("component", "credentials").Logger()
	return s
}

// StoreTokens writes all four credential fields. Batch-capable storage gets a
// single atomic write, otherwise the refresh fields are written before the
// access fields.
func (s *Store) StoreTokens(ctx context.Context, pair TokenPair) error {
	if err := pair.Validate(); err != nil {
		return err
	}

	if batch, ok := s.storage.(BatchStorage); ok {
		values := map[string]string{
			KeyRefreshToken:          pair.RefreshToken,
			KeyRefreshTokenExpiresAt: formatTime(pair.RefreshTokenExpiresAt),
			KeyAccessToken:           pair.AccessToken,
			KeyAccessTokenExpiresAt:  formatTime(pair.AccessTokenExpiresAt),
		}
		if err := batch.SetMany(ctx, values); err != nil {
			return fmt.Errorf("Store.StoreTokens SetMany: %w", err)
		}
		return nil
	}

	writes := []struct{ key, value string }{
		{KeyRefreshToken, pair.RefreshToken},
		{KeyRefreshTokenExpiresAt, formatTime(pair.RefreshTokenExpiresAt)},
		{KeyAccessToken, pair.AccessToken},
		{KeyAccessTokenExpiresAt, formatTime(pair.AccessTokenExpiresAt)},
	}
	for _, w := range writes {
		if err := s.storage.Set(ctx, w.key, w.value); err != nil {
			return fmt.Errorf("Store.StoreTokens Set %s: %w", w.key, err)
		}
	}
	return nil
}

// GetTokens returns the stored pair, or nil when either token is absent.
func (s *Store) GetTokens(ctx context.Context) (*TokenPair, error) {
	access, err := s.read(ctx, KeyAccessToken)
	if err != nil {
		return nil, err
	}
	refresh, err := s.read(ctx, KeyRefreshToken)
	if err != nil {
		return nil, err
	}
	if access == "" || refresh == "" {
		return nil, nil
	}

	accessExp, err := s.readTime(ctx, KeyAccessTokenExpiresAt)
	if err != nil {
		return nil, err
	}
	refreshExp, err := s.readTime(ctx, KeyRefreshTokenExpiresAt)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:           access,
		RefreshToken:          refresh,
		AccessTokenExpiresAt:  accessExp,
		RefreshTokenExpiresAt: refreshExp,
	}, nil
}

// AccessToken returns the stored access token, or "" when there is none.
func (s *Store) AccessToken(ctx context.Context) (string, error) {
	return s.read(ctx, KeyAccessToken)
}

// ClearTokens removes every credential key including the legacy bearer token.
// All keys are attempted even if one removal fails.
func (s *Store) ClearTokens(ctx context.Context) error {
	var errs []error
	for _, key := range []string{
		KeyAccessToken,
		KeyRefreshToken,
		KeyAccessTokenExpiresAt,
		KeyRefreshTokenExpiresAt,
		KeyLegacyBearerToken,
	} {
		if err := s.storage.Remove(ctx, key); err != nil && !apperrors.Is(err, ErrNotFound) {
			errs = append(errs, fmt.Errorf("remove %s: %w", key, err))
		}
	}
	if len(errs) > 0 {
		return apperrors.Wrapf(apperrors.Join(errs...), "Store.ClearTokens")
	}
	return nil
}

// IsAccessTokenExpired is true when now >= expiresAt - buffer or the expiry is unknown.
func (s *Store) IsAccessTokenExpired(ctx context.Context, buffer time.Duration) (bool, error) {
	exp, err := s.readTime(ctx, KeyAccessTokenExpiresAt)
	if err != nil {
		return true, err
	}
	return TokenPair{AccessTokenExpiresAt: exp}.AccessExpired(s.nowFunc(), buffer), nil
}

// IsRefreshTokenExpired is true when now >= expiresAt or the expiry is unknown.
func (s *Store) IsRefreshTokenExpired(ctx context.Context) (bool, error) {
	exp, err := s.readTime(ctx, KeyRefreshTokenExpiresAt)
	if err != nil {
		return true, err
	}
	return TokenPair{RefreshTokenExpiresAt: exp}.RefreshExpired(s.nowFunc()), nil
}

// Now is the store's clock.
func (s *Store) Now() time.Time {
	return s.nowFunc()
}

func (s *Store) read(ctx context.Context, key string) (string, error) {
	v, err := s.storage.Get(ctx, key)
	if apperrors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", apperrors.Wrapf(err, "Store read %s", key)
	}
	return v, nil
}

func (s *Store) readTime(ctx context.Context, key string) (time.Time, error) {
	raw, err := s.read(ctx, key)
	if err != nil || raw == "" {
		return time.Time{}, err
	}
	t, ok := parseTime(raw)
	if !ok {
		s.logger.Warn().Str("key", key).Msg("Unparsable expiry, treating as unknown")
	}
	return t, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime accepts RFC 3339 timestamps and unix milliseconds.
func parseTime(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t, true
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(ms), true
	}
	return time.Time{}, false
}
