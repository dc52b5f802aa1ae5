// Package authapi talks to the backend's auth endpoints. It owns the calls
// that create and destroy a session (login, registration, OTP verification,
// logout) and provides the refresh functions the refresh coordinator runs.
//
// Everything here goes through a raw client: no bearer attachment and no 401
// recovery, so a refresh can never recurse into another refresh.
package authapi

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jrsteele09/go-auth-client/client"
	"github.com/jrsteele09/go-auth-client/credentials"
	"github.com/jrsteele09/go-auth-client/internal/redact"
	"github.com/jrsteele09/go-auth-client/refresh"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrNoTokens is returned when a token endpoint answered without an access token.
var ErrNoTokens = errors.New("auth response carried no tokens")

// Paths are the auth endpoints relative to the API base URL.
type Paths struct {
	Login     string
	Register  string
	VerifyOTP string
	Refresh   string
	Logout    string
}

// DefaultPaths are used unless WithPaths or WithRefreshPath is given.
var DefaultPaths = Paths{
	Login:     "/auth/login",
	Register:  "/auth/register",
	VerifyOTP: "/auth/otp/verify",
	Refresh:   "/auth/refresh",
	Logout:    "/auth/logout",
}

// LoginResult tells the caller whether a one-time code is still needed.
type LoginResult struct {
	OTPRequired bool
}

// Service calls the auth endpoints and stores the resulting pair.
type Service struct {
	client  *client.Client
	store   *credentials.Store
	paths   Paths
	logger  zerolog.Logger
	nowFunc func() time.Time
}

var _ refresh.Func = (*Service)(nil).Refresh

// Option configures a Service.
type Option func(*Service)

// WithPaths replaces every endpoint path.
func WithPaths(p Paths) Option {
	return func(s *Service) {
		s.paths = p
	}
}

func WithRefreshPath(path string) Option {
	return func(s *Service) {
		if path != "" {
			s.paths.Refresh = path
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService builds the auth service. raw must not carry a refresher.
func NewService(raw *client.Client, store *credentials.Store, options ...Option) *Service {
	s := &Service{
		client: raw,
		store:  store,
		paths:  DefaultPaths,
		logger: log.Logger,
	}
	for _, opt := range options {
		opt(s)
	}
	s.nowFunc = store.Now
	s.logger = s.logger.With().Str("component", "authapi").Logger()
	return s
}

// Login authenticates with email and password and stores the issued pair.
// When the account needs a one-time code nothing is stored and
// LoginResult.OTPRequired is set; finish with VerifyOTP.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	tr, err := s.post(ctx, s.paths.Login, credentialsRequest{Email: email, Password: password})
	if err != nil {
		return nil, fmt.Errorf("Service.Login: %w", err)
	}
	if tr.OTPRequired {
		s.logger.Info().Msg("Login requires a one-time code")
		return &LoginResult{OTPRequired: true}, nil
	}
	if err := s.storeResponse(ctx, tr); err != nil {
		return nil, fmt.Errorf("Service.Login: %w", err)
	}
	return &LoginResult{}, nil
}

// Register creates an account and stores its first token pair.
func (s *Service) Register(ctx context.Context, email, password string) error {
	tr, err := s.post(ctx, s.paths.Register, credentialsRequest{Email: email, Password: password})
	if err != nil {
		return fmt.Errorf("Service.Register: %w", err)
	}
	if err := s.storeResponse(ctx, tr); err != nil {
		return fmt.Errorf("Service.Register: %w", err)
	}
	return nil
}

// VerifyOTP completes a login that needed a one-time code.
func (s *Service) VerifyOTP(ctx context.Context, email, code string) error {
	tr, err := s.post(ctx, s.paths.VerifyOTP, otpRequest{Email: email, Code: code})
	if err != nil {
		return fmt.Errorf("Service.VerifyOTP: %w", err)
	}
	if err := s.storeResponse(ctx, tr); err != nil {
		return fmt.Errorf("Service.VerifyOTP: %w", err)
	}
	return nil
}

// Logout tells the backend to drop the refresh token and clears local
// credentials. The backend call is best effort; local state is always cleared.
func (s *Service) Logout(ctx context.Context) error {
	pair, err := s.store.GetTokens(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Could not read tokens for logout")
	}
	if pair != nil {
		s.logger.Debug().Str("refresh_token", redact.Token()).Msg("Revoking refresh token")
		if _, err := s.client.Post(ctx, s.paths.Logout, refreshRequest{RefreshToken: pair.RefreshToken}); err != nil {
			s.logger.Warn().Err(err).Msg("Backend logout failed, clearing local session anyway")
		}
	}
	if err := s.store.ClearTokens(ctx); err != nil {
		return fmt.Errorf("Service.Logout: %w", err)
	}
	return nil
}

// IsAuthenticated reports whether a pair is stored whose refresh token is not
// known to be expired.
func (s *Service) IsAuthenticated(ctx context.Context) (bool, error) {
	pair, err := s.store.GetTokens(ctx)
	if err != nil || pair == nil {
		return false, err
	}
	if pair.RefreshTokenExpiresAt.IsZero() {
		return true, nil
	}
	return !pair.RefreshExpired(s.nowFunc()), nil
}

// Refresh exchanges refreshToken at the refresh endpoint. It has the
// refresh.Func signature and does not persist anything itself.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*credentials.TokenPair, error) {
	tr, err := s.post(ctx, s.paths.Refresh, refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return nil, fmt.Errorf("Service.Refresh: %w", err)
	}
	pair := tr.TokenPair(s.nowFunc())
	if pair == nil {
		return nil, fmt.Errorf("Service.Refresh: %w", ErrNoTokens)
	}
	return pair, nil
}

func (s *Service) post(ctx context.Context, path string, body any) (*TokenResponse, error) {
	resp, err := s.client.Post(ctx, path, body)
	if err != nil {
		return nil, err
	}
	tr, err := client.DecodeData[*TokenResponse](resp)
	if err != nil {
		return nil, err
	}
	if tr == nil {
		return nil, ErrNoTokens
	}
	return tr, nil
}

func (s *Service) storeResponse(ctx context.Context, tr *TokenResponse) error {
	pair := tr.TokenPair(s.nowFunc())
	if pair == nil {
		return ErrNoTokens
	}
	return s.store.StoreTokens(ctx, *pair)
}
