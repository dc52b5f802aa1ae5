// Package fakeapi is an in-process backend that speaks the same auth and
// envelope protocol as the real API. It issues signed JWT access tokens and
// rotating opaque refresh tokens, and lets tests force expiry and refresh
// failures.
package fakeapi

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

const (
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
	DefaultOTPCode         = "123456"
)

type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
}

type Server struct {
	router     chi.Router
	logger     zerolog.Logger
	signer     signer
	nowFunc    func() time.Time
	issuerName string

	accessTTL    time.Duration
	refreshTTL   time.Duration
	otpCode      string
	clientID     string
	clientSecret string
	refreshDelay time.Duration

	users         *userRepo
	refreshTokens *refreshTokenRepo
	revoked       *revokedTokens

	failRefresh  atomic.Bool
	refreshCount atomic.Int32

	mu       sync.Mutex
	issued   map[string]time.Time // access token jti to expiry
	projects []Project
}

type Option func(*Server)

func WithNowFunc(now func() time.Time) Option {
	return func(s *Server) {
		s.nowFunc = now
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithAccessTokenTTL(d time.Duration) Option {
	return func(s *Server) {
		s.accessTTL = d
	}
}

func WithRefreshTokenTTL(d time.Duration) Option {
	return func(s *Server) {
		s.refreshTTL = d
	}
}

func WithOTPCode(code string) Option {
	return func(s *Server) {
		s.otpCode = code
	}
}

// WithClientCredentials makes the OAuth2 token endpoint require these credentials.
func WithClientCredentials(id, secret string) Option {
	return func(s *Server) {
		s.clientID = id
		s.clientSecret = secret
	}
}

// WithRefreshDelay slows both refresh endpoints down, which widens the window
// for concurrent requests to pile up behind one refresh.
func WithRefreshDelay(d time.Duration) Option {
	return func(s *Server) {
		s.refreshDelay = d
	}
}

func WithSigningSecret(secret string) Option {
	return func(s *Server) {
		s.signer = newHMACSigner(secret)
	}
}

// WithRSAKey signs access tokens with RS256 and publishes the public key on
// the JWKS endpoint.
func WithRSAKey(keyID string, key *rsa.PrivateKey) Option {
	return func(s *Server) {
		s.signer = newRSASigner(keyID, key)
	}
}

func New(options ...Option) *Server {
	s := &Server{
		logger:        log.Logger,
		signer:        newHMACSigner("fakeapi-signing-secret"),
		issuerName:    "fakeapi",
		accessTTL:     DefaultAccessTokenTTL,
		refreshTTL:    DefaultRefreshTokenTTL,
		otpCode:       DefaultOTPCode,
		users:         newUserRepo(bcrypt.MinCost),
		refreshTokens: newRefreshTokenRepo(),
		revoked:       newRevokedTokens(),
		issued:        make(map[string]time.Time),
	}
	for _, opt := range options {
		opt(s)
	}
	if s.nowFunc == nil {
		s.nowFunc = func() time.Time { return NowTimeFunc() }
	}
	s.logger = s.logger.With().Str("component", "fakeapi").Logger()
	s.initRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) initRoutes() {
	r := chi.NewRouter()
	r.Use(s.RecoverMiddleware, s.LoggingMiddleware)

	r.Post(RouteAuthLogin, s.Login())
	r.Post(RouteAuthRegister, s.Register())
	r.Post(RouteAuthOTPVerify, s.VerifyOTP())
	r.Post(RouteAuthRefresh, s.Refresh())
	r.Post(RouteAuthLogout, s.Logout())
	r.Get(RouteAuthMe, ChainMiddleware(s.Me(), s.RequireAuth()))

	r.Get(RouteWellKnownOpenIDConfig, s.WellKnownOpenIDConfig())
	r.Get(RouteWellKnownJWKS, s.WellKnownJWKS())
	r.Post(RouteOAuth2Token, ChainMiddleware(s.Token(), s.RequireClientAuth()))

	r.Get(RouteProjects, ChainMiddleware(s.ListProjects(), s.RequireAuth()))
	r.Post(RouteProjects, ChainMiddleware(s.CreateProject(), s.RequireAuth()))
	r.Get(RouteProject, ChainMiddleware(s.GetProject(), s.RequireAuth()))

	s.router = r
}

// AddUser registers a user directly, bypassing password rules.
func (s *Server) AddUser(email, password string, otpRequired bool) (*User, error) {
	return s.users.Create(email, password, otpRequired, s.nowFunc())
}

// RefreshCount is the number of calls received by either refresh endpoint.
func (s *Server) RefreshCount() int {
	return int(s.refreshCount.Load())
}

// FailRefresh makes every refresh call fail with 401 while enabled.
func (s *Server) FailRefresh(fail bool) {
	s.failRefresh.Store(fail)
}

// ExpireAccessTokens revokes every access token issued so far.
func (s *Server) ExpireAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for jti, exp := range s.issued {
		s.revoked.Add(jti, exp)
	}
	s.issued = make(map[string]time.Time)
	s.revoked.Cleanup(s.nowFunc())
}

// RevokeRefreshTokens forgets every refresh token.
func (s *Server) RevokeRefreshTokens() {
	s.refreshTokens.Clear()
}

// ActiveRefreshTokens is the number of refresh tokens that can still be used.
func (s *Server) ActiveRefreshTokens() int {
	return len(s.refreshTokens.List())
}

// Listen serves on addr (use "127.0.0.1:0" for a free port) and returns the
// base URL and a shutdown function.
func (s *Server) Listen(addr string) (string, func(context.Context) error, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, fmt.Errorf("fakeapi.Listen: %w", err)
	}
	srv := &http.Server{Handler: s, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Fake API stopped")
		}
	}()
	return "http://" + ln.Addr().String(), srv.Shutdown, nil
}
