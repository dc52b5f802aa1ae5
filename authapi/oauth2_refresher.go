package authapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-auth-client/credentials"
	"github.com/jrsteele09/go-auth-client/refresh"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// ErrNoTokenEndpoint is returned when neither a token URL nor an issuer is set.
var ErrNoTokenEndpoint = errors.New("oauth2 refresher needs a token URL or an issuer")

// OAuth2Refresher runs the standard refresh_token grant. The token endpoint
// is either configured directly or discovered from an OIDC issuer.
type OAuth2Refresher struct {
	httpClient   *http.Client
	clientID     string
	clientSecret string
	tokenURL     string
	issuer       string
	scopes       []string
	nowFunc      func() time.Time
	logger       zerolog.Logger

	mu       sync.Mutex
	endpoint *oauth2.Endpoint
}

var _ refresh.Func = (*OAuth2Refresher)(nil).Refresh

// OAuth2Option configures an OAuth2Refresher.
type OAuth2Option func(*OAuth2Refresher)

// WithClientCredentials sets the client id and secret sent with the grant.
func WithClientCredentials(id, secret string) OAuth2Option {
	return func(r *OAuth2Refresher) {
		r.clientID = id
		r.clientSecret = secret
	}
}

// WithTokenURL sets the token endpoint directly, skipping discovery.
func WithTokenURL(tokenURL string) OAuth2Option {
	return func(r *OAuth2Refresher) {
		r.tokenURL = tokenURL
	}
}

// WithIssuer discovers the token endpoint from the issuer metadata.
func WithIssuer(issuer string) OAuth2Option {
	return func(r *OAuth2Refresher) {
		r.issuer = issuer
	}
}

func WithScopes(scopes ...string) OAuth2Option {
	return func(r *OAuth2Refresher) {
		r.scopes = scopes
	}
}

func WithOAuth2NowFunc(now func() time.Time) OAuth2Option {
	return func(r *OAuth2Refresher) {
		r.nowFunc = now
	}
}

func WithOAuth2Logger(logger zerolog.Logger) OAuth2Option {
	return func(r *OAuth2Refresher) {
		r.logger = logger
	}
}

// NewOAuth2Refresher builds a refresher whose requests go through httpClient,
// which must be the raw transport.
func NewOAuth2Refresher(httpClient *http.Client, options ...OAuth2Option) *OAuth2Refresher {
	r := &OAuth2Refresher{
		httpClient: httpClient,
		nowFunc:    time.Now,
		logger:     log.Logger,
	}
	for _, opt := range options {
		opt(r)
	}
	r.logger = r.logger.With().Str("component", "oauth2").Logger()
	return r
}

// Refresh exchanges refreshToken for a new pair. It has the refresh.Func signature.
func (r *OAuth2Refresher) Refresh(ctx context.Context, refreshToken string) (*credentials.TokenPair, error) {
	endpoint, err := r.tokenEndpoint(ctx)
	if err != nil {
		return nil, err
	}

	cfg := oauth2.Config{
		ClientID:     r.clientID,
		ClientSecret: r.clientSecret,
		Endpoint:     endpoint,
		Scopes:       r.scopes,
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)

	tok, err := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return nil, fmt.Errorf("OAuth2Refresher.Refresh: %s (status %d): %w", re.ErrorCode, statusOf(re), err)
		}
		return nil, fmt.Errorf("OAuth2Refresher.Refresh: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("OAuth2Refresher.Refresh: %w", ErrNoTokens)
	}

	now := r.nowFunc()
	pair := &credentials.TokenPair{
		AccessToken:           tok.AccessToken,
		RefreshToken:          tok.RefreshToken,
		AccessTokenExpiresAt:  tok.Expiry.UTC(),
		RefreshTokenExpiresAt: resolveExpiry(nil, extraSeconds(tok, "refresh_expires_in"), tok.RefreshToken, now),
	}
	if tok.Expiry.IsZero() {
		pair.AccessTokenExpiresAt = resolveExpiry(nil, 0, tok.AccessToken, now)
	}
	return pair, nil
}

// tokenEndpoint returns the configured token URL or discovers it once from
// the issuer.
func (r *OAuth2Refresher) tokenEndpoint(ctx context.Context) (oauth2.Endpoint, error) {
	if r.tokenURL != "" {
		return oauth2.Endpoint{TokenURL: r.tokenURL}, nil
	}
	if r.issuer == "" {
		return oauth2.Endpoint{}, ErrNoTokenEndpoint
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.endpoint != nil {
		return *r.endpoint, nil
	}

	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, r.httpClient), r.issuer)
	if err != nil {
		return oauth2.Endpoint{}, fmt.Errorf("OAuth2Refresher discovery %s: %w", r.issuer, err)
	}
	endpoint := provider.Endpoint()
	r.endpoint = &endpoint
	r.logger.Debug().Str("issuer", r.issuer).Str("token_url", endpoint.TokenURL).Msg("Discovered token endpoint")
	return endpoint, nil
}

func extraSeconds(tok *oauth2.Token, key string) int {
	switch v := tok.Extra(key).(type) {
	case float64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	default:
		return 0
	}
}

func statusOf(re *oauth2.RetrieveError) int {
	if re.Response == nil {
		return 0
	}
	return re.Response.StatusCode
}
