package authapi_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-client/authapi"
	"github.com/jrsteele09/go-auth-client/client"
	"github.com/jrsteele09/go-auth-client/internal/fakeapi"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func rawHTTPClient() *http.Client {
	return &http.Client{Transport: client.NewTransport(http.DefaultTransport, zerolog.Nop(), "test")}
}

func TestOAuth2Refresher_TokenURL(t *testing.T) {
	e := newEnv(t, fakeapi.WithClientCredentials("cli", "s3cret"))
	ctx := context.Background()
	require.NoError(t, e.svc.Register(ctx, "dev@example.com", "Sup3rSecret"))
	before, err := e.store.GetTokens(ctx)
	require.NoError(t, err)

	r := authapi.NewOAuth2Refresher(rawHTTPClient(),
		authapi.WithTokenURL(e.srv.URL+fakeapi.RouteOAuth2Token),
		authapi.WithClientCredentials("cli", "s3cret"),
		authapi.WithOAuth2Logger(zerolog.Nop()),
	)

	pair, err := r.Refresh(ctx, before.RefreshToken)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEqual(t, before.RefreshToken, pair.RefreshToken)
	require.WithinDuration(t, time.Now().Add(fakeapi.DefaultAccessTokenTTL), pair.AccessTokenExpiresAt, 5*time.Second)
	require.WithinDuration(t, time.Now().Add(fakeapi.DefaultRefreshTokenTTL), pair.RefreshTokenExpiresAt, 5*time.Second)
	require.Equal(t, 1, e.api.RefreshCount())
}

func TestOAuth2Refresher_DiscoversEndpointFromIssuer(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.svc.Register(ctx, "dev@example.com", "Sup3rSecret"))
	before, err := e.store.GetTokens(ctx)
	require.NoError(t, err)

	r := authapi.NewOAuth2Refresher(rawHTTPClient(),
		authapi.WithIssuer(e.srv.URL),
		authapi.WithClientCredentials("any", ""),
		authapi.WithOAuth2Logger(zerolog.Nop()),
	)

	first, err := r.Refresh(ctx, before.RefreshToken)
	require.NoError(t, err)
	second, err := r.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, first.AccessToken, second.AccessToken)
	require.Equal(t, 2, e.api.RefreshCount())
}

func TestOAuth2Refresher_RejectedGrant(t *testing.T) {
	e := newEnv(t)
	r := authapi.NewOAuth2Refresher(rawHTTPClient(),
		authapi.WithTokenURL(e.srv.URL+fakeapi.RouteOAuth2Token),
		authapi.WithOAuth2Logger(zerolog.Nop()),
	)

	_, err := r.Refresh(context.Background(), "unknown")
	require.ErrorContains(t, err, "invalid_grant")
}

func TestOAuth2Refresher_NeedsEndpoint(t *testing.T) {
	r := authapi.NewOAuth2Refresher(rawHTTPClient(), authapi.WithOAuth2Logger(zerolog.Nop()))
	_, err := r.Refresh(context.Background(), "rt")
	require.ErrorIs(t, err, authapi.ErrNoTokenEndpoint)
}
