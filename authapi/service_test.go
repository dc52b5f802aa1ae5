package authapi_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-client/authapi"
	"github.com/jrsteele09/go-auth-client/client"
	"github.com/jrsteele09/go-auth-client/credentials"
	"github.com/jrsteele09/go-auth-client/credentials/storagefake"
	"github.com/jrsteele09/go-auth-client/internal/fakeapi"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type env struct {
	api   *fakeapi.Server
	srv   *httptest.Server
	store *credentials.Store
	svc   *authapi.Service
}

func newEnv(t *testing.T, opts ...fakeapi.Option) *env {
	t.Helper()
	api := fakeapi.New(append([]fakeapi.Option{fakeapi.WithLogger(zerolog.Nop())}, opts...)...)
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	raw, err := client.New(srv.URL, client.WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	store := credentials.NewStore(storagefake.NewFakeStorage())
	return &env{
		api:   api,
		srv:   srv,
		store: store,
		svc:   authapi.NewService(raw, store, authapi.WithLogger(zerolog.Nop())),
	}
}

func TestService_RegisterStoresTokens(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	require.NoError(t, e.svc.Register(ctx, "dev@example.com", "Sup3rSecret"))

	pair, err := e.store.GetTokens(ctx)
	require.NoError(t, err)
	require.NotNil(t, pair)
	require.False(t, pair.AccessTokenExpiresAt.IsZero())
	require.False(t, pair.RefreshTokenExpiresAt.IsZero())
	require.WithinDuration(t, time.Now().Add(fakeapi.DefaultAccessTokenTTL), pair.AccessTokenExpiresAt, 5*time.Second)

	ok, err := e.svc.IsAuthenticated(ctx)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestService_RegisterRejectedByBackend(t *testing.T) {
	e := newEnv(t)

	err := e.svc.Register(context.Background(), "dev@example.com", "weak")
	require.Equal(t, http.StatusUnprocessableEntity, client.StatusCode(err))

	var httpErr *client.HTTPError
	require.ErrorAs(t, err, &httpErr)
	require.Contains(t, httpErr.Detail, "at least 8 characters")
}

func TestService_LoginWithWrongPasswordStoresNothing(t *testing.T) {
	e := newEnv(t)
	_, err := e.api.AddUser("dev@example.com", "right", false)
	require.NoError(t, err)

	_, err = e.svc.Login(context.Background(), "dev@example.com", "wrong")
	require.Equal(t, http.StatusUnauthorized, client.StatusCode(err))

	pair, err := e.store.GetTokens(context.Background())
	require.NoError(t, err)
	require.Nil(t, pair)
}

func TestService_LoginThenOTP(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.api.AddUser("otp@example.com", "pw", true)
	require.NoError(t, err)

	res, err := e.svc.Login(ctx, "otp@example.com", "pw")
	require.NoError(t, err)
	require.True(t, res.OTPRequired)

	ok, err := e.svc.IsAuthenticated(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	require.Error(t, e.svc.VerifyOTP(ctx, "otp@example.com", "000000"))
	require.NoError(t, e.svc.VerifyOTP(ctx, "otp@example.com", fakeapi.DefaultOTPCode))

	ok, err = e.svc.IsAuthenticated(ctx)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestService_RefreshReturnsRotatedPair(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.svc.Register(ctx, "dev@example.com", "Sup3rSecret"))
	before, err := e.store.GetTokens(ctx)
	require.NoError(t, err)

	pair, err := e.svc.Refresh(ctx, before.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, before.RefreshToken, pair.RefreshToken)
	require.NotEmpty(t, pair.AccessToken)
	require.Equal(t, 1, e.api.RefreshCount())

	after, err := e.store.GetTokens(ctx)
	require.NoError(t, err)
	require.Equal(t, before, after, "Refresh must not persist by itself")

	_, err = e.svc.Refresh(ctx, before.RefreshToken)
	require.Equal(t, http.StatusUnauthorized, client.StatusCode(err))
}

func TestService_RefreshWithEmptyData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":null}`))
	}))
	defer srv.Close()

	raw, err := client.New(srv.URL, client.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	svc := authapi.NewService(raw, credentials.NewStore(storagefake.NewFakeStorage()), authapi.WithLogger(zerolog.Nop()))

	pair, err := svc.Refresh(context.Background(), "rt")
	require.Nil(t, pair)
	require.ErrorIs(t, err, authapi.ErrNoTokens)
}

func TestService_LogoutClearsLocallyAndRemotely(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.svc.Register(ctx, "dev@example.com", "Sup3rSecret"))
	require.Equal(t, 1, e.api.ActiveRefreshTokens())

	require.NoError(t, e.svc.Logout(ctx))
	require.Zero(t, e.api.ActiveRefreshTokens())

	pair, err := e.store.GetTokens(ctx)
	require.NoError(t, err)
	require.Nil(t, pair)
}

func TestService_LogoutNeverLogsTheRefreshToken(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.svc.Register(ctx, "dev@example.com", "Sup3rSecret"))
	pair, err := e.store.GetTokens(ctx)
	require.NoError(t, err)

	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
	raw, err := client.New(e.srv.URL, client.WithLogger(logger))
	require.NoError(t, err)
	svc := authapi.NewService(raw, e.store, authapi.WithLogger(logger))

	require.NoError(t, svc.Logout(ctx))
	require.Contains(t, buf.String(), "[REDACTED_TOKEN]")
	require.NotContains(t, buf.String(), pair.RefreshToken)
	require.NotContains(t, buf.String(), pair.AccessToken)
}

func TestService_LogoutWithBackendDownStillClears(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.svc.Register(ctx, "dev@example.com", "Sup3rSecret"))
	e.srv.Close()

	require.NoError(t, e.svc.Logout(ctx))
	pair, err := e.store.GetTokens(ctx)
	require.NoError(t, err)
	require.Nil(t, pair)
}

func TestService_CustomPaths(t *testing.T) {
	var hit atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit.Store(r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"access_token":"a","refresh_token":"r","expires_in":60}}`))
	}))
	defer srv.Close()

	raw, err := client.New(srv.URL, client.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	svc := authapi.NewService(raw, credentials.NewStore(storagefake.NewFakeStorage()),
		authapi.WithRefreshPath("/v2/token/refresh"),
		authapi.WithLogger(zerolog.Nop()),
	)

	pair, err := svc.Refresh(context.Background(), "r0")
	require.NoError(t, err)
	require.Equal(t, "/v2/token/refresh", hit.Load())
	require.Equal(t, "a", pair.AccessToken)
	require.WithinDuration(t, time.Now().Add(time.Minute), pair.AccessTokenExpiresAt, 5*time.Second)
	require.True(t, pair.RefreshTokenExpiresAt.IsZero())
}
