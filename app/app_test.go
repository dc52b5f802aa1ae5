package app_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-client/app"
	"github.com/jrsteele09/go-auth-client/client"
	"github.com/jrsteele09/go-auth-client/credentials/storagefake"
	"github.com/jrsteele09/go-auth-client/internal/fakeapi"
	"github.com/jrsteele09/go-auth-client/refresh"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	baseURL      string
	storagePath  string
	storageKey   string
	tokenURL     string
	clientID     string
	clientSecret string
}

func (c testConfig) GetAppName() string                       { return "test" }
func (c testConfig) GetEnv() string                           { return "TEST" }
func (c testConfig) GetBaseURL() string                       { return c.baseURL }
func (c testConfig) GetLogLevel() string                      { return "disabled" }
func (c testConfig) GetRequestTimeout() time.Duration         { return 5 * time.Second }
func (c testConfig) GetExternalRequestTimeout() time.Duration { return 5 * time.Second }
func (c testConfig) GetRefreshTimeout() time.Duration         { return 5 * time.Second }
func (c testConfig) GetExpiryBuffer() time.Duration           { return 30 * time.Second }
func (c testConfig) GetUserAgent() string                     { return "app-test" }
func (c testConfig) GetProactiveRefresh() bool                { return false }
func (c testConfig) GetStoragePath() string                   { return c.storagePath }
func (c testConfig) GetStorageKey() string                    { return c.storageKey }
func (c testConfig) GetRefreshPath() string                   { return fakeapi.RouteAuthRefresh }
func (c testConfig) GetOAuthIssuer() string                   { return "" }
func (c testConfig) GetOAuthTokenURL() string                 { return c.tokenURL }
func (c testConfig) GetOAuthClientID() string                 { return c.clientID }
func (c testConfig) GetOAuthClientSecret() string             { return c.clientSecret }
func (c testConfig) UseOAuthRefresh() bool                    { return c.tokenURL != "" }

func newBackend(t *testing.T, opts ...fakeapi.Option) (*fakeapi.Server, string) {
	t.Helper()
	api := fakeapi.New(append([]fakeapi.Option{fakeapi.WithLogger(zerolog.Nop())}, opts...)...)
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return api, srv.URL
}

func newApp(t *testing.T, cfg testConfig, opts ...app.Option) *app.App {
	t.Helper()
	a, err := app.New(cfg, append([]app.Option{app.WithLogger(zerolog.Nop())}, opts...)...)
	require.NoError(t, err)
	return a
}

func TestApp_RecoversFromExpiredAccessToken(t *testing.T) {
	api, baseURL := newBackend(t)
	a := newApp(t, testConfig{baseURL: baseURL}, app.WithStorage(storagefake.NewFakeStorage()))
	ctx := context.Background()

	require.NoError(t, a.Auth.Register(ctx, "dev@example.com", "Sup3rSecret"))
	ok, err := a.Auth.IsAuthenticated(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = a.Client().Post(ctx, fakeapi.RouteProjects, map[string]string{"name": "alpha"})
	require.NoError(t, err)

	before, err := a.Store.GetTokens(ctx)
	require.NoError(t, err)
	api.ExpireAccessTokens()

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = a.Client().Get(ctx, fakeapi.RouteProjects)
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}
	require.GreaterOrEqual(t, api.RefreshCount(), 1)

	after, err := a.Store.GetTokens(ctx)
	require.NoError(t, err)
	require.NotEqual(t, before.AccessToken, after.AccessToken)
	require.NotEqual(t, before.RefreshToken, after.RefreshToken)

	resp, err := a.Client().Get(ctx, fakeapi.RouteProjects)
	require.NoError(t, err)
	projects, err := client.DecodeData[[]fakeapi.Project](resp)
	require.NoError(t, err)
	require.Len(t, projects, 1)
}

func TestApp_FailedRefreshEscalatesOnce(t *testing.T) {
	api, baseURL := newBackend(t)
	var expired atomic.Int32
	a := newApp(t, testConfig{baseURL: baseURL},
		app.WithStorage(storagefake.NewFakeStorage()),
		app.WithSessionExpiredHandler(func() { expired.Add(1) }),
	)
	ctx := context.Background()

	require.NoError(t, a.Auth.Register(ctx, "dev@example.com", "Sup3rSecret"))
	api.ExpireAccessTokens()
	api.FailRefresh(true)

	_, err := a.Client().Get(ctx, fakeapi.RouteProjects)
	require.ErrorIs(t, err, refresh.ErrAuthExpired)
	require.Equal(t, http.StatusUnauthorized, client.StatusCode(err))
	require.Equal(t, int32(1), expired.Load())

	ok, err := a.Auth.IsAuthenticated(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestApp_OAuth2RefreshGrant(t *testing.T) {
	api, baseURL := newBackend(t, fakeapi.WithClientCredentials("cli", "s3cret"))
	a := newApp(t, testConfig{
		baseURL:      baseURL,
		tokenURL:     baseURL + fakeapi.RouteOAuth2Token,
		clientID:     "cli",
		clientSecret: "s3cret",
	}, app.WithStorage(storagefake.NewFakeStorage()))
	ctx := context.Background()

	require.NoError(t, a.Auth.Register(ctx, "dev@example.com", "Sup3rSecret"))
	api.ExpireAccessTokens()

	_, err := a.Client().Get(ctx, fakeapi.RouteProjects)
	require.NoError(t, err)
	require.Equal(t, 1, api.RefreshCount())
}

func TestApp_EncryptedFileStoragePersistsSession(t *testing.T) {
	_, baseURL := newBackend(t)
	cfg := testConfig{
		baseURL:     baseURL,
		storagePath: filepath.Join(t.TempDir(), "credentials.json"),
		storageKey:  "correct horse battery staple",
	}
	ctx := context.Background()

	first := newApp(t, cfg)
	require.NoError(t, first.Auth.Register(ctx, "dev@example.com", "Sup3rSecret"))

	second := newApp(t, cfg)
	ok, err := second.Auth.IsAuthenticated(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	_, err = second.Client().Get(ctx, fakeapi.RouteProjects)
	require.NoError(t, err)

	cfg.storageKey = "wrong key"
	third := newApp(t, cfg)
	_, err = third.Auth.IsAuthenticated(ctx)
	require.Error(t, err)
}

func TestApp_InvalidBaseURL(t *testing.T) {
	_, err := app.New(testConfig{baseURL: "not a url"},
		app.WithLogger(zerolog.Nop()),
		app.WithStorage(storagefake.NewFakeStorage()),
	)
	require.ErrorIs(t, err, client.ErrInvalidBaseURL)
}

func TestApp_ExternalClientHasNoCredentials(t *testing.T) {
	var auth atomic.Value
	ext := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth.Store(r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(ext.Close)

	_, baseURL := newBackend(t)
	a := newApp(t, testConfig{baseURL: baseURL}, app.WithStorage(storagefake.NewFakeStorage()))
	require.NoError(t, a.Auth.Register(context.Background(), "dev@example.com", "Sup3rSecret"))

	resp, err := a.External.Get(ext.URL)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, "", auth.Load())
}
