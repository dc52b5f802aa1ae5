// Package app is the composition root. It builds the credential store, the
// shared transport, the registry and the auth service, then injects the
// refresh function and the escalation handler into the registry.
package app

import (
	"fmt"
	"net/http"

	"github.com/jrsteele09/go-auth-client/authapi"
	"github.com/jrsteele09/go-auth-client/client"
	"github.com/jrsteele09/go-auth-client/credentials"
	"github.com/jrsteele09/go-auth-client/credentials/securestore"
	"github.com/jrsteele09/go-auth-client/internal/config"
	"github.com/jrsteele09/go-auth-client/refresh"
	"github.com/jrsteele09/go-auth-client/registry"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// App holds the wired components of the client.
type App struct {
	Config   config.Config
	Logger   zerolog.Logger
	Store    *credentials.Store
	Registry *registry.Registry
	Auth     *authapi.Service

	// External is for third-party APIs: shared logging transport, no
	// credentials, external request timeout.
	External *http.Client
}

type options struct {
	storage          credentials.Storage
	logger           *zerolog.Logger
	baseTransport    http.RoundTripper
	onSessionExpired func()
}

// Option configures New.
type Option func(*options)

// WithStorage replaces the encrypted credential file.
func WithStorage(s credentials.Storage) Option {
	return func(o *options) {
		o.storage = s
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = &logger
	}
}

// WithBaseTransport sets the transport under the logging and metadata layers.
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(o *options) {
		o.baseTransport = rt
	}
}

// WithSessionExpiredHandler runs once per failed refresh cycle, after the
// stored tokens have been cleared. It is where a UI would route to login.
func WithSessionExpiredHandler(fn func()) Option {
	return func(o *options) {
		o.onSessionExpired = fn
	}
}

// New wires the application in a fixed order: transport, registry, auth
// service, then injection of the refresh function into the registry.
func New(cfg config.Config, opts ...Option) (*App, error) {
	o := &options{baseTransport: http.DefaultTransport}
	for _, opt := range opts {
		opt(o)
	}
	logger := log.Logger
	if o.logger != nil {
		logger = *o.logger
	}

	storage, err := newStorage(cfg, o.storage)
	if err != nil {
		return nil, fmt.Errorf("app.New storage: %w", err)
	}
	store := credentials.NewStore(storage, credentials.WithLogger(logger))

	transport := client.NewTransport(o.baseTransport, logger, cfg.GetUserAgent())
	raw := &http.Client{Transport: transport}

	reg := registry.New(store,
		registry.WithHTTPClient(raw),
		registry.WithLogger(logger),
		registry.WithTimeout(cfg.GetRequestTimeout()),
		registry.WithRefreshTimeout(cfg.GetRefreshTimeout()),
		registry.WithUserAgent(cfg.GetUserAgent()),
		registry.WithProactiveRefresh(cfg.GetProactiveRefresh(), cfg.GetExpiryBuffer()),
	)
	if err := reg.Initialize(cfg.GetBaseURL()); err != nil {
		return nil, fmt.Errorf("app.New registry: %w", err)
	}

	authClient, err := client.New(cfg.GetBaseURL(),
		client.WithHTTPClient(reg.HTTPClient()),
		client.WithTimeout(cfg.GetRequestTimeout()),
		client.WithUserAgent(cfg.GetUserAgent()),
		client.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("app.New auth client: %w", err)
	}
	auth := authapi.NewService(authClient, store,
		authapi.WithRefreshPath(cfg.GetRefreshPath()),
		authapi.WithLogger(logger),
	)

	reg.SetRefreshFunc(refreshFunc(cfg, reg, store, auth, logger))
	reg.SetFailureEscalationHandler(func() {
		logger.Warn().Msg("Session expired, user must sign in again")
		if o.onSessionExpired != nil {
			o.onSessionExpired()
		}
	})

	return &App{
		Config:   cfg,
		Logger:   logger,
		Store:    store,
		Registry: reg,
		Auth:     auth,
		External: &http.Client{Transport: transport, Timeout: cfg.GetExternalRequestTimeout()},
	}, nil
}

// Client is the authenticated pipeline.
func (a *App) Client() *client.Client {
	return a.Registry.MustClient()
}

func refreshFunc(cfg config.Config, reg *registry.Registry, store *credentials.Store, auth *authapi.Service, logger zerolog.Logger) refresh.Func {
	if !cfg.UseOAuthRefresh() {
		return auth.Refresh
	}
	return authapi.NewOAuth2Refresher(reg.HTTPClient(),
		authapi.WithTokenURL(cfg.GetOAuthTokenURL()),
		authapi.WithIssuer(cfg.GetOAuthIssuer()),
		authapi.WithClientCredentials(cfg.GetOAuthClientID(), cfg.GetOAuthClientSecret()),
		authapi.WithOAuth2NowFunc(store.Now),
		authapi.WithOAuth2Logger(logger),
	).Refresh
}

// newStorage returns override when set, otherwise the credential file,
// encrypted when a storage key is configured.
func newStorage(cfg config.StorageConfig, override credentials.Storage) (credentials.Storage, error) {
	if override != nil {
		return override, nil
	}
	file, err := securestore.NewFileStorage(cfg.GetStoragePath())
	if err != nil {
		return nil, err
	}
	if cfg.GetStorageKey() == "" {
		return file, nil
	}
	return securestore.NewEncrypted(file, []byte(cfg.GetStorageKey()), nil)
}
