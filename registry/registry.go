// Package registry holds the process's single configured API client together
// with the refresh coordinator it delegates to. A Registry is built once at
// startup and passed to whatever needs to make authenticated calls.
package registry

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/jrsteele09/go-auth-client/client"
	"github.com/jrsteele09/go-auth-client/credentials"
	"github.com/jrsteele09/go-auth-client/refresh"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrNotInitialized is returned by Client before Initialize succeeded.
var ErrNotInitialized = errors.New("registry: client used before Initialize")

// Registry owns the one authenticated pipeline of a process together with its
// refresh coordinator, and is where the refresh function is injected.
type Registry struct {
	store       *credentials.Store
	coordinator *refresh.Coordinator
	httpClient  *http.Client
	logger      zerolog.Logger
	baseLogger  zerolog.Logger

	timeout        time.Duration
	refreshTimeout time.Duration
	userAgent      string
	proactive      bool
	expiryBuffer   time.Duration

	mu      sync.RWMutex
	client  *client.Client
	baseURL string
}

// Option configures a Registry.
type Option func(*Registry)

// WithHTTPClient sets the raw transport shared by the pipeline and the auth
// calls. It should already carry client.NewTransport.
func WithHTTPClient(hc *http.Client) Option {
	return func(r *Registry) {
		r.httpClient = hc
	}
}

// WithLogger sets the logger for the registry and everything it builds.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithTimeout sets the per-attempt request timeout of the pipeline.
func WithTimeout(d time.Duration) Option {
	return func(r *Registry) {
		r.timeout = d
	}
}

// WithRefreshTimeout bounds one refresh cycle.
func WithRefreshTimeout(d time.Duration) Option {
	return func(r *Registry) {
		r.refreshTimeout = d
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(r *Registry) {
		r.userAgent = ua
	}
}

// WithProactiveRefresh refreshes before sending when the access token expires within buffer.
func WithProactiveRefresh(enabled bool, buffer time.Duration) Option {
	return func(r *Registry) {
		r.proactive = enabled
		r.expiryBuffer = buffer
	}
}

// New creates an uninitialized registry and its coordinator.
func New(store *credentials.Store, options ...Option) *Registry {
	r := &Registry{
		store:          store,
		logger:         log.Logger,
		timeout:        client.DefaultTimeout,
		refreshTimeout: refresh.DefaultTimeout,
		userAgent:      client.DefaultUserAgent,
		expiryBuffer:   credentials.DefaultExpiryBuffer,
	}
	for _, opt := range options {
		opt(r)
	}
	if r.httpClient == nil {
		r.httpClient = &http.Client{Transport: client.NewTransport(http.DefaultTransport, r.logger, r.userAgent)}
	}
	r.coordinator = refresh.NewCoordinator(store,
		refresh.WithTimeout(r.refreshTimeout),
		refresh.WithLogger(r.logger),
	)
	r.baseLogger = r.logger
	r.logger = r.logger.With().Str("component", "registry").Logger()
	return r
}

// Initialize builds the pipeline bound to baseURL. Calling it again is a no-op.
func (r *Registry) Initialize(baseURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client != nil {
		r.logger.Info().Str("base_url", r.baseURL).Str("ignored", baseURL).Msg("Registry already initialized")
		return nil
	}

	options := []client.Option{
		client.WithHTTPClient(r.httpClient),
		client.WithTokenSource(r.store),
		client.WithRefresher(r.coordinator),
		client.WithTimeout(r.timeout),
		client.WithUserAgent(r.userAgent),
		client.WithLogger(r.baseLogger),
	}
	if r.proactive {
		options = append(options, client.WithProactiveRefresh(r.store, r.expiryBuffer))
	}

	c, err := client.New(baseURL, options...)
	if err != nil {
		return err
	}
	r.client = c
	r.baseURL = c.BaseURL()
	r.logger.Debug().Str("base_url", r.baseURL).Msg("Registry initialized")
	return nil
}

// Client returns the pipeline, or ErrNotInitialized before Initialize.
func (r *Registry) Client() (*client.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.client == nil {
		return nil, ErrNotInitialized
	}
	return r.client, nil
}

// MustClient is Client for callers that treat a missing Initialize as a bug.
func (r *Registry) MustClient() *client.Client {
	c, err := r.Client()
	if err != nil {
		panic(err)
	}
	return c
}

// SetRefreshFunc injects the function used by the coordinator.
func (r *Registry) SetRefreshFunc(fn refresh.Func) {
	r.coordinator.SetRefreshFunc(fn)
}

// SetFailureEscalationHandler injects the callback run once per failed refresh.
func (r *Registry) SetFailureEscalationHandler(fn func()) {
	r.coordinator.SetEscalationHandler(fn)
}

// HTTPClient is the raw transport. Requests sent with it bypass bearer
// attachment and refresh, which is what the refresh call itself needs.
func (r *Registry) HTTPClient() *http.Client {
	return r.httpClient
}

// Coordinator returns the refresh coordinator.
func (r *Registry) Coordinator() *refresh.Coordinator {
	return r.coordinator
}

// Store returns the credential store.
func (r *Registry) Store() *credentials.Store {
	return r.store
}
