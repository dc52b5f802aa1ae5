package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jrsteele09/go-auth-client/credentials"
	"github.com/jrsteele09/go-auth-client/internal/redact"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultTimeout      = 15 * time.Second
	DefaultUserAgent    = "go-auth-client"
	DefaultExpiryBuffer = 30 * time.Second
)

// TokenSource provides the access token attached to outbound requests.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Refresher obtains a new access token after a 401.
type Refresher interface {
	RequestRefresh(ctx context.Context) (string, error)
}

// ExpiryChecker is consulted before sending when proactive refresh is on.
type ExpiryChecker interface {
	GetTokens(ctx context.Context) (*credentials.TokenPair, error)
	Now() time.Time
}

// Client sends requests relative to a base URL. With a TokenSource it attaches
// the bearer token; with a Refresher it recovers a 401 by refreshing once and
// replaying the request once.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	tokens     TokenSource
	refresher  Refresher
	timeout    time.Duration
	userAgent  string
	logger     zerolog.Logger

	expiry       ExpiryChecker
	expiryBuffer time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the transport. The client is used as is, so it
// should already carry NewTransport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTokenSource sets where the bearer token is read from.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) {
		c.tokens = ts
	}
}

// WithRefresher enables 401 recovery. Without it 401 is returned like any other status.
func WithRefresher(r Refresher) Option {
	return func(c *Client) {
		c.refresher = r
	}
}

// WithTimeout bounds each attempt. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithUserAgent sets the User-Agent of the default transport.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithLogger sets the client logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithProactiveRefresh refreshes before sending when the access token has a
// known expiry within buffer.
func WithProactiveRefresh(checker ExpiryChecker, buffer time.Duration) Option {
	return func(c *Client) {
		c.expiry = checker
		c.expiryBuffer = buffer
	}
}

// New creates a client bound to baseURL, which must be an absolute http(s) URL.
func New(baseURL string, options ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBaseURL, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("%w: %q is not absolute", ErrInvalidBaseURL, baseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidBaseURL, u.Scheme)
	}

	c := &Client{
		baseURL:      u,
		timeout:      DefaultTimeout,
		userAgent:    DefaultUserAgent,
		logger:       log.Logger,
		expiryBuffer: DefaultExpiryBuffer,
	}
	for _, opt := range options {
		opt(c)
	}
	c.logger = c.logger.With().Str("component", "client").Logger()
	if c.httpClient == nil {
		c.httpClient = &http.Client{Transport: NewTransport(http.DefaultTransport, c.logger, c.userAgent)}
	}
	return c, nil
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Get sends a GET request to path.
func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, http.MethodGet, path, nil)
}

// Post sends body as JSON to path.
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, http.MethodPost, path, body)
}

// Put sends body as JSON to path.
func (c *Client) Put(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, http.MethodPut, path, body)
}

// Patch sends body as JSON to path.
func (c *Client) Patch(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, http.MethodPatch, path, body)
}

// Delete sends a DELETE request to path.
func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, http.MethodDelete, path, nil)
}

// Do sends one logical request. Statuses >= 400 return the response together
// with an *HTTPError; transport failures return a *NetworkError. A 401 is
// retried at most once.
func (c *Client) Do(ctx context.Context, method, path string, body any) (*Response, error) {
	target, err := c.resolve(path)
	if err != nil {
		return nil, err
	}
	payload, err := encodeBody(body)
	if err != nil {
		return nil, fmt.Errorf("Client.Do %s %s: %w", method, path, err)
	}

	if err := c.refreshIfExpiring(ctx); err != nil {
		return nil, err
	}

	token := c.accessToken(ctx)
	resp, err := c.send(ctx, method, target, payload, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || c.refresher == nil {
		return c.finish(method, target, resp, false)
	}

	c.logger.Debug().Str("method", method).Str("url", redact.URLValue(target)).Msg("Access token rejected")

	replayToken, err := c.replayToken(ctx, token)
	if err != nil {
		httpErr := c.httpError(method, target, resp, false)
		httpErr.Err = err
		c.logger.Warn().Err(err).Str("method", method).Str("url", httpErr.URL).Msg("Token refresh rejected, giving up")
		return resp, httpErr
	}

	resp, err = c.send(ctx, method, target, payload, replayToken)
	if err != nil {
		return nil, err
	}
	return c.finish(method, target, resp, true)
}

// replayToken picks the token for the replay. If another request refreshed
// while this one was in flight the stored token already differs from the one
// that was sent and no new refresh is needed.
func (c *Client) replayToken(ctx context.Context, sent string) (string, error) {
	if current := c.accessToken(ctx); current != "" && current != sent {
		return current, nil
	}
	return c.refresher.RequestRefresh(ctx)
}

func (c *Client) refreshIfExpiring(ctx context.Context) error {
	if c.expiry == nil || c.refresher == nil {
		return nil
	}
	pair, err := c.expiry.GetTokens(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Could not read access token expiry")
		return nil
	}
	if pair == nil || pair.AccessTokenExpiresAt.IsZero() || !pair.AccessExpired(c.expiry.Now(), c.expiryBuffer) {
		return nil
	}
	c.logger.Debug().Time("expires_at", pair.AccessTokenExpiresAt).Msg("Access token about to expire, refreshing first")
	_, err = c.refresher.RequestRefresh(ctx)
	return err
}

func (c *Client) accessToken(ctx context.Context) string {
	if c.tokens == nil {
		return ""
	}
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Could not read access token, sending without it")
		return ""
	}
	return token
}

func (c *Client) send(ctx context.Context, method string, target *url.URL, payload []byte, token string) (*Response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("Client.send: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Method: method, URL: redact.URLValue(target), Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Method: method, URL: redact.URLValue(target), Err: err}
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

func (c *Client) finish(method string, target *url.URL, resp *Response, retried bool) (*Response, error) {
	if resp.StatusCode < http.StatusBadRequest {
		return resp, nil
	}
	httpErr := c.httpError(method, target, resp, retried)
	c.logger.Warn().
		Int("status", httpErr.StatusCode).
		Str("method", method).
		Str("url", httpErr.URL).
		Str("detail", httpErr.Detail).
		Bool("retried", retried).
		Msg("Request failed")
	return resp, httpErr
}

func (c *Client) httpError(method string, target *url.URL, resp *Response, retried bool) *HTTPError {
	return &HTTPError{
		StatusCode: resp.StatusCode,
		Method:     method,
		URL:        redact.URLValue(target),
		Detail:     errorDetail(resp.Body),
		Body:       resp.Body,
		Retried:    retried,
	}
}

// resolve joins path onto the base URL. Absolute URLs are used unchanged.
func (c *Client) resolve(path string) (*url.URL, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("Client.resolve %q: %w", path, err)
	}
	if ref.IsAbs() {
		return ref, nil
	}
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(ref.Path, "/")
	u.RawPath = ""
	u.RawQuery = ref.RawQuery
	u.Fragment = ""
	return &u, nil
}

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	case string:
		return []byte(b), nil
	default:
		return json.Marshal(body)
	}
}
