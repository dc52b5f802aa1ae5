package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jrsteele09/go-auth-client/credentials"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Func exchanges a refresh token for a new pair. It must use a transport that
// bypasses the refreshing pipeline. A nil pair with a nil error is a failure.
type Func func(ctx context.Context, refreshToken string) (*credentials.TokenPair, error)

// TokenStore is the part of credentials.Store the coordinator needs.
type TokenStore interface {
	GetTokens(ctx context.Context) (*credentials.TokenPair, error)
	StoreTokens(ctx context.Context, pair credentials.TokenPair) error
	ClearTokens(ctx context.Context) error
	Now() time.Time
}

// Phase is the coordinator state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRefreshing
)

func (p Phase) String() string {
	if p == PhaseRefreshing {
		return "refreshing"
	}
	return "idle"
}

// DefaultTimeout bounds a refresh cycle when WithTimeout is not given.
const DefaultTimeout = 15 * time.Second

type result struct {
	token string
	err   error
}

// Coordinator runs at most one refresh at a time. Callers arriving while a
// refresh is running wait on it and all of them get its outcome.
type Coordinator struct {
	store   TokenStore
	timeout time.Duration
	logger  zerolog.Logger

	mu        sync.Mutex
	phase     Phase
	queue     []chan result
	refreshFn Func
	onFailure func()
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithRefreshFunc sets the function that exchanges the refresh token.
func WithRefreshFunc(fn Func) Option {
	return func(c *Coordinator) {
		c.refreshFn = fn
	}
}

// WithEscalationHandler sets the callback run once per failed cycle.
func WithEscalationHandler(fn func()) Option {
	return func(c *Coordinator) {
		c.onFailure = fn
	}
}

// WithTimeout bounds a whole refresh cycle. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		c.timeout = d
	}
}

// WithLogger sets the coordinator logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// NewCoordinator creates an idle coordinator over store.
func NewCoordinator(store TokenStore, options ...Option) *Coordinator {
	c := &Coordinator{
		store:   store,
		timeout: DefaultTimeout,
		logger:  log.Logger,
	}
	for _, opt := range options {
		opt(c)
	}
	c.logger = c.logger.With().Str("component", "refresh").Logger()
	return c
}

// SetRefreshFunc replaces the refresh function. A running cycle keeps the one it started with.
func (c *Coordinator) SetRefreshFunc(fn Func) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshFn = fn
}

// SetEscalationHandler replaces the failure callback. The callback runs on the
// refresh goroutine before waiters are released and must not call RequestRefresh.
func (c *Coordinator) SetEscalationHandler(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onFailure = fn
}

// Phase returns the current state.
func (c *Coordinator) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Pending is the number of callers waiting on the current cycle.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// RequestRefresh returns a fresh access token, starting a refresh cycle if none
// is running or joining the running one. ctx only limits how long this caller
// waits; it never cancels the cycle.
func (c *Coordinator) RequestRefresh(ctx context.Context) (string, error) {
	wait := make(chan result, 1)

	c.mu.Lock()
	c.queue = append(c.queue, wait)
	if c.phase == PhaseRefreshing {
		c.mu.Unlock()
		return c.await(ctx, wait)
	}
	c.phase = PhaseRefreshing
	fn := c.refreshFn
	c.mu.Unlock()

	go c.run(context.WithoutCancel(ctx), fn)

	return c.await(ctx, wait)
}

func (c *Coordinator) await(ctx context.Context, wait <-chan result) (string, error) {
	select {
	case r := <-wait:
		return r.token, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *Coordinator) run(ctx context.Context, fn Func) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	token, err := c.cycle(ctx, fn)
	if err != nil {
		c.fail(ctx, err, time.Since(start))
		return
	}
	c.logger.Debug().Dur("dur", time.Since(start)).Msg("Token refresh succeeded")
	c.settle(result{token: token})
}

func (c *Coordinator) cycle(ctx context.Context, fn Func) (token string, err error) {
	defer func() {
		if r := recover(); r != nil {
			token, err = "", refreshFailure(fmt.Errorf("refresh function panicked: %v", r))
		}
	}()

	current, err := c.store.GetTokens(ctx)
	if err != nil {
		return "", refreshFailure(err)
	}
	if current == nil || current.RefreshToken == "" {
		return "", ErrNoRefreshToken
	}
	if fn == nil {
		return "", ErrNoRefreshFunc
	}
	if !current.RefreshTokenExpiresAt.IsZero() && current.RefreshExpired(c.store.Now()) {
		return "", ErrRefreshTokenExpired
	}

	next, err := fn(ctx, current.RefreshToken)
	if err != nil {
		return "", refreshFailure(err)
	}
	if next == nil || next.AccessToken == "" {
		return "", refreshFailure(errors.New("refresh returned no tokens"))
	}

	pair := *next
	if pair.RefreshToken == "" {
		pair.RefreshToken = current.RefreshToken
		pair.RefreshTokenExpiresAt = current.RefreshTokenExpiresAt
	}
	if err := c.store.StoreTokens(ctx, pair); err != nil {
		return "", refreshFailure(err)
	}
	return pair.AccessToken, nil
}

// fail ends a cycle: tokens are dropped and the escalation handler runs once
// before the waiters are rejected. The phase stays Refreshing until both are
// done, so a 401 arriving meanwhile joins this cycle instead of refreshing
// with the rejected token.
func (c *Coordinator) fail(ctx context.Context, err error, dur time.Duration) {
	c.mu.Lock()
	onFailure := c.onFailure
	c.mu.Unlock()

	c.logger.Warn().Err(err).Int("waiters", c.Pending()).Dur("dur", dur).Msg("Token refresh failed")

	if clearErr := c.store.ClearTokens(context.WithoutCancel(ctx)); clearErr != nil {
		c.logger.Error().Err(clearErr).Msg("Failed to clear tokens after refresh failure")
	}
	c.escalate(onFailure)

	c.mu.Lock()
	waiters := c.drainLocked()
	c.mu.Unlock()

	for _, w := range waiters {
		w <- result{err: err}
	}
}

func (c *Coordinator) settle(r result) {
	c.mu.Lock()
	waiters := c.drainLocked()
	c.mu.Unlock()

	for _, w := range waiters {
		w <- r
	}
}

func (c *Coordinator) drainLocked() []chan result {
	waiters := c.queue
	c.queue = nil
	c.phase = PhaseIdle
	return waiters
}

func (c *Coordinator) escalate(fn func()) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Interface("panic", r).Msg("Escalation handler panicked")
		}
	}()
	fn()
}
