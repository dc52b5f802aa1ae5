package credentials_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-client/credentials"
	"github.com/jrsteele09/go-auth-client/credentials/storagefake"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time           { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestStore(t *testing.T) (*credentials.Store, *storagefake.FakeStorage, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	fs := storagefake.NewFakeStorage()
	return credentials.NewStore(fs, credentials.WithNowFunc(clock.Now)), fs, clock
}

func testPair(now time.Time) credentials.TokenPair {
	return credentials.TokenPair{
		AccessToken:           "access-1",
		RefreshToken:          "refresh-1",
		AccessTokenExpiresAt:  now.Add(15 * time.Minute),
		RefreshTokenExpiresAt: now.Add(7 * 24 * time.Hour),
	}
}

func TestStore_RoundTrip(t *testing.T) {
	store, _, clock := newTestStore(t)
	ctx := context.Background()

	pair := testPair(clock.Now())
	require.NoError(t, store.StoreTokens(ctx, pair))

	got, err := store.GetTokens(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, pair, *got)

	access, err := store.AccessToken(ctx)
	require.NoError(t, err)
	require.Equal(t, "access-1", access)
}

func TestStore_StoreTokensRejectsIncompletePair(t *testing.T) {
	store, fs, clock := newTestStore(t)

	pair := testPair(clock.Now())
	pair.RefreshToken = " "

	err := store.StoreTokens(context.Background(), pair)
	require.ErrorIs(t, err, credentials.ErrInvalidTokenPair)
	require.Zero(t, fs.Writes())
}

func TestStore_StoreTokensWriteOrder(t *testing.T) {
	store, fs, clock := newTestStore(t)
	fs.Fail(credentials.KeyAccessToken, errors.New("disk full"))

	err := store.StoreTokens(context.Background(), testPair(clock.Now()))
	require.Error(t, err)
	require.Contains(t, err.Error(), "access_token")

	// Refresh fields land before the access token write fails.
	v, ok := fs.Raw(credentials.KeyRefreshToken)
	require.True(t, ok)
	require.Equal(t, "refresh-1", v)
}

func TestStore_GetTokensNilWhenEitherMissing(t *testing.T) {
	ctx := context.Background()

	t.Run("empty", func(t *testing.T) {
		store, _, _ := newTestStore(t)
		got, err := store.GetTokens(ctx)
		require.NoError(t, err)
		require.Nil(t, got)
	})

	t.Run("access only", func(t *testing.T) {
		store, fs, _ := newTestStore(t)
		fs.Put(credentials.KeyAccessToken, "a")
		got, err := store.GetTokens(ctx)
		require.NoError(t, err)
		require.Nil(t, got)
	})

	t.Run("refresh only", func(t *testing.T) {
		store, fs, _ := newTestStore(t)
		fs.Put(credentials.KeyRefreshToken, "r")
		got, err := store.GetTokens(ctx)
		require.NoError(t, err)
		require.Nil(t, got)
	})
}

func TestStore_GetTokensPropagatesStorageErrors(t *testing.T) {
	store, fs, clock := newTestStore(t)
	require.NoError(t, store.StoreTokens(context.Background(), testPair(clock.Now())))

	boom := errors.New("keychain locked")
	fs.Fail(credentials.KeyRefreshToken, boom)

	_, err := store.GetTokens(context.Background())
	require.ErrorIs(t, err, boom)
	require.ErrorContains(t, err, "Store read refresh_token")
}

func TestStore_ClearTokens(t *testing.T) {
	store, fs, clock := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.StoreTokens(ctx, testPair(clock.Now())))
	fs.Put(credentials.KeyLegacyBearerToken, "legacy")
	fs.Put("unrelated", "keep")

	require.NoError(t, store.ClearTokens(ctx))

	got, err := store.GetTokens(ctx)
	require.NoError(t, err)
	require.Nil(t, got)

	_, ok := fs.Raw(credentials.KeyLegacyBearerToken)
	require.False(t, ok)
	require.Equal(t, 1, fs.Len())

	// Clearing an empty store is fine.
	require.NoError(t, store.ClearTokens(ctx))
}

func TestStore_ClearTokensContinuesAfterFailure(t *testing.T) {
	store, fs, clock := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.StoreTokens(ctx, testPair(clock.Now())))

	fs.Fail(credentials.KeyAccessToken, errors.New("locked"))

	err := store.ClearTokens(ctx)
	require.Error(t, err)
	require.Contains(t, err.Error(), "remove access_token")

	_, ok := fs.Raw(credentials.KeyRefreshToken)
	require.False(t, ok)
}

func TestStore_IsAccessTokenExpiredBoundary(t *testing.T) {
	store, _, clock := newTestStore(t)
	ctx := context.Background()

	expiresAt := clock.Now().Add(10 * time.Minute)
	pair := testPair(clock.Now())
	pair.AccessTokenExpiresAt = expiresAt
	require.NoError(t, store.StoreTokens(ctx, pair))

	clock.now = expiresAt.Add(-30001 * time.Millisecond)
	expired, err := store.IsAccessTokenExpired(ctx, credentials.DefaultExpiryBuffer)
	require.NoError(t, err)
	require.False(t, expired)

	clock.now = expiresAt.Add(-30000 * time.Millisecond)
	expired, err = store.IsAccessTokenExpired(ctx, credentials.DefaultExpiryBuffer)
	require.NoError(t, err)
	require.True(t, expired)
}

func TestStore_AccessTokenExpiryScenario(t *testing.T) {
	store, _, clock := newTestStore(t)
	ctx := context.Background()

	pair := testPair(clock.Now())
	pair.AccessTokenExpiresAt = clock.Now().Add(60 * time.Second)
	require.NoError(t, store.StoreTokens(ctx, pair))

	expired, err := store.IsAccessTokenExpired(ctx, credentials.DefaultExpiryBuffer)
	require.NoError(t, err)
	require.False(t, expired)

	clock.Advance(31 * time.Second)
	expired, err = store.IsAccessTokenExpired(ctx, credentials.DefaultExpiryBuffer)
	require.NoError(t, err)
	require.True(t, expired)
}

func TestStore_MissingExpiryIsExpired(t *testing.T) {
	store, fs, _ := newTestStore(t)
	ctx := context.Background()

	fs.Put(credentials.KeyAccessToken, "a")
	fs.Put(credentials.KeyRefreshToken, "r")

	expired, err := store.IsAccessTokenExpired(ctx, 0)
	require.NoError(t, err)
	require.True(t, expired)

	expired, err = store.IsRefreshTokenExpired(ctx)
	require.NoError(t, err)
	require.True(t, expired)

	fs.Put(credentials.KeyAccessTokenExpiresAt, "not a time")
	expired, err = store.IsAccessTokenExpired(ctx, 0)
	require.NoError(t, err)
	require.True(t, expired)
}

func TestStore_IsRefreshTokenExpiredHasNoBuffer(t *testing.T) {
	store, _, clock := newTestStore(t)
	ctx := context.Background()

	pair := testPair(clock.Now())
	pair.RefreshTokenExpiresAt = clock.Now().Add(time.Second)
	require.NoError(t, store.StoreTokens(ctx, pair))

	clock.Advance(999 * time.Millisecond)
	expired, err := store.IsRefreshTokenExpired(ctx)
	require.NoError(t, err)
	require.False(t, expired)

	clock.Advance(time.Millisecond)
	expired, err = store.IsRefreshTokenExpired(ctx)
	require.NoError(t, err)
	require.True(t, expired)
}

func TestStore_ReadsUnixMillisExpiry(t *testing.T) {
	store, fs, clock := newTestStore(t)
	ctx := context.Background()

	exp := clock.Now().Add(time.Hour)
	fs.Put(credentials.KeyAccessToken, "a")
	fs.Put(credentials.KeyRefreshToken, "r")
	fs.Put(credentials.KeyAccessTokenExpiresAt, "1772370000000")
	fs.Put(credentials.KeyRefreshTokenExpiresAt, exp.Format(time.RFC3339))

	got, err := store.GetTokens(ctx)
	require.NoError(t, err)
	require.True(t, got.AccessTokenExpiresAt.Equal(time.UnixMilli(1772370000000)))
	require.True(t, got.RefreshTokenExpiresAt.Equal(exp))
}
