package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"bwsrank/ingestion/internal/state"
	"bwsrank/ingestion/internal/testutils"

	"github.com/itbasis/go-clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(fake *testutils.FakeOsuServer, store state.Store, clk clock.Clock) *TokenProvider {
	return NewTokenProvider(
		fake.TokenURL(),
		Credentials{ClientID: testutils.FakeClientID, ClientSecret: testutils.FakeClientSecret},
		5*time.Second,
		store,
		clk,
	)
}

func TestTokenProvider_FetchesAndPersists(t *testing.T) {
	ctx := context.Background()
	fake := testutils.NewFakeOsuServer()
	defer fake.Close()

	clk := clock.NewMock()
	clk.Add(1000 * time.Second)
	store := state.NewMemoryStore(clk)
	p := newTestProvider(fake, store, clk)

	token, err := p.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "token-1", token)
	assert.Equal(t, 1, fake.TokenRequests())

	assert.Equal(t, map[string]string{
		"client_id":     testutils.FakeClientID,
		"client_secret": testutils.FakeClientSecret,
		"grant_type":    "client_credentials",
		"scope":         "public",
	}, fake.LastTokenRequest())

	persisted, err := store.Get(ctx, state.KeyAccessToken)
	require.NoError(t, err)
	assert.Equal(t, "token-1", persisted)

	expiry, err := store.Get(ctx, state.KeyTokenExpiry)
	require.NoError(t, err)
	assert.Equal(t, "87400", expiry, "absolute expiry is now + expires_in")
}

func TestTokenProvider_ReusesUntilExpiry(t *testing.T) {
	ctx := context.Background()
	fake := testutils.NewFakeOsuServer()
	defer fake.Close()
	fake.SetTokenTTL(3600)

	clk := clock.NewMock()
	store := state.NewMemoryStore(clk)
	p := newTestProvider(fake, store, clk)

	first, err := p.AccessToken(ctx)
	require.NoError(t, err)

	clk.Add(3599 * time.Second)
	again, err := p.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.Equal(t, 1, fake.TokenRequests())

	clk.Add(time.Second)
	refreshed, err := p.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "token-2", refreshed, "token is refreshed once now reaches the expiry")
	assert.Equal(t, 2, fake.TokenRequests())
}

func TestTokenProvider_SharedAcrossInvocations(t *testing.T) {
	ctx := context.Background()
	fake := testutils.NewFakeOsuServer()
	defer fake.Close()

	clk := clock.NewMock()
	store := state.NewMemoryStore(clk)

	_, err := newTestProvider(fake, store, clk).AccessToken(ctx)
	require.NoError(t, err)

	token, err := newTestProvider(fake, store, clk).AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "token-1", token, "a new provider reads the persisted token")
	assert.Equal(t, 1, fake.TokenRequests())
}

func TestTokenProvider_MissingTokenWithExpiry(t *testing.T) {
	ctx := context.Background()
	fake := testutils.NewFakeOsuServer()
	defer fake.Close()

	clk := clock.NewMock()
	store := state.NewMemoryStore(clk)
	require.NoError(t, store.Set(ctx, state.KeyTokenExpiry, "999999999"))

	token, err := newTestProvider(fake, store, clk).AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "token-1", token)
}

func TestTokenProvider_BadCredentials(t *testing.T) {
	ctx := context.Background()
	fake := testutils.NewFakeOsuServer()
	defer fake.Close()

	clk := clock.NewMock()
	store := state.NewMemoryStore(clk)
	p := NewTokenProvider(fake.TokenURL(), Credentials{ClientID: "nope", ClientSecret: "nope"}, 5*time.Second, store, clk)

	_, err := p.AccessToken(ctx)
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 401, apiErr.StatusCode)

	_, err = store.Get(ctx, state.KeyAccessToken)
	assert.ErrorIs(t, err, state.ErrNotFound, "nothing is persisted on failure")
}

func TestTokenSource(t *testing.T) {
	ctx := context.Background()
	fake := testutils.NewFakeOsuServer()
	defer fake.Close()

	clk := clock.NewMock()
	p := newTestProvider(fake, state.NewMemoryStore(clk), clk)

	tok, err := p.TokenSource(ctx).Token()
	require.NoError(t, err)
	assert.Equal(t, "token-1", tok.AccessToken)
	assert.Equal(t, "Bearer", tok.Type())
	assert.True(t, tok.Valid())
}
