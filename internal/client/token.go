package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"bwsrank/ingestion/internal/metrics"
	"bwsrank/ingestion/internal/state"

	"github.com/itbasis/go-clock"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// Credentials identify the OAuth client
type Credentials struct {
	ClientID     string
	ClientSecret string
}

type tokenRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	GrantType    string `json:"grant_type"`
	Scope        string `json:"scope"`
}

type tokenResponse struct {
	AccessToken string  `json:"access_token"`
	ExpiresIn   float64 `json:"expires_in"`
	TokenType   string  `json:"token_type"`
}

// TokenProvider hands out a client-credentials access token, refreshing it
// through the token endpoint once the persisted expiry has passed.
type TokenProvider struct {
	tokenURL    string
	credentials Credentials
	httpClient  *http.Client
	store       state.Store
	clock       clock.Clock
}

// NewTokenProvider creates a provider persisting the token in store
func NewTokenProvider(tokenURL string, creds Credentials, timeout time.Duration, store state.Store, clk clock.Clock) *TokenProvider {
	return &TokenProvider{
		tokenURL:    tokenURL,
		credentials: creds,
		httpClient:  &http.Client{Timeout: timeout},
		store:       store,
		clock:       clk,
	}
}

// AccessToken returns the persisted token, exchanging credentials first if it
// is missing or expired
func (p *TokenProvider) AccessToken(ctx context.Context) (string, error) {
	if token, ok := p.cachedToken(ctx); ok {
		return token, nil
	}

	resp, err := p.exchange(ctx)
	if err != nil {
		return "", err
	}

	expiresAt := math.Round(p.nowSeconds() + resp.ExpiresIn)
	if err := p.store.Set(ctx, state.KeyTokenExpiry, strconv.FormatInt(int64(expiresAt), 10)); err != nil {
		return "", fmt.Errorf("failed to persist token expiry: %w", err)
	}
	if err := p.store.Set(ctx, state.KeyAccessToken, resp.AccessToken); err != nil {
		return "", fmt.Errorf("failed to persist access token: %w", err)
	}

	metrics.TokenRefreshesTotal.Inc()
	log.Info().
		Int64("expires_at", int64(expiresAt)).
		Msg("Got access token")

	return resp.AccessToken, nil
}

func (p *TokenProvider) cachedToken(ctx context.Context) (string, bool) {
	rawExpiry, err := p.store.Get(ctx, state.KeyTokenExpiry)
	if err != nil {
		if !errors.Is(err, state.ErrNotFound) {
			log.Warn().Err(err).Msg("Failed to read token expiry, refreshing")
		}
		return "", false
	}

	expiresAt, err := strconv.ParseFloat(rawExpiry, 64)
	if err != nil || p.nowSeconds() >= expiresAt {
		return "", false
	}

	token, err := p.store.Get(ctx, state.KeyAccessToken)
	if err != nil || token == "" {
		return "", false
	}

	return token, true
}

func (p *TokenProvider) exchange(ctx context.Context) (*tokenResponse, error) {
	payload, err := json.Marshal(tokenRequest{
		ClientID:     p.credentials.ClientID,
		ClientSecret: p.credentials.ClientSecret,
		GrantType:    "client_credentials",
		Scope:        "public",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := p.httpClient.Do(req)
	if err != nil {
		metrics.RecordAPICall("oauth/token", "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	metrics.RecordAPICall("oauth/token", strconv.Itoa(resp.StatusCode), time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token response: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("token response has no access_token")
	}

	return &tr, nil
}

func (p *TokenProvider) nowSeconds() float64 {
	return float64(p.clock.Now().UnixMilli()) / 1000
}

// TokenSource adapts the provider to oauth2 so an http.Client can attach the
// bearer header on every request. ctx bounds the store and exchange calls.
func (p *TokenProvider) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, provider: p}
}

type tokenSource struct {
	ctx      context.Context
	provider *TokenProvider
}

func (s *tokenSource) Token() (*oauth2.Token, error) {
	token, err := s.provider.AccessToken(s.ctx)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{AccessToken: token, TokenType: "Bearer"}, nil
}
