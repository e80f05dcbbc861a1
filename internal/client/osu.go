package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"bwsrank/ingestion/internal/metrics"
	"bwsrank/ingestion/internal/models"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// Ruleset is the osu! game mode segment of the user endpoint
const Ruleset = "osu"

// APIError is a non-2xx response from the osu! API or its token endpoint
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API returned status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the status is worth another attempt
func (e *APIError) Retryable() bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Options tunes the client. Zero MaxRetries keeps every failure fatal.
type Options struct {
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// Client is the osu! API v2 client
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	retryDelay time.Duration
}

// NewClient creates a client whose requests carry a bearer token from tokens
func NewClient(baseURL string, tokens oauth2.TokenSource, opts Options) *Client {
	return &Client{
		baseURL:    baseURL,
		maxRetries: opts.MaxRetries,
		retryDelay: opts.RetryDelay,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
			Transport: &oauth2.Transport{
				Source: tokens,
				Base: &http.Transport{
					MaxIdleConns:        10,
					MaxIdleConnsPerHost: 2,
					IdleConnTimeout:     90 * time.Second,
				},
			},
		},
	}
}

// get performs a GET request against the API, retrying transient failures
// when retries are enabled
func (c *Client) get(ctx context.Context, endpoint, path string, params url.Values) ([]byte, error) {
	u := fmt.Sprintf("%s/%s", c.baseURL, path)
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff: delay, 2*delay, 4*delay...
			backoff := c.retryDelay * time.Duration(1<<uint(attempt-1))
			log.Info().
				Str("url", u).
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("Retrying API request after backoff")

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		body, err := c.do(ctx, endpoint, u, attempt)
		if err == nil {
			return body, nil
		}
		lastErr = err

		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Retryable() {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, err
		}
		if attempt < c.maxRetries {
			log.Warn().
				Err(err).
				Str("url", u).
				Int("attempt", attempt+1).
				Msg("Received retryable error, will retry")
		}
	}

	return nil, lastErr
}

func (c *Client) do(ctx context.Context, endpoint, u string, attempt int) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	log.Debug().
		Str("url", u).
		Int("attempt", attempt+1).
		Msg("Making API request")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordAPICall(endpoint, "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	metrics.RecordAPICall(endpoint, strconv.Itoa(resp.StatusCode), time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	log.Debug().
		Str("url", u).
		Int("status", resp.StatusCode).
		Int("size", len(body)).
		Msg("API request successful")

	return body, nil
}

// FetchUser fetches a user's osu! ruleset profile by numeric id
func (c *Client) FetchUser(ctx context.Context, userID int) (*models.UserResponse, error) {
	path := fmt.Sprintf("users/%d/%s", userID, Ruleset)
	body, err := c.get(ctx, "users", path, url.Values{"key": {"id"}})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user %d: %w", userID, err)
	}

	var user models.UserResponse
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user %d: %w", userID, err)
	}

	return &user, nil
}
