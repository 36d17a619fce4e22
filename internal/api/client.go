package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"shopgate/internal/model"
	"shopgate/internal/transport"
)

const userAgent = "ShopGate/1.0"

// TokenSource supplies bearer tokens and handles their lifecycle.
// Implemented by session.Manager.
type TokenSource interface {
	// AccessToken returns the current access token, or "" when there
	// is no session.
	AccessToken() string

	// Refresh exchanges the refresh token for a new access token.
	// Returns "" (with nil error) when the session cannot be renewed.
	Refresh(ctx context.Context) (string, error)

	// ExpireSession tears down the local session after the backend
	// has definitively rejected it.
	ExpireSession()
}

// Client wraps an HTTP client with bearer authentication and a
// single refresh-and-retry cycle on 401 responses.
//
// Every authenticated call in the program goes through Do; callers
// never attach Authorization headers themselves.
type Client struct {
	httpClient *http.Client
	tokens     TokenSource
	logger     *slog.Logger
}

// Config configures a Client.
type Config struct {
	// HTTPClient overrides the default client. Optional; primarily
	// for tests.
	HTTPClient *http.Client

	Tokens TokenSource
	Logger *slog.Logger
}

// NewClient creates an authenticated API client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Tokens == nil {
		return nil, errors.New("api: token source is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport.NewBrowserTransport(30 * time.Second),
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: httpClient,
		tokens:     cfg.Tokens,
		logger:     logger,
	}, nil
}

// Do executes an authenticated request against url and decodes the
// JSON response into out (out may be nil for calls whose body is
// ignored).
//
// On a 401 the client makes exactly one refresh attempt and, if it
// yields a token, replays the request once with the new credentials.
// A failed refresh, or a 401 on the replay, expires the session and
// returns model.ErrSessionExpired. The request body is re-marshaled
// for the replay, so callers can pass plain values.
func (c *Client) Do(ctx context.Context, method, url string, body, out interface{}) error {
	resp, raw, err := c.send(ctx, method, url, body, c.tokens.AccessToken())
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		access, refreshErr := c.tokens.Refresh(ctx)
		if refreshErr != nil {
			return refreshErr
		}
		if access == "" {
			// Refresh handles its own teardown when the backend
			// rejects the token; nothing more to do here.
			return model.NewSessionExpiredError()
		}

		c.logger.Debug("retrying after token refresh",
			slog.String("method", method),
			slog.String("url", url))

		resp, raw, err = c.send(ctx, method, url, body, access)
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusUnauthorized {
			// Fresh token still rejected: the account itself is no
			// longer valid for this resource.
			c.tokens.ExpireSession()
			return model.NewSessionExpiredError()
		}
	}

	if resp.StatusCode >= 400 {
		return parseError(resp, raw)
	}

	c.checkAPIVersion(resp)

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("parsing response: %w", err)
		}
	}
	return nil
}

// Get is shorthand for Do with http.MethodGet and no body.
func (c *Client) Get(ctx context.Context, url string, out interface{}) error {
	return c.Do(ctx, http.MethodGet, url, nil, out)
}

// send performs one HTTP round trip and returns the response along
// with its fully-read body.
func (c *Client) send(ctx context.Context, method, url string, body interface{}, accessToken string) (*http.Response, []byte, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("marshaling request: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, nil, err
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, model.NewNetworkError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, model.NewNetworkError(fmt.Errorf("reading response: %w", err))
	}
	return resp, raw, nil
}

// checkAPIVersion logs when the backend announces an API version the
// client was not built against.
func (c *Client) checkAPIVersion(resp *http.Response) {
	v := resp.Header.Get("API-Version")
	if v == "" {
		return
	}
	if !CompatibleVersion(v) {
		c.logger.Warn("backend API version outside supported range",
			slog.String("got", v),
			slog.String("supported", SupportedAPIVersion))
	}
}

// parseError converts a non-2xx backend response to a model.APIError.
// The backend reports failures as {"detail": "..."} or {"error": "..."}.
func parseError(resp *http.Response, body []byte) error {
	var payload struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	json.Unmarshal(body, &payload) // Best effort parse

	msg := payload.Detail
	if msg == "" {
		msg = payload.Error
	}

	statusCode := resp.StatusCode
	switch {
	case statusCode == http.StatusTooManyRequests:
		rl, err := ParseRateLimit(resp.Header.Get("RateLimit"))
		if err == nil && rl != nil && rl.Reset > 0 {
			return model.NewRateLimitError(
				fmt.Sprintf("rate limit exceeded, retry in %ds", rl.Reset))
		}
		return model.NewRateLimitError("")
	case statusCode >= 500:
		if msg == "" {
			msg = "backend error"
		}
		return model.NewServerError(statusCode, msg)
	default:
		if msg == "" {
			msg = http.StatusText(statusCode)
		}
		return model.NewDomainError(statusCode, msg)
	}
}
