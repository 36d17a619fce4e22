package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"shopgate/internal/model"
)

// Config holds session manager configuration.
type Config struct {
	// AuthURL is the base URL of the auth service
	// (e.g. "https://shop.example.com/api/newauth").
	AuthURL string
	// HTTPClient is used for token endpoints. These calls bypass the
	// authenticated request wrapper: a refresh must never trigger
	// another refresh. Defaults to a 30s-timeout client.
	HTTPClient *http.Client
	// OnExpired is invoked once when a live session is expired
	// reactively (failed refresh). This is where a UI notifies the user
	// and redirects to the login entry point. Optional.
	OnExpired func()
	Logger    *slog.Logger
}

// Manager owns the token pair lifecycle: login, refresh-on-demand,
// logout, and reactive expiration. Dependent state (the cart store)
// registers reset hooks that run whenever the session is cleared.
type Manager struct {
	store      Store
	httpClient *http.Client
	authURL    string
	onExpired  func()
	logger     *slog.Logger
	resets     []func()
}

// New creates a session manager over the given store.
func New(store Store, cfg Config) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.AuthURL == "" {
		return nil, fmt.Errorf("auth URL is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:      store,
		httpClient: httpClient,
		authURL:    strings.TrimSuffix(cfg.AuthURL, "/"),
		onExpired:  cfg.OnExpired,
		logger:     logger,
	}, nil
}

// OnClear registers a hook that runs whenever the session is cleared
// (logout or expiration). Used by dependent state like the cart store.
func (m *Manager) OnClear(fn func()) {
	m.resets = append(m.resets, fn)
}

// AccessToken returns the currently stored access token, empty when
// there is no session.
func (m *Manager) AccessToken() string {
	t, err := m.store.Load()
	if err != nil {
		m.logger.Warn("loading tokens", slog.String("error", err.Error()))
		return ""
	}
	return t.Access
}

// User returns the cached identity of the signed-in user, nil when
// there is no session.
func (m *Manager) User() *model.User {
	u, err := m.store.LoadUser()
	if err != nil {
		m.logger.Warn("loading cached user", slog.String("error", err.Error()))
		return nil
	}
	return u
}

// Login exchanges credentials for a token pair and persists it.
// POST {auth}/token/ with {email, password}.
func (m *Manager) Login(ctx context.Context, email, password string) error {
	body := map[string]string{"email": email, "password": password}
	var resp struct {
		Access  string      `json:"access"`
		Refresh string      `json:"refresh"`
		User    *model.User `json:"user"`
	}
	if err := m.post(ctx, "/token/", body, "", &resp); err != nil {
		return err
	}
	if resp.Access == "" || resp.Refresh == "" {
		return model.NewServerError(0, "login response missing tokens")
	}
	if err := m.store.Save(Tokens{Access: resp.Access, Refresh: resp.Refresh}); err != nil {
		return err
	}
	if resp.User != nil {
		if err := m.store.SaveUser(resp.User); err != nil {
			m.logger.Warn("caching user", slog.String("error", err.Error()))
		}
	}
	return nil
}

// SetTokens persists a token pair obtained out of band.
func (m *Manager) SetTokens(access, refresh string) error {
	return m.store.Save(Tokens{Access: access, Refresh: refresh})
}

// Refresh attempts to obtain a new access token using the stored
// refresh token. Exactly one attempt is made per call; refresh
// failures are never retried here.
//
// Returns the new access token, or "" when there is no session or the
// session could not be refreshed. A non-2xx refresh response expires
// the session before returning. Transport failures return the error
// without expiring (the session may still be valid).
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	t, err := m.store.Load()
	if err != nil {
		return "", err
	}
	if t.Refresh == "" {
		// No session to refresh.
		return "", nil
	}

	var resp struct {
		Access string `json:"access"`
	}
	err = m.post(ctx, "/token/refresh/", map[string]string{"refresh": t.Refresh}, "", &resp)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode > 0 {
			// The backend rejected the refresh token: the session is gone.
			m.logger.Warn("token refresh rejected", slog.String("status", apiErr.Status()))
			m.ExpireSession()
			return "", nil
		}
		return "", err
	}
	if resp.Access == "" {
		m.ExpireSession()
		return "", nil
	}

	t.Access = resp.Access
	if err := m.store.Save(t); err != nil {
		return "", err
	}
	return resp.Access, nil
}

// Logout revokes the refresh token server-side (best effort) and
// clears the session. Triggered by user action, unlike ExpireSession.
func (m *Manager) Logout(ctx context.Context) error {
	t, err := m.store.Load()
	if err != nil {
		return err
	}
	if t.Refresh == "" {
		return m.ClearSession()
	}

	reqErr := m.post(ctx, "/logout/", map[string]string{"refresh_token": t.Refresh}, t.Access, nil)
	if reqErr != nil {
		m.logger.Warn("logout request failed", slog.String("error", reqErr.Error()))
	}
	if err := m.ClearSession(); err != nil {
		return err
	}
	return reqErr
}

// ClearSession removes both tokens and any cached user data from
// persistent storage and resets dependent application state.
func (m *Manager) ClearSession() error {
	err := m.store.Clear()
	for _, fn := range m.resets {
		fn()
	}
	return err
}

// ExpireSession handles reactive expiration after a failed
// authenticated call: notify, then clear. No-op when there is no live
// session, so the wrapper and Refresh can both call it without a
// double notification.
func (m *Manager) ExpireSession() {
	t, err := m.store.Load()
	if err == nil && t.Access == "" && t.Refresh == "" {
		return
	}
	m.logger.Warn("session expired")
	if m.onExpired != nil {
		m.onExpired()
	}
	if err := m.ClearSession(); err != nil {
		m.logger.Warn("clearing session", slog.String("error", err.Error()))
	}
}

// post issues a JSON POST to the auth service. bearer is optional.
func (m *Manager) post(ctx context.Context, path string, body interface{}, bearer string, out interface{}) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.authURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return model.NewNetworkError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseAuthError(resp.StatusCode, respBody)
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("parsing response: %w", err)
		}
	}
	return nil
}

// parseAuthError converts auth service errors to APIError.
func parseAuthError(statusCode int, body []byte) error {
	var detail struct {
		Detail string `json:"detail"`
	}
	json.Unmarshal(body, &detail) // Best effort parse

	switch {
	case statusCode == 401 || statusCode == 403:
		msg := detail.Detail
		if msg == "" {
			msg = "authentication failed"
		}
		return model.NewUnauthorizedError(msg)
	case statusCode >= 500:
		return model.NewServerError(statusCode, detail.Detail)
	default:
		return model.NewDomainError(statusCode, detail.Detail)
	}
}
