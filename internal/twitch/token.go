package twitch

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/nicklaw5/helix"

	"github.com/MimeLyc/clip-scraper/internal/errs"
	"github.com/MimeLyc/clip-scraper/pkg/log"
)

const (
	expiryBuffer     = 5 * time.Minute
	defaultExpiresIn = 3600
)

type Token struct {
	Value     string
	ExpiresAt time.Time
}

// usableAt reports whether the token can still be sent at now, keeping a
// safety buffer before the upstream expiry.
func (t *Token) usableAt(now time.Time) bool {
	return t != nil && t.Value != "" && now.Before(t.ExpiresAt.Add(-expiryBuffer))
}

// TokenManager owns the app access token obtained with the client-credentials
// grant. It is safe for concurrent use; refreshes happen under the write lock
// so readers never see a half-updated token.
type TokenManager struct {
	clientID     string
	clientSecret string
	authURL      string
	httpClient   *http.Client
	now          func() time.Time

	mu    sync.RWMutex
	token *Token
}

type TokenOption func(*TokenManager)

func WithAuthURL(authURL string) TokenOption {
	return func(m *TokenManager) {
		m.authURL = strings.TrimRight(authURL, "/")
	}
}

func WithTokenHTTPClient(client *http.Client) TokenOption {
	return func(m *TokenManager) {
		m.httpClient = client
	}
}

func WithClock(now func() time.Time) TokenOption {
	return func(m *TokenManager) {
		m.now = now
	}
}

func NewTokenManager(clientID, clientSecret string, opts ...TokenOption) (*TokenManager, error) {
	clientID = strings.TrimSpace(clientID)
	clientSecret = strings.TrimSpace(clientSecret)
	if clientID == "" || clientSecret == "" {
		return nil, errs.New(errs.ErrCredentialsMissing, "missing Twitch client id or client secret")
	}

	m := &TokenManager{
		clientID:     clientID,
		clientSecret: clientSecret,
		authURL:      DefaultAuthURL,
		httpClient:   NewHTTPClient(DefaultRequestTimeout),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *TokenManager) ClientID() string {
	return m.clientID
}

// Token returns a usable token, requesting a new one when none is cached,
// the cached one is inside the expiry buffer, or forceRefresh is set.
func (m *TokenManager) Token(ctx context.Context, forceRefresh bool) (Token, error) {
	if !forceRefresh {
		m.mu.RLock()
		tok := m.token
		m.mu.RUnlock()
		if tok.usableAt(m.now()) {
			return *tok, nil
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !forceRefresh && m.token.usableAt(m.now()) {
		return *m.token, nil
	}
	return m.refreshLocked(ctx)
}

// refreshIfStale replaces the token only if stale is still the current value.
// Concurrent callers that saw the same rejected token trigger one refresh.
func (m *TokenManager) refreshIfStale(ctx context.Context, stale string) (Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token != nil && m.token.Value != stale && m.token.usableAt(m.now()) {
		return *m.token, nil
	}
	return m.refreshLocked(ctx)
}

// Headers returns the authorization header set for an API request.
func (m *TokenManager) Headers(ctx context.Context) (http.Header, error) {
	tok, err := m.Token(ctx, false)
	if err != nil {
		return nil, err
	}
	return m.headersFor(tok), nil
}

func (m *TokenManager) headersFor(tok Token) http.Header {
	h := make(http.Header)
	h.Set("Client-ID", m.clientID)
	h.Set("Authorization", "Bearer "+tok.Value)
	return h
}

func (m *TokenManager) refreshLocked(ctx context.Context) (Token, error) {
	form := url.Values{}
	form.Set("client_id", m.clientID)
	form.Set("client_secret", m.clientSecret)
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.authURL+"/token", strings.NewReader(form.Encode()))
	if err != nil {
		return Token{}, errs.Wrap(err, errs.ErrAuthRequestFailed, "build token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return Token{}, errs.Wrap(err, errs.ErrAuthRequestFailed, "network error when requesting token")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Token{}, errs.Wrap(err, errs.ErrAuthRequestFailed, "read token response").WithStatus(resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return Token{}, errs.AuthRequestFailed(resp.StatusCode, string(body))
	}

	var creds helix.AccessCredentials
	if err := json.Unmarshal(body, &creds); err != nil {
		return Token{}, errs.Wrap(err, errs.ErrAuthRequestFailed, "decode token response").WithStatus(resp.StatusCode)
	}
	if creds.AccessToken == "" {
		return Token{}, errs.New(errs.ErrAuthRequestFailed, "token response has no access_token").WithStatus(resp.StatusCode)
	}

	expiresIn := creds.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = defaultExpiresIn
	}
	tok := &Token{
		Value:     creds.AccessToken,
		ExpiresAt: m.now().Add(time.Duration(expiresIn) * time.Second),
	}
	m.token = tok
	log.Info("Acquired Twitch app token, expires at %s", tok.ExpiresAt.Format(time.RFC3339))
	return *tok, nil
}

// Validate asks the auth server whether the current token is still accepted.
func (m *TokenManager) Validate(ctx context.Context) bool {
	m.mu.RLock()
	tok := m.token
	m.mu.RUnlock()
	if tok == nil {
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.authURL+"/validate", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "OAuth "+tok.Value)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// Revoke invalidates the token upstream and forgets it locally.
// Upstream failures are ignored.
func (m *TokenManager) Revoke(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == nil {
		return
	}

	form := url.Values{}
	form.Set("client_id", m.clientID)
	form.Set("token", m.token.Value)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.authURL+"/revoke", strings.NewReader(form.Encode()))
	if err == nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if resp, err := m.httpClient.Do(req); err != nil {
			log.Debug("Token revoke failed: %v", err)
		} else {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
	}
	m.token = nil
}

// NewHTTPClient returns a client whose dial and overall request time are bounded by timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout: timeout,
	}
	transport := &http.Transport{DialContext: dialer.DialContext}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
