package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nerrad567/yarbo-bridge/internal/infrastructure/config"
)

const (
	// expiryMargin renews tokens this long before they expire.
	expiryMargin = 300 * time.Second

	// defaultTokenLifetime applies when the provider omits expires_in or a
	// seeded token has no readable exp claim.
	defaultTokenLifetime = 24 * time.Hour

	loginScope = "openid profile email offline_access"
)

// tokenResponse is the OAuth token endpoint response.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// TokenManager keeps a valid access token for the cloud API.
//
// It starts from the configured access and refresh tokens, if any, refreshes
// with the refresh token when the access token is about to expire, and falls
// back to a password login when refreshing fails.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type TokenManager struct {
	cfg        config.CloudConfig
	httpClient *http.Client

	access    string
	refresh   string
	expiresAt time.Time
	mu        sync.Mutex

	now    func() time.Time
	logger Logger
}

// NewTokenManager creates a token manager.
//
// Parameters:
//   - cfg: Cloud account and identity provider settings
//   - httpClient: Client used for token requests; nil uses a 15s default
//   - logger: Optional logger (may be nil)
//
// Returns:
//   - *TokenManager: Ready manager; no request is made until Token is called
func NewTokenManager(cfg config.CloudConfig, httpClient *http.Client, logger Logger) *TokenManager {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout(cfg.Timeout)}
	}
	m := &TokenManager{
		cfg:        cfg,
		httpClient: httpClient,
		refresh:    cfg.RefreshToken,
		now:        time.Now,
		logger:     logger,
	}

	if cfg.AccessToken != "" {
		m.access = cfg.AccessToken
		m.expiresAt = m.seededExpiry(cfg.AccessToken)
		m.logInfo("loaded access token from config", "expires", m.expiresAt.Add(expiryMargin).Format(time.RFC3339))
	}
	return m
}

// seededExpiry reads the exp claim of a pre-issued token. The signature is
// not checked; the API does that.
func (m *TokenManager) seededExpiry(token string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time.Add(-expiryMargin)
		}
	}
	return m.now().Add(defaultTokenLifetime)
}

// Token returns a valid access token, renewing it if needed.
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.access != "" && m.now().Before(m.expiresAt) {
		return m.access, nil
	}

	if m.refresh != "" {
		err := m.refreshLocked(ctx)
		if err == nil {
			return m.access, nil
		}
		m.logWarn("token refresh failed, trying password login", "error", err)
	}

	if err := m.loginLocked(ctx); err != nil {
		return "", err
	}
	return m.access, nil
}

// Invalidate forces the next Token call to renew.
func (m *TokenManager) Invalidate() {
	m.mu.Lock()
	m.access = ""
	m.mu.Unlock()
}

func (m *TokenManager) loginLocked(ctx context.Context) error {
	if m.cfg.Email == "" || m.cfg.Password == "" {
		return ErrNotConfigured
	}

	m.logInfo("authenticating with password grant")
	resp, err := m.requestToken(ctx, map[string]string{
		"grant_type": "password",
		"client_id":  m.cfg.Auth.ClientID,
		"audience":   m.cfg.Auth.Audience,
		"scope":      loginScope,
		"username":   m.cfg.Email,
		"password":   m.cfg.Password,
	})
	if err != nil {
		return err
	}
	m.apply(resp)
	m.logInfo("login successful", "expires_in", resp.ExpiresIn)
	return nil
}

func (m *TokenManager) refreshLocked(ctx context.Context) error {
	resp, err := m.requestToken(ctx, map[string]string{
		"grant_type":    "refresh_token",
		"client_id":     m.cfg.Auth.ClientID,
		"refresh_token": m.refresh,
	})
	if err != nil {
		return err
	}
	m.apply(resp)
	m.logInfo("token refreshed")
	return nil
}

func (m *TokenManager) apply(resp tokenResponse) {
	m.access = resp.AccessToken
	if resp.RefreshToken != "" {
		m.refresh = resp.RefreshToken
	}
	lifetime := defaultTokenLifetime
	if resp.ExpiresIn > 0 {
		lifetime = time.Duration(resp.ExpiresIn) * time.Second
	}
	m.expiresAt = m.now().Add(lifetime - expiryMargin)
}

func (m *TokenManager) requestToken(ctx context.Context, body map[string]string) (tokenResponse, error) {
	var out tokenResponse

	raw, err := json.Marshal(body)
	if err != nil {
		return out, fmt.Errorf("%w: %w", ErrAuthFailed, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL(m.cfg.Auth.Domain), bytes.NewReader(raw))
	if err != nil {
		return out, fmt.Errorf("%w: %w", ErrAuthFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return out, fmt.Errorf("%w: %w", ErrAuthFailed, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return out, fmt.Errorf("%w: reading response: %w", ErrAuthFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		return out, fmt.Errorf("%w: status %d: %s", ErrAuthFailed, resp.StatusCode, truncate(data, errorBodyLen))
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("%w: decoding response: %w", ErrAuthFailed, err)
	}
	if out.AccessToken == "" {
		return out, fmt.Errorf("%w: no access token in response", ErrAuthFailed)
	}
	return out, nil
}

// tokenURL builds the token endpoint. A bare domain is served over HTTPS.
func tokenURL(domain string) string {
	domain = strings.TrimRight(domain, "/")
	if strings.HasPrefix(domain, "http://") || strings.HasPrefix(domain, "https://") {
		return domain + "/oauth/token"
	}
	return "https://" + domain + "/oauth/token"
}

func (m *TokenManager) logInfo(msg string, args ...any) {
	if m.logger != nil {
		m.logger.Info(msg, args...)
	}
}

func (m *TokenManager) logWarn(msg string, args ...any) {
	if m.logger != nil {
		m.logger.Warn(msg, args...)
	}
}
