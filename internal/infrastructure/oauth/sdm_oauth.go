package oauth

import (
	"context"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"nestcheckout-service/internal/domain/entity"
	"nestcheckout-service/pkg/logger"
)

// SDMScope is the OAuth scope for the Smart Device Management API.
const SDMScope = "https://www.googleapis.com/auth/sdm.service"

// refreshMargin is the minimum remaining token lifetime a caller may
// observe. Tokens closer to expiry than this are refreshed first.
const refreshMargin = 10 * time.Minute

// TokenManager exchanges a long-lived refresh token for access tokens and
// keeps the current one until it approaches expiry.
type TokenManager struct {
	config       *oauth2.Config
	refreshToken string
	logger       logger.Logger

	mu          sync.Mutex
	current     *oauth2.Token
	lastRefresh time.Time

	now func() time.Time
}

// NewTokenManager creates a token manager against the Google token
// endpoint.
func NewTokenManager(clientID, clientSecret, refreshToken string, logger logger.Logger) *TokenManager {
	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{SDMScope},
	}
	return newTokenManager(config, refreshToken, logger)
}

// NewTokenManagerWithEndpoint creates a token manager against a custom
// token endpoint. Used in tests.
func NewTokenManagerWithEndpoint(clientID, clientSecret, refreshToken string, endpoint oauth2.Endpoint, logger logger.Logger) *TokenManager {
	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     endpoint,
		Scopes:       []string{SDMScope},
	}
	return newTokenManager(config, refreshToken, logger)
}

func newTokenManager(config *oauth2.Config, refreshToken string, logger logger.Logger) *TokenManager {
	return &TokenManager{
		config:       config,
		refreshToken: refreshToken,
		logger:       logger,
		now:          time.Now,
	}
}

// Token returns a valid access token, refreshing first when none is held,
// the held one is expired, or its expiry is within the safety margin.
// Refresh failures are not retried here; retrying is the caller's call.
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil && m.current.AccessToken != "" && m.current.Expiry.After(m.now().Add(refreshMargin)) {
		return m.current.AccessToken, nil
	}

	m.logger.Info("Refreshing OAuth token")
	source := m.config.TokenSource(ctx, &oauth2.Token{RefreshToken: m.refreshToken})
	token, err := source.Token()
	if err != nil {
		m.logger.Error("Failed to refresh token", "error", err)
		return "", &entity.AuthError{Err: err}
	}

	m.current = token
	m.lastRefresh = m.now()
	m.logger.Info("Token refreshed", "expiry", token.Expiry.Format(time.RFC3339))

	return token.AccessToken, nil
}

// Expiry returns the current token expiry, or nil when no token is held.
func (m *TokenManager) Expiry() *time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	expiry := m.current.Expiry
	return &expiry
}

// LastRefresh returns the instant of the last successful refresh, or nil
// if no refresh has happened yet.
func (m *TokenManager) LastRefresh() *time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastRefresh.IsZero() {
		return nil
	}
	last := m.lastRefresh
	return &last
}
