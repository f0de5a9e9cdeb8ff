// Package tokens owns the integration credential lifecycle: encryption
// at rest, expiry checks, refresh with bounded retry and revocation.
package tokens

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/notewire/integrations/models"
	"github.com/notewire/integrations/pkg/encryption"
	"github.com/notewire/integrations/provider"
)

const (
	// DefaultRefreshBuffer is how long before expiry a token counts as
	// needing refresh.
	DefaultRefreshBuffer = 5 * time.Minute

	defaultMaxAttempts = 3
	defaultBackoffBase = 500 * time.Millisecond
	defaultBackoffCap  = 5 * time.Second
)

// Manager drives the token lifecycle. All token data that reaches
// storage passes through the cipher; plaintext exists in memory only
// at the point of use.
type Manager struct {
	cipher       *encryption.Cipher
	integrations models.IntegrationRepository
	logger       *zap.Logger

	maxAttempts int
	backoffBase time.Duration
	backoffCap  time.Duration
	now         func() time.Time
	sleep       func(context.Context, time.Duration) error
}

// Option configures a Manager
type Option func(*Manager)

// WithMaxAttempts sets the retry budget for transient refresh failures
func WithMaxAttempts(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxAttempts = n
		}
	}
}

// WithBackoff sets the exponential backoff base and cap
func WithBackoff(base, cap time.Duration) Option {
	return func(m *Manager) {
		m.backoffBase = base
		m.backoffCap = cap
	}
}

func NewManager(cipher *encryption.Cipher, integrations models.IntegrationRepository, logger *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		cipher:       cipher,
		integrations: integrations,
		logger:       logger,
		maxAttempts:  defaultMaxAttempts,
		backoffBase:  defaultBackoffBase,
		backoffCap:   defaultBackoffCap,
		now:          time.Now,
		sleep:        sleepCtx,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// NeedsRefresh reports whether the token is inside the refresh buffer
// before its expiry. Tokens without an expiry never need refresh.
func (m *Manager) NeedsRefresh(td *models.TokenData, buffer time.Duration) bool {
	if td == nil || td.ExpiresAt == nil {
		return false
	}

	if buffer <= 0 {
		buffer = DefaultRefreshBuffer
	}

	return !m.now().Before(td.ExpiresAt.Add(-buffer))
}

// IsExpired reports whether the token is past its expiry.
func (m *Manager) IsExpired(td *models.TokenData) bool {
	if td == nil || td.ExpiresAt == nil {
		return false
	}

	return !m.now().Before(*td.ExpiresAt)
}

// RefreshWithRetry exchanges a refresh token for fresh credentials.
// Terminal failures (revoked or invalid grants, auth status codes) and
// unsupported providers fail immediately with RequiresReauth set;
// transient failures retry with capped exponential backoff.
func (m *Manager) RefreshWithRetry(ctx context.Context, p provider.Provider, refreshToken string) (*models.TokenData, error) {
	refresher, ok := p.(provider.Refresher)
	if !ok {
		return nil, &models.TokenRefreshError{
			RequiresReauth: true,
			Err:            models.ErrRefreshNotSupported,
		}
	}

	var (
		lastErr  error
		attempts int
	)

	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		attempts = attempt

		td, err := refresher.Refresh(ctx, refreshToken)
		if err == nil {
			if td == nil || td.AccessToken == "" {
				return nil, models.ErrInvalidTokenData
			}

			return td, nil
		}

		lastErr = err

		if isTerminalRefreshError(err) {
			return nil, &models.TokenRefreshError{
				RequiresReauth: true,
				Attempts:       attempt,
				Err:            err,
			}
		}

		if attempt < m.maxAttempts {
			if err := m.sleep(ctx, m.backoff(attempt)); err != nil {
				lastErr = err

				break
			}
		}
	}

	return nil, &models.TokenRefreshError{
		Attempts: attempts,
		Err:      lastErr,
	}
}

// Revoke is best-effort: provider-side revocation failures are logged
// and swallowed, but the local token columns are always cleared and
// the integration always deactivated.
func (m *Manager) Revoke(ctx context.Context, integration *models.Integration, p provider.Provider) error {
	if revoker, ok := p.(provider.Revoker); ok {
		if token, err := m.decrypt(integration.AccessToken); err == nil && token != "" {
			if err := revoker.Revoke(ctx, token); err != nil {
				m.logger.Warn("provider revoke failed",
					zap.String("integration_id", integration.ID),
					zap.String("provider", integration.Provider),
					zap.Error(err))
			}
		}
	}

	integration.AccessToken = nil
	integration.RefreshToken = nil
	integration.TokenExpiresAt = nil
	integration.IsActive = false

	return m.integrations.Update(ctx, integration)
}

// ValidAccessToken decrypts the integration's credentials and returns
// a usable access token, refreshing and persisting when needed. When
// no usable token can be produced it returns ErrReauthorizationNeeded.
func (m *Manager) ValidAccessToken(ctx context.Context, integration *models.Integration, p provider.Provider) (*models.TokenData, error) {
	td, err := m.DecryptTokenData(integration)
	if err != nil {
		return nil, err
	}

	if td.AccessToken == "" {
		return nil, models.ErrReauthorizationNeeded
	}

	if !m.NeedsRefresh(td, DefaultRefreshBuffer) {
		return td, nil
	}

	if td.RefreshToken == "" {
		if m.IsExpired(td) {
			return nil, models.ErrReauthorizationNeeded
		}

		return td, nil
	}

	fresh, err := m.RefreshWithRetry(ctx, p, td.RefreshToken)
	if err != nil {
		return nil, err
	}

	// Some providers do not rotate the refresh token on refresh.
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = td.RefreshToken
	}

	if err := m.EncryptTokenData(integration, fresh); err != nil {
		return nil, err
	}

	if err := m.integrations.Update(ctx, integration); err != nil {
		return nil, err
	}

	return fresh, nil
}

// EncryptTokenData writes the encrypted form of td onto integration.
func (m *Manager) EncryptTokenData(integration *models.Integration, td *models.TokenData) error {
	if td == nil || td.AccessToken == "" {
		return models.ErrInvalidTokenData
	}

	access, err := m.cipher.Encrypt(td.AccessToken)
	if err != nil {
		return err
	}

	integration.AccessToken = []byte(access)
	integration.RefreshToken = nil
	integration.TokenExpiresAt = td.ExpiresAt

	if td.RefreshToken != "" {
		refresh, err := m.cipher.Encrypt(td.RefreshToken)
		if err != nil {
			return err
		}

		integration.RefreshToken = []byte(refresh)
	}

	return nil
}

// DecryptTokenData reconstructs the transient TokenData from the
// integration's encrypted columns.
func (m *Manager) DecryptTokenData(integration *models.Integration) (*models.TokenData, error) {
	access, err := m.decrypt(integration.AccessToken)
	if err != nil {
		return nil, err
	}

	refresh, err := m.decrypt(integration.RefreshToken)
	if err != nil {
		return nil, err
	}

	return &models.TokenData{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    integration.TokenExpiresAt,
	}, nil
}

func (m *Manager) decrypt(stored []byte) (string, error) {
	if len(stored) == 0 {
		return "", nil
	}

	return m.cipher.Decrypt(string(stored))
}

func (m *Manager) backoff(attempt int) time.Duration {
	d := m.backoffBase << (attempt - 1)
	if d > m.backoffCap {
		d = m.backoffCap
	}

	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var terminalRefreshMarkers = []string{
	"invalid_grant",
	"invalid_token",
	"revoked",
	"unauthorized",
}

func isTerminalRefreshError(err error) bool {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		code := retrieveErr.Response.StatusCode
		if code == http.StatusUnauthorized || code == http.StatusForbidden {
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range terminalRefreshMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}

	return false
}
