package tokens

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/notewire/integrations/internal/testutils"
	"github.com/notewire/integrations/models"
	"github.com/notewire/integrations/pkg/encryption"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

type fakeIntegrationRepo struct {
	updated []*models.Integration
	err     error
}

func (f *fakeIntegrationRepo) Get(context.Context, string) (*models.Integration, error) {
	return nil, models.ErrIntegrationNotFound
}

func (f *fakeIntegrationRepo) GetByProvider(context.Context, string, string) (*models.Integration, error) {
	return nil, models.ErrIntegrationNotFound
}

func (f *fakeIntegrationRepo) Select(context.Context, models.IntegrationSelectParams) ([]models.Integration, error) {
	return nil, nil
}

func (f *fakeIntegrationRepo) Create(context.Context, *models.Integration) error { return nil }

func (f *fakeIntegrationRepo) Update(_ context.Context, i *models.Integration) error {
	f.updated = append(f.updated, i)
	return f.err
}

func (f *fakeIntegrationRepo) Delete(context.Context, string) error { return nil }

// refreshingProvider counts Refresh calls and replays a scripted
// sequence of outcomes.
type refreshingProvider struct {
	staticProvider
	calls    int
	outcomes []refreshOutcome
}

type refreshOutcome struct {
	td  *models.TokenData
	err error
}

func (p *refreshingProvider) Refresh(context.Context, string) (*models.TokenData, error) {
	outcome := p.outcomes[p.calls]
	p.calls++

	return outcome.td, outcome.err
}

// staticProvider implements the base capability interface with inert
// behavior. It does not implement Refresher or Revoker.
type staticProvider struct{}

func (staticProvider) Name() string     { return "static" }
func (staticProvider) Category() string { return models.CategoryCommunication }

func (staticProvider) GetAuthURL(_, _, state string) (string, error) {
	return "https://example.com/auth?state=" + state, nil
}

func (staticProvider) ExchangeCode(context.Context, models.OAuthCallbackParams) (*models.TokenData, error) {
	return &models.TokenData{AccessToken: "exchanged"}, nil
}

func (staticProvider) ListChannels(context.Context, *models.Integration, *models.TokenData) ([]models.Channel, error) {
	return nil, nil
}

func (staticProvider) PostMessage(context.Context, *models.Connection, *models.TokenData, *models.Message) error {
	return nil
}

func (staticProvider) ValidateConnection(context.Context, *models.Connection, *models.TokenData) (bool, error) {
	return true, nil
}

type revokingProvider struct {
	staticProvider
	revoked []string
	err     error
}

func (p *revokingProvider) Revoke(_ context.Context, token string) error {
	p.revoked = append(p.revoked, token)
	return p.err
}

func newTestManager(t *testing.T, repo models.IntegrationRepository, opts ...Option) *Manager {
	t.Helper()

	cipher, err := encryption.New(testKey)
	require.NoError(t, err)

	m := NewManager(cipher, repo, zap.NewNop(), opts...)
	m.sleep = func(context.Context, time.Duration) error { return nil }

	return m
}

func TestNeedsRefresh(t *testing.T) {
	m := newTestManager(t, &fakeIntegrationRepo{})

	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	m.now = testutils.FixedClock(now)

	at := func(d time.Duration) *time.Time {
		ts := now.Add(d)
		return &ts
	}

	tests := []struct {
		name string
		td   *models.TokenData
		want bool
	}{
		{"nil token", nil, false},
		{"no expiry never refreshes", &models.TokenData{AccessToken: "a"}, false},
		{"well before buffer", &models.TokenData{ExpiresAt: at(time.Hour)}, false},
		{"just outside buffer", &models.TokenData{ExpiresAt: at(5*time.Minute + time.Second)}, false},
		{"inside buffer", &models.TokenData{ExpiresAt: at(4 * time.Minute)}, true},
		{"exactly at buffer edge", &models.TokenData{ExpiresAt: at(5 * time.Minute)}, true},
		{"already expired", &models.TokenData{ExpiresAt: at(-time.Minute)}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, m.NeedsRefresh(tc.td, DefaultRefreshBuffer))
		})
	}
}

func TestIsExpired(t *testing.T) {
	m := newTestManager(t, &fakeIntegrationRepo{})

	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	m.now = testutils.FixedClock(now)

	past := now.Add(-time.Second)
	future := now.Add(time.Second)

	assert.False(t, m.IsExpired(nil))
	assert.False(t, m.IsExpired(&models.TokenData{}))
	assert.False(t, m.IsExpired(&models.TokenData{ExpiresAt: &future}))
	assert.True(t, m.IsExpired(&models.TokenData{ExpiresAt: &past}))
}

func TestRefreshWithRetryTransientThenSuccess(t *testing.T) {
	m := newTestManager(t, &fakeIntegrationRepo{})

	p := &refreshingProvider{outcomes: []refreshOutcome{
		{err: errors.New("connection reset")},
		{err: errors.New("gateway timeout")},
		{td: &models.TokenData{AccessToken: "fresh", RefreshToken: "rotated"}},
	}}

	td, err := m.RefreshWithRetry(context.Background(), p, "refresh-token")
	require.NoError(t, err)

	assert.Equal(t, 3, p.calls)
	assert.Equal(t, "fresh", td.AccessToken)
}

func TestRefreshWithRetryExhaustsBudget(t *testing.T) {
	m := newTestManager(t, &fakeIntegrationRepo{})

	p := &refreshingProvider{outcomes: []refreshOutcome{
		{err: errors.New("transient one")},
		{err: errors.New("transient two")},
		{err: errors.New("transient three")},
	}}

	_, err := m.RefreshWithRetry(context.Background(), p, "refresh-token")
	require.Error(t, err)

	var refreshErr *models.TokenRefreshError
	require.ErrorAs(t, err, &refreshErr)

	assert.Equal(t, 3, p.calls)
	assert.Equal(t, 3, refreshErr.Attempts)
	assert.False(t, refreshErr.RequiresReauth)
	assert.ErrorContains(t, refreshErr.Err, "transient three")
}

func TestRefreshWithRetryTerminalStopsImmediately(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"invalid grant", errors.New("oauth2: \"invalid_grant\"")},
		{"revoked token", errors.New("token has been revoked")},
		{"unauthorized status", &oauth2.RetrieveError{
			Response: &http.Response{StatusCode: http.StatusUnauthorized},
		}},
		{"forbidden status", &oauth2.RetrieveError{
			Response: &http.Response{StatusCode: http.StatusForbidden},
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := newTestManager(t, &fakeIntegrationRepo{})
			p := &refreshingProvider{outcomes: []refreshOutcome{{err: tc.err}}}

			_, err := m.RefreshWithRetry(context.Background(), p, "refresh-token")
			require.Error(t, err)

			var refreshErr *models.TokenRefreshError
			require.ErrorAs(t, err, &refreshErr)

			assert.Equal(t, 1, p.calls)
			assert.True(t, refreshErr.RequiresReauth)
		})
	}
}

func TestRefreshWithRetryUnsupportedProvider(t *testing.T) {
	m := newTestManager(t, &fakeIntegrationRepo{})

	_, err := m.RefreshWithRetry(context.Background(), staticProvider{}, "refresh-token")
	require.Error(t, err)

	var refreshErr *models.TokenRefreshError
	require.ErrorAs(t, err, &refreshErr)

	assert.True(t, refreshErr.RequiresReauth)
	assert.ErrorIs(t, refreshErr.Err, models.ErrRefreshNotSupported)
}

func TestRefreshWithRetryRejectsEmptyTokenData(t *testing.T) {
	m := newTestManager(t, &fakeIntegrationRepo{})

	p := &refreshingProvider{outcomes: []refreshOutcome{{td: &models.TokenData{}}}}

	_, err := m.RefreshWithRetry(context.Background(), p, "refresh-token")
	assert.ErrorIs(t, err, models.ErrInvalidTokenData)
}

func TestRefreshWithRetryHonorsContext(t *testing.T) {
	m := newTestManager(t, &fakeIntegrationRepo{})
	m.sleep = sleepCtx

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := &refreshingProvider{outcomes: []refreshOutcome{
		{err: errors.New("transient")},
		{err: errors.New("transient")},
		{err: errors.New("transient")},
	}}

	_, err := m.RefreshWithRetry(ctx, p, "refresh-token")
	require.Error(t, err)

	assert.Equal(t, 1, p.calls)

	// The error reports how many refresh calls actually happened, not
	// the full budget.
	var refreshErr *models.TokenRefreshError
	require.ErrorAs(t, err, &refreshErr)
	assert.Equal(t, 1, refreshErr.Attempts)
}

func TestRevokeClearsTokensEvenWhenProviderFails(t *testing.T) {
	repo := &fakeIntegrationRepo{}
	m := newTestManager(t, repo)

	encrypted, err := m.cipher.Encrypt("access-token")
	require.NoError(t, err)

	expiry := time.Now().Add(time.Hour)
	integ := &models.Integration{
		ID:             "int-1",
		Provider:       "static",
		AccessToken:    []byte(encrypted),
		RefreshToken:   []byte(encrypted),
		TokenExpiresAt: &expiry,
		IsActive:       true,
	}

	p := &revokingProvider{err: errors.New("provider is down")}

	require.NoError(t, m.Revoke(context.Background(), integ, p))

	assert.Equal(t, []string{"access-token"}, p.revoked)
	assert.Nil(t, integ.AccessToken)
	assert.Nil(t, integ.RefreshToken)
	assert.Nil(t, integ.TokenExpiresAt)
	assert.False(t, integ.IsActive)
	require.Len(t, repo.updated, 1)
}

func TestRevokeWithoutRevoker(t *testing.T) {
	repo := &fakeIntegrationRepo{}
	m := newTestManager(t, repo)

	integ := &models.Integration{ID: "int-1", IsActive: true}

	require.NoError(t, m.Revoke(context.Background(), integ, staticProvider{}))
	assert.False(t, integ.IsActive)
	require.Len(t, repo.updated, 1)
}

func TestEncryptDecryptTokenData(t *testing.T) {
	m := newTestManager(t, &fakeIntegrationRepo{})

	expiry := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	td := &models.TokenData{
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    &expiry,
	}

	var integ models.Integration
	require.NoError(t, m.EncryptTokenData(&integ, td))

	assert.NotEqual(t, "access", string(integ.AccessToken))
	assert.NotEqual(t, "refresh", string(integ.RefreshToken))
	assert.Equal(t, expiry, *integ.TokenExpiresAt)

	got, err := m.DecryptTokenData(&integ)
	require.NoError(t, err)

	assert.Equal(t, "access", got.AccessToken)
	assert.Equal(t, "refresh", got.RefreshToken)
	assert.Equal(t, expiry, *got.ExpiresAt)
}

func TestEncryptTokenDataRejectsEmpty(t *testing.T) {
	m := newTestManager(t, &fakeIntegrationRepo{})

	var integ models.Integration

	assert.ErrorIs(t, m.EncryptTokenData(&integ, nil), models.ErrInvalidTokenData)
	assert.ErrorIs(t, m.EncryptTokenData(&integ, &models.TokenData{}), models.ErrInvalidTokenData)
}

func TestValidAccessToken(t *testing.T) {
	t.Run("fresh token passes through", func(t *testing.T) {
		repo := &fakeIntegrationRepo{}
		m := newTestManager(t, repo)

		expiry := time.Now().Add(time.Hour)
		integ := &models.Integration{ID: "int-1"}
		require.NoError(t, m.EncryptTokenData(integ, &models.TokenData{AccessToken: "access", ExpiresAt: &expiry}))

		td, err := m.ValidAccessToken(context.Background(), integ, staticProvider{})
		require.NoError(t, err)

		assert.Equal(t, "access", td.AccessToken)
		assert.Empty(t, repo.updated)
	})

	t.Run("near expiry refreshes and persists", func(t *testing.T) {
		repo := &fakeIntegrationRepo{}
		m := newTestManager(t, repo)

		expiry := time.Now().Add(time.Minute)
		integ := &models.Integration{ID: "int-1"}
		require.NoError(t, m.EncryptTokenData(integ, &models.TokenData{
			AccessToken:  "stale",
			RefreshToken: "refresh",
			ExpiresAt:    &expiry,
		}))

		p := &refreshingProvider{outcomes: []refreshOutcome{
			{td: &models.TokenData{AccessToken: "fresh"}},
		}}

		td, err := m.ValidAccessToken(context.Background(), integ, p)
		require.NoError(t, err)

		assert.Equal(t, "fresh", td.AccessToken)
		// Provider did not rotate the refresh token; the old one is kept.
		assert.Equal(t, "refresh", td.RefreshToken)
		require.Len(t, repo.updated, 1)

		stored, err := m.DecryptTokenData(integ)
		require.NoError(t, err)
		assert.Equal(t, "fresh", stored.AccessToken)
	})

	t.Run("expired without refresh token needs reauth", func(t *testing.T) {
		m := newTestManager(t, &fakeIntegrationRepo{})

		expiry := time.Now().Add(-time.Minute)
		integ := &models.Integration{ID: "int-1"}
		require.NoError(t, m.EncryptTokenData(integ, &models.TokenData{AccessToken: "stale", ExpiresAt: &expiry}))

		_, err := m.ValidAccessToken(context.Background(), integ, staticProvider{})
		assert.ErrorIs(t, err, models.ErrReauthorizationNeeded)
	})

	t.Run("no stored token needs reauth", func(t *testing.T) {
		m := newTestManager(t, &fakeIntegrationRepo{})

		integ := &models.Integration{ID: "int-1"}

		_, err := m.ValidAccessToken(context.Background(), integ, staticProvider{})
		assert.ErrorIs(t, err, models.ErrReauthorizationNeeded)
	})
}

func TestBackoffCapped(t *testing.T) {
	m := newTestManager(t, &fakeIntegrationRepo{}, WithBackoff(time.Second, 3*time.Second))

	assert.Equal(t, time.Second, m.backoff(1))
	assert.Equal(t, 2*time.Second, m.backoff(2))
	assert.Equal(t, 3*time.Second, m.backoff(3))
	assert.Equal(t, 3*time.Second, m.backoff(10))
}
