// Package oauthflow drives the start and completion of the OAuth
// handshake. Persisting the resulting integration is the caller's
// responsibility; token exchange and storage are decoupled.
package oauthflow

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/notewire/integrations/config"
	"github.com/notewire/integrations/models"
	"github.com/notewire/integrations/oauthstate"
	"github.com/notewire/integrations/registry"
	"github.com/notewire/integrations/tokens"
)

// StartResult is handed back to the web boundary to redirect the user.
type StartResult struct {
	AuthURL string
	State   string
}

// CompleteResult carries the exchanged tokens and the decoded state
// that authorized the exchange.
type CompleteResult struct {
	TokenData    *models.TokenData
	DecodedState *models.OAuthState
}

type Flow struct {
	registry *registry.Registry
	codec    *oauthstate.Codec
	manager  *tokens.Manager
	settings *config.Settings
	logger   *zap.Logger
}

func New(reg *registry.Registry, codec *oauthstate.Codec, manager *tokens.Manager, settings *config.Settings, logger *zap.Logger) *Flow {
	return &Flow{
		registry: reg,
		codec:    codec,
		manager:  manager,
		settings: settings,
		logger:   logger,
	}
}

// stateMaxAge reads the dynamic state lifetime setting, falling back
// to the codec default when unset or unusable.
func (f *Flow) stateMaxAge(ctx context.Context) time.Duration {
	if f.settings == nil {
		return oauthstate.DefaultMaxAge
	}

	minutes, err := f.settings.GetInt(ctx, config.KeyStateMaxAgeMin, int(oauthstate.DefaultMaxAge/time.Minute))
	if err != nil || minutes <= 0 {
		return oauthstate.DefaultMaxAge
	}

	return time.Duration(minutes) * time.Minute
}

// Start mints a state token bound to the organization and provider and
// asks the provider for its authorization URL.
func (f *Flow) Start(ctx context.Context, organizationID, providerName, redirectURI string, extra map[string]string) (*StartResult, error) {
	p, err := f.registry.Get(providerName)
	if err != nil {
		return nil, err
	}

	state, err := f.codec.Generate(organizationID, providerName, redirectURI, extra)
	if err != nil {
		return nil, err
	}

	authURL, err := p.GetAuthURL(organizationID, redirectURI, state)
	if err != nil {
		return nil, err
	}

	f.logger.Debug("oauth flow started",
		zap.String("organization_id", organizationID),
		zap.String("provider", providerName))

	return &StartResult{AuthURL: authURL, State: state}, nil
}

// Complete validates the callback, checks that the decoded state
// matches the claimed provider and organization, and delegates the
// code exchange to the provider.
func (f *Flow) Complete(ctx context.Context, providerName string, params models.OAuthCallbackParams) (*CompleteResult, error) {
	if params.Error != "" {
		return nil, &models.OAuthDeniedError{
			Code:        params.Error,
			Description: params.ErrorDescription,
		}
	}

	if params.Code == "" || params.State == "" {
		return nil, models.ErrMissingParameters
	}

	state, err := f.codec.Validate(params.State, f.stateMaxAge(ctx))
	if err != nil {
		return nil, err
	}

	if state.Provider != providerName {
		return nil, models.ErrProviderMismatch
	}

	if params.OrganizationID != "" && state.OrganizationID != params.OrganizationID {
		return nil, models.ErrOrganizationMismatch
	}

	p, err := f.registry.Get(providerName)
	if err != nil {
		return nil, err
	}

	td, err := p.ExchangeCode(ctx, params)
	if err != nil {
		return nil, err
	}

	return &CompleteResult{TokenData: td, DecodedState: state}, nil
}

// EnsureValidToken returns td unchanged when it is not near expiry,
// otherwise refreshes it through the token manager. A near-expiry
// token without a refresh token cannot be saved.
func (f *Flow) EnsureValidToken(ctx context.Context, providerName string, td *models.TokenData) (*models.TokenData, error) {
	if !f.manager.NeedsRefresh(td, tokens.DefaultRefreshBuffer) {
		return td, nil
	}

	if td.RefreshToken == "" {
		return nil, models.ErrNoRefreshToken
	}

	p, err := f.registry.Get(providerName)
	if err != nil {
		return nil, err
	}

	return f.manager.RefreshWithRetry(ctx, p, td.RefreshToken)
}
