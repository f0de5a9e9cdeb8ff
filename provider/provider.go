// Package provider defines the capability interface every third-party
// service adapter implements. The core never inspects provider-specific
// payloads; it only calls this interface.
package provider

import (
	"context"

	"github.com/notewire/integrations/models"
)

// Provider is implemented once per third-party service (Slack, Linear,
// Trello, ...). Implementations are stateless and registered at
// startup.
type Provider interface {
	Name() string
	Category() string

	// GetAuthURL returns the provider's authorization URL. The state
	// parameter is opaque to the provider and must be echoed back on
	// the callback.
	GetAuthURL(organizationID, redirectURI, state string) (string, error)

	// ExchangeCode trades the callback parameters for tokens. On
	// denial or an invalid code the provider returns its own message.
	ExchangeCode(ctx context.Context, params models.OAuthCallbackParams) (*models.TokenData, error)

	ListChannels(ctx context.Context, integration *models.Integration, token *models.TokenData) ([]models.Channel, error)
	PostMessage(ctx context.Context, conn *models.Connection, token *models.TokenData, msg *models.Message) error
	ValidateConnection(ctx context.Context, conn *models.Connection, token *models.TokenData) (bool, error)
}

// Refresher is implemented by providers that support refresh tokens.
// Absence means refresh is unsupported and expired tokens require
// reauthorization.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*models.TokenData, error)
}

// Revoker is implemented by providers that expose a revocation
// endpoint. Revocation is always best-effort.
type Revoker interface {
	Revoke(ctx context.Context, accessToken string) error
}
