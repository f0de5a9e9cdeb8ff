package provider

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/notewire/integrations/models"
)

// OAuth2Base implements the handshake half of Provider on top of a
// standard oauth2.Config. Concrete adapters embed it and add their
// wire clients for channels and posting.
type OAuth2Base struct {
	ProviderName     string
	ProviderCategory string
	Config           *oauth2.Config
}

func (b *OAuth2Base) Name() string     { return b.ProviderName }
func (b *OAuth2Base) Category() string { return b.ProviderCategory }

// GetAuthURL builds the authorization URL. AccessTypeOffline is
// requested so providers that support it hand back a refresh token.
func (b *OAuth2Base) GetAuthURL(_, redirectURI, state string) (string, error) {
	if b.Config.ClientID == "" {
		return "", &models.ConfigurationError{Field: b.ProviderName + " client id"}
	}

	cfg := *b.Config
	if redirectURI != "" {
		cfg.RedirectURL = redirectURI
	}

	return cfg.AuthCodeURL(state, oauth2.AccessTypeOffline), nil
}

func (b *OAuth2Base) ExchangeCode(ctx context.Context, params models.OAuthCallbackParams) (*models.TokenData, error) {
	token, err := b.Config.Exchange(ctx, params.Code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	return tokenData(token), nil
}

// Refresh exchanges a refresh token for fresh credentials using the
// provider's token endpoint.
func (b *OAuth2Base) Refresh(ctx context.Context, refreshToken string) (*models.TokenData, error) {
	src := b.Config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})

	token, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}

	return tokenData(token), nil
}

func tokenData(token *oauth2.Token) *models.TokenData {
	td := models.TokenData{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}

	if !token.Expiry.IsZero() {
		expiry := token.Expiry
		td.ExpiresAt = &expiry
	}

	if scope, ok := token.Extra("scope").(string); ok {
		td.Scope = scope
	}

	return &td
}
