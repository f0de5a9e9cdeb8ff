package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	ErrProviderNotFound    = errors.New("provider not found")
	ErrIntegrationNotFound = errors.New("integration not found")
	ErrNoteNotFound        = errors.New("note not found")
	ErrConnectionNotFound  = errors.New("connection not found")

	ErrInvalidState          = errors.New("invalid oauth state")
	ErrMissingParameters     = errors.New("missing oauth parameters")
	ErrProviderMismatch      = errors.New("oauth state provider mismatch")
	ErrOrganizationMismatch  = errors.New("organization mismatch")
	ErrChannelNotFound       = errors.New("channel not found")
	ErrIntegrationInactive   = errors.New("integration is not active")
	ErrInvalidTokenData      = errors.New("invalid token data")
	ErrNoRefreshToken        = errors.New("no refresh token available")
	ErrReauthorizationNeeded = errors.New("reauthorization required")
	ErrRefreshNotSupported   = errors.New("provider does not support token refresh")
)

// ConfigurationError indicates a missing or unusable process secret.
// It is fatal: callers are expected to abort startup, not recover.
type ConfigurationError struct {
	Field string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s is not set", e.Field)
}

// OAuthDeniedError carries the provider-side denial verbatim so the
// web boundary can show the user what the provider said.
type OAuthDeniedError struct {
	Code        string
	Description string
}

func (e *OAuthDeniedError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("oauth denied: %s: %s", e.Code, e.Description)
	}

	return fmt.Sprintf("oauth denied: %s", e.Code)
}

// TokenRefreshError is returned when a token refresh cannot produce a
// usable token. RequiresReauth distinguishes terminal failures
// (revoked grants, unsupported refresh) from exhausted transient ones.
type TokenRefreshError struct {
	RequiresReauth bool
	Attempts       int
	Err            error
}

func (e *TokenRefreshError) Error() string {
	if e.RequiresReauth {
		return fmt.Sprintf("token refresh failed, reauthorization required: %v", e.Err)
	}

	return fmt.Sprintf("token refresh failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *TokenRefreshError) Unwrap() error { return e.Err }
