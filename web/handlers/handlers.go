// Package handlers exposes the integration HTTP API over gorilla/mux.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/notewire/integrations/dispatcher"
	"github.com/notewire/integrations/integration"
	"github.com/notewire/integrations/models"
	"github.com/notewire/integrations/oauthflow"
	"github.com/notewire/integrations/registry"
)

// Dependencies aggregates shared services used by handlers.
type Dependencies struct {
	Logger     *zap.Logger
	Registry   *registry.Registry
	Flow       *oauthflow.Flow
	Service    *integration.Service
	Dispatcher *dispatcher.Dispatcher
}

// HandlerGroup groups all handler categories for routing setup.
type HandlerGroup struct {
	Integration *IntegrationHandler
	Connection  *ConnectionHandler
}

// NewHandlerGroup constructs a HandlerGroup with initialized handlers.
func NewHandlerGroup(deps Dependencies) *HandlerGroup {
	return &HandlerGroup{
		Integration: &IntegrationHandler{Deps: deps},
		Connection:  &ConnectionHandler{Deps: deps},
	}
}

// APIError is the JSON error body returned by every handler.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func renderJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func renderError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	renderJSON(w, status, APIError{Code: status, Message: err.Error()})
}

func statusFor(err error) int {
	var denied *models.OAuthDeniedError
	if errors.As(err, &denied) {
		return http.StatusBadGateway
	}

	var refresh *models.TokenRefreshError
	if errors.As(err, &refresh) {
		return http.StatusBadGateway
	}

	switch {
	case errors.Is(err, models.ErrNotFound),
		errors.Is(err, models.ErrProviderNotFound),
		errors.Is(err, models.ErrIntegrationNotFound),
		errors.Is(err, models.ErrNoteNotFound),
		errors.Is(err, models.ErrConnectionNotFound),
		errors.Is(err, models.ErrChannelNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidState),
		errors.Is(err, models.ErrMissingParameters),
		errors.Is(err, models.ErrProviderMismatch),
		errors.Is(err, models.ErrOrganizationMismatch),
		errors.Is(err, models.ErrIntegrationInactive),
		errors.Is(err, models.ErrInvalidTokenData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrAlreadyExists),
		errors.Is(err, models.ErrReauthorizationNeeded),
		errors.Is(err, models.ErrNoRefreshToken):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
