package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/notewire/integrations/models"
	"github.com/notewire/integrations/web/auth"
)

// IntegrationHandler serves the OAuth handshake and integration CRUD.
type IntegrationHandler struct {
	Deps Dependencies
}

type startAuthRequest struct {
	RedirectURI string            `json:"redirect_uri"`
	Extra       map[string]string `json:"extra,omitempty"`
}

type startAuthResponse struct {
	AuthURL string `json:"auth_url"`
	State   string `json:"state"`
}

// StartAuth begins the OAuth handshake for the provider in the path.
func (h *IntegrationHandler) StartAuth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	orgID, err := auth.GetOrganizationID(ctx)
	if err != nil {
		renderJSON(w, http.StatusUnauthorized, APIError{Code: http.StatusUnauthorized, Message: "not authenticated"})
		return
	}

	providerName := mux.Vars(r)["provider"]

	var req startAuthRequest
	// Body is optional; without it the provider's default redirect is used.
	_ = json.NewDecoder(r.Body).Decode(&req)

	result, err := h.Deps.Flow.Start(ctx, orgID, providerName, req.RedirectURI, req.Extra)
	if err != nil {
		renderError(w, err)
		return
	}

	renderJSON(w, http.StatusOK, startAuthResponse{AuthURL: result.AuthURL, State: result.State})
}

// Callback completes the handshake and persists the integration.
func (h *IntegrationHandler) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	providerName := mux.Vars(r)["provider"]
	query := r.URL.Query()

	params := models.OAuthCallbackParams{
		Code:             query.Get("code"),
		State:            query.Get("state"),
		Error:            query.Get("error"),
		ErrorDescription: query.Get("error_description"),
		OAuthToken:       query.Get("oauth_token"),
	}

	result, err := h.Deps.Flow.Complete(ctx, providerName, params)
	if err != nil {
		renderError(w, err)
		return
	}

	integration, err := h.Deps.Service.CreateIntegration(ctx,
		result.DecodedState.OrganizationID, providerName, result.TokenData, nil)
	if err != nil {
		renderError(w, err)
		return
	}

	h.Deps.Logger.Info("integration created",
		zap.String("integration_id", integration.ID),
		zap.String("provider", providerName),
		zap.String("organization_id", integration.OrganizationID))

	if redirect := result.DecodedState.RedirectURL; redirect != "" {
		http.Redirect(w, r, redirect, http.StatusTemporaryRedirect)
		return
	}

	renderJSON(w, http.StatusCreated, integrationView(integration))
}

// List returns the organization's integrations.
func (h *IntegrationHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	orgID, err := auth.GetOrganizationID(ctx)
	if err != nil {
		renderJSON(w, http.StatusUnauthorized, APIError{Code: http.StatusUnauthorized, Message: "not authenticated"})
		return
	}

	integrations, err := h.Deps.Service.Integrations(ctx, orgID, false)
	if err != nil {
		renderError(w, err)
		return
	}

	views := make([]map[string]any, 0, len(integrations))
	for i := range integrations {
		views = append(views, integrationView(&integrations[i]))
	}

	renderJSON(w, http.StatusOK, views)
}

// Disconnect removes an integration and everything under it.
func (h *IntegrationHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	if err := h.requireOwnership(w, r, id); err != nil {
		return
	}

	if err := h.Deps.Service.DisconnectIntegration(ctx, id); err != nil {
		renderError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Channels lists the provider's postable destinations.
func (h *IntegrationHandler) Channels(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	if err := h.requireOwnership(w, r, id); err != nil {
		return
	}

	channels, err := h.Deps.Service.Channels(ctx, id)
	if err != nil {
		renderError(w, err)
		return
	}

	renderJSON(w, http.StatusOK, channels)
}

// Logs returns recent activity log entries.
func (h *IntegrationHandler) Logs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	if err := h.requireOwnership(w, r, id); err != nil {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	entries, err := h.Deps.Service.ActivityLog(ctx, id, limit)
	if err != nil {
		renderError(w, err)
		return
	}

	renderJSON(w, http.StatusOK, entries)
}

// Status returns the derived health view.
func (h *IntegrationHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	if err := h.requireOwnership(w, r, id); err != nil {
		return
	}

	status, err := h.Deps.Service.Status(ctx, id)
	if err != nil {
		renderError(w, err)
		return
	}

	renderJSON(w, http.StatusOK, status)
}

// Providers enumerates the registered providers.
func (h *IntegrationHandler) Providers(w http.ResponseWriter, r *http.Request) {
	type providerView struct {
		Name     string `json:"name"`
		Category string `json:"category"`
	}

	all := h.Deps.Registry.All()

	views := make([]providerView, 0, len(all))
	for _, p := range all {
		views = append(views, providerView{Name: p.Name(), Category: p.Category()})
	}

	renderJSON(w, http.StatusOK, views)
}

// requireOwnership verifies the integration belongs to the caller's
// organization before any operation on it.
func (h *IntegrationHandler) requireOwnership(w http.ResponseWriter, r *http.Request, integrationID string) error {
	ctx := r.Context()

	orgID, err := auth.GetOrganizationID(ctx)
	if err != nil {
		renderJSON(w, http.StatusUnauthorized, APIError{Code: http.StatusUnauthorized, Message: "not authenticated"})
		return err
	}

	integration, err := h.Deps.Service.Integration(ctx, integrationID)
	if err != nil {
		renderError(w, err)
		return err
	}

	if integration.OrganizationID != orgID {
		renderError(w, models.ErrIntegrationNotFound)
		return models.ErrIntegrationNotFound
	}

	return nil
}

// integrationView hides token material from API responses.
func integrationView(i *models.Integration) map[string]any {
	return map[string]any{
		"id":               i.ID,
		"organization_id":  i.OrganizationID,
		"provider":         i.Provider,
		"category":         i.Category,
		"config":           i.Config,
		"is_active":        i.IsActive,
		"token_expires_at": i.TokenExpiresAt,
		"last_sync_at":     i.LastSyncAt,
		"created_at":       i.CreatedAt,
	}
}
