package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/notewire/integrations/models"
	"github.com/notewire/integrations/web/auth"
)

// ConnectionHandler serves note-to-channel connection CRUD.
type ConnectionHandler struct {
	Deps Dependencies
}

type connectRequest struct {
	IntegrationID string         `json:"integration_id"`
	ExternalID    string         `json:"external_id"`
	Config        map[string]any `json:"config,omitempty"`
}

// Connect links the note in the path to a provider channel.
func (h *ConnectionHandler) Connect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	noteID := mux.Vars(r)["id"]

	if err := h.requireNoteOwnership(w, r, noteID); err != nil {
		return
	}

	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderJSON(w, http.StatusUnprocessableEntity, APIError{Code: http.StatusUnprocessableEntity, Message: err.Error()})
		return
	}

	if req.IntegrationID == "" || req.ExternalID == "" {
		renderJSON(w, http.StatusUnprocessableEntity, APIError{Code: http.StatusUnprocessableEntity, Message: "integration_id and external_id are required"})
		return
	}

	conn, err := h.Deps.Service.ConnectNoteToChannel(ctx, noteID, req.IntegrationID, req.ExternalID, req.Config)
	if err != nil {
		renderError(w, err)
		return
	}

	renderJSON(w, http.StatusCreated, conn)
}

// ListByNote returns the connections attached to a note.
func (h *ConnectionHandler) ListByNote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	noteID := mux.Vars(r)["id"]

	if err := h.requireNoteOwnership(w, r, noteID); err != nil {
		return
	}

	conns, err := h.Deps.Service.NoteConnections(ctx, noteID)
	if err != nil {
		renderError(w, err)
		return
	}

	renderJSON(w, http.StatusOK, conns)
}

// Disconnect removes one connection.
func (h *ConnectionHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	if err := h.requireConnectionOwnership(w, r, id); err != nil {
		return
	}

	if err := h.Deps.Service.DisconnectNoteFromChannel(ctx, id); err != nil {
		renderError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// requireNoteOwnership verifies the note belongs to the caller's
// organization before any operation on its connections. Foreign notes
// render as not found.
func (h *ConnectionHandler) requireNoteOwnership(w http.ResponseWriter, r *http.Request, noteID string) error {
	ctx := r.Context()

	orgID, err := auth.GetOrganizationID(ctx)
	if err != nil {
		renderJSON(w, http.StatusUnauthorized, APIError{Code: http.StatusUnauthorized, Message: "not authenticated"})
		return err
	}

	note, err := h.Deps.Service.Note(ctx, noteID)
	if err != nil {
		renderError(w, err)
		return err
	}

	if note.OrganizationID != orgID {
		renderError(w, models.ErrNoteNotFound)
		return models.ErrNoteNotFound
	}

	return nil
}

// requireConnectionOwnership resolves the connection's integration and
// verifies it belongs to the caller's organization.
func (h *ConnectionHandler) requireConnectionOwnership(w http.ResponseWriter, r *http.Request, connectionID string) error {
	ctx := r.Context()

	orgID, err := auth.GetOrganizationID(ctx)
	if err != nil {
		renderJSON(w, http.StatusUnauthorized, APIError{Code: http.StatusUnauthorized, Message: "not authenticated"})
		return err
	}

	conn, err := h.Deps.Service.Connection(ctx, connectionID)
	if err != nil {
		renderError(w, err)
		return err
	}

	integration, err := h.Deps.Service.Integration(ctx, conn.IntegrationID)
	if err != nil {
		renderError(w, err)
		return err
	}

	if integration.OrganizationID != orgID {
		renderError(w, models.ErrConnectionNotFound)
		return models.ErrConnectionNotFound
	}

	return nil
}
