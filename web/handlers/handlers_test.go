package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/notewire/integrations/integration"
	"github.com/notewire/integrations/models"
	"github.com/notewire/integrations/pkg/encryption"
	"github.com/notewire/integrations/registry"
	"github.com/notewire/integrations/tokens"
	"github.com/notewire/integrations/web/auth"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", models.ErrIntegrationNotFound, http.StatusNotFound},
		{"provider not found", models.ErrProviderNotFound, http.StatusNotFound},
		{"note not found", models.ErrNoteNotFound, http.StatusNotFound},
		{"connection not found", models.ErrConnectionNotFound, http.StatusNotFound},
		{"channel not found", models.ErrChannelNotFound, http.StatusNotFound},
		{"invalid state", models.ErrInvalidState, http.StatusUnprocessableEntity},
		{"missing parameters", models.ErrMissingParameters, http.StatusUnprocessableEntity},
		{"provider mismatch", models.ErrProviderMismatch, http.StatusUnprocessableEntity},
		{"organization mismatch", models.ErrOrganizationMismatch, http.StatusUnprocessableEntity},
		{"inactive integration", models.ErrIntegrationInactive, http.StatusUnprocessableEntity},
		{"needs reauth", models.ErrReauthorizationNeeded, http.StatusConflict},
		{"already connected", models.ErrAlreadyExists, http.StatusConflict},
		{"no refresh token", models.ErrNoRefreshToken, http.StatusConflict},
		{"oauth denied", &models.OAuthDeniedError{Code: "access_denied"}, http.StatusBadGateway},
		{"refresh failed", &models.TokenRefreshError{Err: errors.New("boom")}, http.StatusBadGateway},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, statusFor(tc.err))
		})
	}
}

func TestRenderError(t *testing.T) {
	rec := httptest.NewRecorder()

	renderError(rec, models.ErrIntegrationNotFound)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, http.StatusNotFound, body.Code)
	assert.NotEmpty(t, body.Message)
}

func authed(r *http.Request, orgID string) *http.Request {
	ctx := context.WithValue(r.Context(), auth.OrganizationIDKey, orgID)
	return r.WithContext(ctx)
}

func TestStartAuthRequiresOrganization(t *testing.T) {
	h := &IntegrationHandler{Deps: Dependencies{Logger: zap.NewNop()}}

	req := httptest.NewRequest(http.MethodPost, "/api/integrations/slack/auth", nil)
	rec := httptest.NewRecorder()

	h.StartAuth(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListRequiresOrganization(t *testing.T) {
	h := &IntegrationHandler{Deps: Dependencies{Logger: zap.NewNop()}}

	req := httptest.NewRequest(http.MethodGet, "/api/integrations", nil)
	rec := httptest.NewRecorder()

	h.List(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

type stubNoteRepo struct {
	notes map[string]*models.Note
}

func (s *stubNoteRepo) Get(_ context.Context, id string) (*models.Note, error) {
	if n, ok := s.notes[id]; ok {
		return n, nil
	}

	return nil, models.ErrNoteNotFound
}

type stubIntegrationRepo struct {
	integrations map[string]*models.Integration
}

func (s *stubIntegrationRepo) Get(_ context.Context, id string) (*models.Integration, error) {
	if integ, ok := s.integrations[id]; ok {
		return integ, nil
	}

	return nil, models.ErrIntegrationNotFound
}

func (s *stubIntegrationRepo) GetByProvider(context.Context, string, string) (*models.Integration, error) {
	return nil, models.ErrIntegrationNotFound
}

func (s *stubIntegrationRepo) Select(context.Context, models.IntegrationSelectParams) ([]models.Integration, error) {
	return nil, nil
}

func (s *stubIntegrationRepo) Create(context.Context, *models.Integration) error { return nil }
func (s *stubIntegrationRepo) Update(context.Context, *models.Integration) error { return nil }
func (s *stubIntegrationRepo) Delete(context.Context, string) error              { return nil }

type stubConnectionRepo struct {
	conns   map[string]*models.Connection
	deleted []string
}

func (s *stubConnectionRepo) Get(_ context.Context, id string) (*models.Connection, error) {
	if c, ok := s.conns[id]; ok {
		return c, nil
	}

	return nil, models.ErrConnectionNotFound
}

func (s *stubConnectionRepo) SelectByNote(_ context.Context, noteID string) ([]models.Connection, error) {
	var ans []models.Connection
	for _, c := range s.conns {
		if c.NoteID == noteID {
			ans = append(ans, *c)
		}
	}

	return ans, nil
}

func (s *stubConnectionRepo) SelectByIntegration(context.Context, string) ([]models.Connection, error) {
	return nil, nil
}

func (s *stubConnectionRepo) Create(context.Context, *models.Connection) error { return nil }

func (s *stubConnectionRepo) MarkPosted(context.Context, string, time.Time) error { return nil }

func (s *stubConnectionRepo) Delete(_ context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	delete(s.conns, id)

	return nil
}

func (s *stubConnectionRepo) DeleteByIntegration(context.Context, string) (int64, error) {
	return 0, nil
}

func (s *stubConnectionRepo) DeleteByNote(context.Context, string) (int64, error) { return 0, nil }

type stubLogRepo struct{}

func (stubLogRepo) Append(context.Context, *models.ActivityLogEntry) error { return nil }

func (stubLogRepo) SelectByIntegration(context.Context, string, int) ([]models.ActivityLogEntry, error) {
	return nil, nil
}

func (stubLogRepo) DeleteByIntegration(context.Context, string) (int64, error) { return 0, nil }

// newConnectionHandler seeds two organizations: org-1 owns note-1,
// int-1 and conn-1; org-2 owns note-2, int-2 and conn-2.
func newConnectionHandler(t *testing.T) (*ConnectionHandler, *stubConnectionRepo) {
	t.Helper()

	cipher, err := encryption.New([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	integrations := &stubIntegrationRepo{integrations: map[string]*models.Integration{
		"int-1": {ID: "int-1", OrganizationID: "org-1", Provider: "slack", IsActive: true},
		"int-2": {ID: "int-2", OrganizationID: "org-2", Provider: "slack", IsActive: true},
	}}
	connections := &stubConnectionRepo{conns: map[string]*models.Connection{
		"conn-1": {ID: "conn-1", NoteID: "note-1", IntegrationID: "int-1", ExternalID: "C001", IsActive: true},
		"conn-2": {ID: "conn-2", NoteID: "note-2", IntegrationID: "int-2", ExternalID: "C002", IsActive: true},
	}}
	notes := &stubNoteRepo{notes: map[string]*models.Note{
		"note-1": {ID: "note-1", OrganizationID: "org-1"},
		"note-2": {ID: "note-2", OrganizationID: "org-2"},
	}}

	svc := integration.NewService(
		integrations,
		connections,
		stubLogRepo{},
		notes,
		registry.New(),
		tokens.NewManager(cipher, integrations, zap.NewNop()),
		zap.NewNop(),
	)

	h := &ConnectionHandler{Deps: Dependencies{Logger: zap.NewNop(), Service: svc}}

	return h, connections
}

func TestConnectValidation(t *testing.T) {
	h, _ := newConnectionHandler(t)

	t.Run("unauthenticated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/notes/note-1/connections", nil)
		rec := httptest.NewRecorder()

		h.Connect(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("invalid body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/notes/note-1/connections",
			bytes.NewBufferString("not json"))
		req = mux.SetURLVars(req, map[string]string{"id": "note-1"})
		rec := httptest.NewRecorder()

		h.Connect(rec, authed(req, "org-1"))

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("missing fields", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/notes/note-1/connections",
			bytes.NewBufferString(`{"integration_id":"int-1"}`))
		req = mux.SetURLVars(req, map[string]string{"id": "note-1"})
		rec := httptest.NewRecorder()

		h.Connect(rec, authed(req, "org-1"))

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

		var body APIError
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Contains(t, body.Message, "external_id")
	})
}

func TestConnectionOrganizationScoping(t *testing.T) {
	t.Run("connect to foreign note", func(t *testing.T) {
		h, _ := newConnectionHandler(t)

		req := httptest.NewRequest(http.MethodPost, "/api/notes/note-2/connections",
			bytes.NewBufferString(`{"integration_id":"int-2","external_id":"C002"}`))
		req = mux.SetURLVars(req, map[string]string{"id": "note-2"})
		rec := httptest.NewRecorder()

		h.Connect(rec, authed(req, "org-1"))

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("list foreign note", func(t *testing.T) {
		h, _ := newConnectionHandler(t)

		req := httptest.NewRequest(http.MethodGet, "/api/notes/note-2/connections", nil)
		req = mux.SetURLVars(req, map[string]string{"id": "note-2"})
		rec := httptest.NewRecorder()

		h.ListByNote(rec, authed(req, "org-1"))

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("list own note", func(t *testing.T) {
		h, _ := newConnectionHandler(t)

		req := httptest.NewRequest(http.MethodGet, "/api/notes/note-1/connections", nil)
		req = mux.SetURLVars(req, map[string]string{"id": "note-1"})
		rec := httptest.NewRecorder()

		h.ListByNote(rec, authed(req, "org-1"))

		assert.Equal(t, http.StatusOK, rec.Code)

		var conns []models.Connection
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conns))
		require.Len(t, conns, 1)
		assert.Equal(t, "conn-1", conns[0].ID)
	})

	t.Run("disconnect foreign connection", func(t *testing.T) {
		h, connections := newConnectionHandler(t)

		req := httptest.NewRequest(http.MethodDelete, "/api/connections/conn-2", nil)
		req = mux.SetURLVars(req, map[string]string{"id": "conn-2"})
		rec := httptest.NewRecorder()

		h.Disconnect(rec, authed(req, "org-1"))

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Empty(t, connections.deleted)
	})

	t.Run("disconnect own connection", func(t *testing.T) {
		h, connections := newConnectionHandler(t)

		req := httptest.NewRequest(http.MethodDelete, "/api/connections/conn-1", nil)
		req = mux.SetURLVars(req, map[string]string{"id": "conn-1"})
		rec := httptest.NewRecorder()

		h.Disconnect(rec, authed(req, "org-1"))

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, []string{"conn-1"}, connections.deleted)
	})
}
