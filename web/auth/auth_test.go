package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware(t *testing.T) {
	var (
		gotOrg  string
		gotUser string
		called  bool
	)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true

		org, err := GetOrganizationID(r.Context())
		require.NoError(t, err)
		gotOrg = org
		gotUser = GetUserID(r.Context())
	})

	t.Run("injects identity from headers", func(t *testing.T) {
		called = false

		req := httptest.NewRequest(http.MethodGet, "/api/integrations", nil)
		req.Header.Set("X-Organization-ID", "org-1")
		req.Header.Set("X-User-ID", "user-1")

		rec := httptest.NewRecorder()
		Middleware(next).ServeHTTP(rec, req)

		assert.True(t, called)
		assert.Equal(t, "org-1", gotOrg)
		assert.Equal(t, "user-1", gotUser)
	})

	t.Run("user header is optional", func(t *testing.T) {
		called = false

		req := httptest.NewRequest(http.MethodGet, "/api/integrations", nil)
		req.Header.Set("X-Organization-ID", "org-1")

		rec := httptest.NewRecorder()
		Middleware(next).ServeHTTP(rec, req)

		assert.True(t, called)
		assert.Empty(t, gotUser)
	})

	t.Run("rejects missing organization", func(t *testing.T) {
		called = false

		req := httptest.NewRequest(http.MethodGet, "/api/integrations", nil)
		rec := httptest.NewRecorder()

		Middleware(next).ServeHTTP(rec, req)

		assert.False(t, called)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestGetOrganizationIDMissing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	_, err := GetOrganizationID(req.Context())
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}
