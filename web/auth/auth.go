// Package auth provides the request-scoped identity middleware for the
// HTTP boundary. Session verification itself is owned by the embedding
// application; this middleware consumes the identity headers it sets.
package auth

import (
	"context"
	"errors"
	"net/http"
)

// ContextKey is used to store identity information in the request context
type ContextKey string

const (
	// OrganizationIDKey is the context key for the organization id
	OrganizationIDKey ContextKey = "organization_id"
	// UserIDKey is the context key for the user id
	UserIDKey ContextKey = "user_id"

	organizationHeader = "X-Organization-ID"
	userHeader         = "X-User-ID"
)

var ErrNotAuthenticated = errors.New("request is not authenticated")

// Middleware injects the organization and user ids into the request
// context. Requests without an organization are rejected.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		orgID := r.Header.Get(organizationHeader)
		if orgID == "" {
			http.Error(w, "missing organization", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), OrganizationIDKey, orgID)

		if userID := r.Header.Get(userHeader); userID != "" {
			ctx = context.WithValue(ctx, UserIDKey, userID)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetOrganizationID returns the organization id stored in ctx.
func GetOrganizationID(ctx context.Context) (string, error) {
	v, ok := ctx.Value(OrganizationIDKey).(string)
	if !ok || v == "" {
		return "", ErrNotAuthenticated
	}

	return v, nil
}

// GetUserID returns the user id stored in ctx, empty when absent.
func GetUserID(ctx context.Context) string {
	v, _ := ctx.Value(UserIDKey).(string)
	return v
}
