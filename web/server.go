// Package web hosts the HTTP boundary for the integration core.
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/notewire/integrations/web/auth"
	"github.com/notewire/integrations/web/handlers"
)

// Server wires the handler group into a mux router.
type Server struct {
	srv    *http.Server
	logger *zap.Logger
}

func NewServer(addr string, deps handlers.Dependencies) *Server {
	group := handlers.NewHandlerGroup(deps)

	router := mux.NewRouter()

	// The provider redirect arrives from the user's browser without
	// identity headers; the signed state carries the organization.
	router.HandleFunc("/api/integrations/{provider}/callback", group.Integration.Callback).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(auth.Middleware)

	api.HandleFunc("/providers", group.Integration.Providers).Methods(http.MethodGet)

	api.HandleFunc("/integrations", group.Integration.List).Methods(http.MethodGet)
	api.HandleFunc("/integrations/{provider}/auth", group.Integration.StartAuth).Methods(http.MethodPost)
	api.HandleFunc("/integrations/{id}", group.Integration.Disconnect).Methods(http.MethodDelete)
	api.HandleFunc("/integrations/{id}/channels", group.Integration.Channels).Methods(http.MethodGet)
	api.HandleFunc("/integrations/{id}/logs", group.Integration.Logs).Methods(http.MethodGet)
	api.HandleFunc("/integrations/{id}/status", group.Integration.Status).Methods(http.MethodGet)

	api.HandleFunc("/notes/{id}/connections", group.Connection.Connect).Methods(http.MethodPost)
	api.HandleFunc("/notes/{id}/connections", group.Connection.ListByNote).Methods(http.MethodGet)
	api.HandleFunc("/connections/{id}", group.Connection.Disconnect).Methods(http.MethodDelete)

	router.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: deps.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("http server listening", zap.String("addr", s.srv.Addr))
	return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
