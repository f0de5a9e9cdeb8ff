package redis

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Server wraps the asynq consumer side.
type Server struct {
	server *asynq.Server
	logger *zap.Logger
}

func NewServer(cfg Config, logger *zap.Logger) *Server {
	cfg = cfg.withDefaults()

	srv := asynq.NewServer(
		cfg.clientOpt(),
		asynq.Config{
			Concurrency: cfg.Workers,
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				if n >= cfg.MaxRetries {
					logger.Warn("task exhausted retries",
						zap.String("type", task.Type()), zap.Error(err))

					return -1 * time.Second
				}

				delay := time.Duration(1<<uint(n)) * time.Second
				if delay > cfg.RetryInterval {
					delay = cfg.RetryInterval
				}

				return delay
			},
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
		},
	)

	return &Server{server: srv, logger: logger}
}

// Start runs the consumer with the provided handler mux.
func (s *Server) Start(mux *asynq.ServeMux) error {
	return s.server.Start(mux)
}

// Shutdown drains in-flight tasks and stops the consumer.
func (s *Server) Shutdown(context.Context) error {
	s.server.Shutdown()
	return nil
}
