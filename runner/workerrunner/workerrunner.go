// Package workerrunner consumes queued note events from redis and
// dispatches them through the fan-out pipeline.
package workerrunner

import (
	"context"

	"go.uber.org/zap"

	"github.com/notewire/integrations/redis"
	"github.com/notewire/integrations/redis/tasks"
	"github.com/notewire/integrations/runner"
)

type workerrunner struct {
	app    *runner.App
	srv    *redis.Server
	mux    *tasks.Handler
	logger *zap.Logger
}

func New(cfg *runner.Config, logger *zap.Logger) (runner.Runner, error) {
	if cfg.RunMode != runner.RunModeWorker {
		return nil, runner.ErrInvalidRunMode
	}

	app, err := runner.NewApp(cfg, logger)
	if err != nil {
		return nil, err
	}

	srv := redis.NewServer(redis.Config{Addr: cfg.App.RedisAddr}, logger)
	handler := tasks.NewHandler(app.Dispatcher, logger)

	return &workerrunner{
		app:    app,
		srv:    srv,
		mux:    handler,
		logger: logger,
	}, nil
}

func (w *workerrunner) Run(ctx context.Context) error {
	errc := make(chan error, 1)

	go func() {
		w.logger.Info("starting worker")
		errc <- w.srv.Start(w.mux.Mux())
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return w.srv.Shutdown(context.Background())
	}
}

func (w *workerrunner) Close(context.Context) error {
	return w.app.Close()
}
