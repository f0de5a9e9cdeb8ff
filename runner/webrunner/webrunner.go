// Package webrunner serves the HTTP API with in-process or queued
// event dispatch.
package webrunner

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/notewire/integrations/dispatcher"
	"github.com/notewire/integrations/redis"
	"github.com/notewire/integrations/redis/tasks"
	"github.com/notewire/integrations/runner"
	"github.com/notewire/integrations/web"
	"github.com/notewire/integrations/web/handlers"
)

type webrunner struct {
	app    *runner.App
	srv    *web.Server
	queue  *redis.Client
	logger *zap.Logger
}

func New(cfg *runner.Config, logger *zap.Logger) (runner.Runner, error) {
	if cfg.RunMode != runner.RunModeWeb {
		return nil, runner.ErrInvalidRunMode
	}

	var (
		opts  []dispatcher.Option
		queue *redis.Client
	)

	if cfg.UseQueue {
		client, err := redis.NewClient(redis.Config{Addr: cfg.App.RedisAddr})
		if err != nil {
			return nil, err
		}

		queue = client
		opts = append(opts, dispatcher.WithEnqueuer(tasks.NewEnqueuer(client)))
	}

	app, err := runner.NewApp(cfg, logger, opts...)
	if err != nil {
		if queue != nil {
			queue.Close()
		}

		return nil, err
	}

	srv := web.NewServer(cfg.App.Addr, handlers.Dependencies{
		Logger:     logger,
		Registry:   app.Registry,
		Flow:       app.Flow,
		Service:    app.Service,
		Dispatcher: app.Dispatcher,
	})

	return &webrunner{
		app:    app,
		srv:    srv,
		queue:  queue,
		logger: logger,
	}, nil
}

func (w *webrunner) Run(ctx context.Context) error {
	egroup, ctx := errgroup.WithContext(ctx)

	egroup.Go(func() error {
		w.logger.Info("starting http server")

		if err := w.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	egroup.Go(func() error {
		<-ctx.Done()

		return w.srv.Shutdown(context.Background())
	})

	return egroup.Wait()
}

func (w *webrunner) Close(context.Context) error {
	var err error

	if w.queue != nil {
		err = multierr.Append(err, w.queue.Close())
	}

	return multierr.Append(err, w.app.Close())
}
