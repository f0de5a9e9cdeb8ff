package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/notewire/integrations/postgres"
	"github.com/notewire/integrations/runner"
	"github.com/notewire/integrations/runner/webrunner"
	"github.com/notewire/integrations/runner/workerrunner"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("received signal, shutting down")
		cancel()
	}()

	cfg := runner.ParseConfig()

	if cfg.RunMode == runner.RunModeMigrate {
		if err := migrate(cfg, logger); err != nil {
			logger.Fatal("migrations failed", zap.Error(err))
		}

		return
	}

	run, err := runnerFactory(cfg, logger)
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	if err := run.Run(ctx); err != nil {
		closeRunner(run, logger)
		logger.Fatal("runner exited", zap.Error(err))
	}

	closeRunner(run, logger)
}

func runnerFactory(cfg *runner.Config, logger *zap.Logger) (runner.Runner, error) {
	switch cfg.RunMode {
	case runner.RunModeWeb:
		return webrunner.New(cfg, logger)
	case runner.RunModeWorker:
		return workerrunner.New(cfg, logger)
	default:
		return nil, runner.ErrInvalidRunMode
	}
}

func migrate(cfg *runner.Config, logger *zap.Logger) error {
	m := postgres.NewMigrationRunner(cfg.App.DatabaseDSN, logger)
	if err := m.SetMigrationsDir(cfg.MigrationsDir); err != nil {
		return err
	}

	return m.RunMigrations()
}

func closeRunner(run runner.Runner, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := run.Close(ctx); err != nil {
		logger.Error("error closing runner", zap.Error(err))
	}
}
