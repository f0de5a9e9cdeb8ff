package runner

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/notewire/integrations/config"
	"github.com/notewire/integrations/dispatcher"
	"github.com/notewire/integrations/integration"
	"github.com/notewire/integrations/oauthflow"
	"github.com/notewire/integrations/oauthstate"
	"github.com/notewire/integrations/pkg/encryption"
	"github.com/notewire/integrations/postgres"
	"github.com/notewire/integrations/registry"
	"github.com/notewire/integrations/tokens"
)

// App is the wired object graph shared by the run modes. Providers are
// registered on Registry by the embedding deployment before Run.
type App struct {
	DB           *sql.DB
	Registry     *registry.Registry
	Flow         *oauthflow.Flow
	Service      *integration.Service
	Dispatcher   *dispatcher.Dispatcher
	Settings     *config.Settings
	Integrations *postgres.IntegrationRepository
	Connections  *postgres.ConnectionRepository
	Logs         *postgres.ActivityLogRepository
	Notes        *postgres.NoteRepository
	Logger       *zap.Logger
}

// NewApp builds the object graph from configuration. The caller owns
// DB and must close it.
func NewApp(cfg *Config, logger *zap.Logger, opts ...dispatcher.Option) (*App, error) {
	if cfg.App.DatabaseDSN == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	db, err := sql.Open("pgx", cfg.App.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()

		return nil, fmt.Errorf("ping database: %w", err)
	}

	cipher, err := encryption.New(cfg.App.EncryptionKey)
	if err != nil {
		db.Close()

		return nil, err
	}

	codec, err := oauthstate.New(cfg.App.SigningSecret)
	if err != nil {
		db.Close()

		return nil, err
	}

	integrations := postgres.NewIntegrationRepository(db)
	connections := postgres.NewConnectionRepository(db)
	logs := postgres.NewActivityLogRepository(db)
	notes := postgres.NewNoteRepository(db)

	reg := registry.New()
	manager := tokens.NewManager(cipher, integrations, logger)
	settings := config.NewSettings(db)

	opts = append(opts, dispatcher.WithTelemetry(cfg.Telemetry()))

	return &App{
		DB:           db,
		Registry:     reg,
		Flow:         oauthflow.New(reg, codec, manager, settings, logger),
		Service:      integration.NewService(integrations, connections, logs, notes, reg, manager, logger),
		Dispatcher:   dispatcher.New(integrations, connections, logs, notes, reg, manager, settings, cfg.App.AppBaseURL, logger, opts...),
		Settings:     settings,
		Integrations: integrations,
		Connections:  connections,
		Logs:         logs,
		Notes:        notes,
		Logger:       logger,
	}, nil
}

func (a *App) Close() error {
	a.Dispatcher.Wait()

	return a.DB.Close()
}
