package runner

import (
	"context"
	"errors"
	"flag"
	"os"
	"strconv"

	"github.com/notewire/integrations/config"
	"github.com/notewire/integrations/telemetry"
)

const (
	RunModeWeb = iota + 1
	RunModeWorker
	RunModeMigrate
)

var (
	ErrInvalidRunMode = errors.New("invalid run mode")
)

// Runner is a single run mode of the binary.
type Runner interface {
	Run(context.Context) error
	Close(context.Context) error
}

type Config struct {
	RunMode          int
	Addr             string
	MigrationsDir    string
	UseQueue         bool
	DisableTelemetry bool

	App *config.Config
}

func ParseConfig() *Config {
	cfg := Config{}

	var (
		mode     string
		useQueue bool
	)

	flag.StringVar(&mode, "mode", envOr("RUN_MODE", "web"), "run mode: web, worker or migrate")
	flag.StringVar(&cfg.Addr, "addr", envOr("ADDR", ":8080"), "address to listen on")
	flag.StringVar(&cfg.MigrationsDir, "migrations", envOr("MIGRATIONS_DIR", "scripts/migrations"), "path to migration files")
	flag.BoolVar(&useQueue, "use-queue", envBool("USE_QUEUE"), "dispatch note events through the redis queue instead of in-process")
	flag.BoolVar(&cfg.DisableTelemetry, "disable-telemetry", envBool("DISABLE_TELEMETRY"), "disable anonymous usage telemetry")

	flag.Parse()

	cfg.UseQueue = useQueue

	switch mode {
	case "web":
		cfg.RunMode = RunModeWeb
	case "worker":
		cfg.RunMode = RunModeWorker
	case "migrate":
		cfg.RunMode = RunModeMigrate
	default:
		cfg.RunMode = 0
	}

	app, err := config.FromEnv()
	if err != nil {
		panic(err)
	}

	if cfg.Addr != "" {
		app.Addr = cfg.Addr
	}

	cfg.App = app

	return &cfg
}

func (c *Config) Telemetry() telemetry.Telemetry {
	if c.DisableTelemetry || c.App.DisableTelemetry || c.App.PostHogAPIKey == "" {
		return telemetry.Noop()
	}

	t, err := telemetry.NewPostHog(c.App.PostHogAPIKey, "")
	if err != nil {
		return telemetry.Noop()
	}

	return t
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func envBool(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return false
	}

	return v
}
