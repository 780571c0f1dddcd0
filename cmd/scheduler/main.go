package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/example/workorder-scheduler/internal/config"
	"github.com/example/workorder-scheduler/internal/logging"
	"github.com/example/workorder-scheduler/internal/persistence"
	"github.com/example/workorder-scheduler/internal/persistence/memory"
	"github.com/example/workorder-scheduler/internal/persistence/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "scheduler:", err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "scheduler",
		Usage: "Work order recurrence expansion and overlap resolution service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML configuration file",
				Sources: cli.EnvVars("SCHEDULER_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error); overrides SCHEDULER_LOG_LEVEL",
			},
			&cli.StringFlag{
				Name:  "storage",
				Usage: "Storage backend (sqlite, memory); overrides SCHEDULER_STORAGE",
			},
			&cli.StringFlag{
				Name:  "sqlite-dsn",
				Usage: "SQLite database path; overrides SCHEDULER_SQLITE_DSN",
			},
			&cli.StringFlag{
				Name:  "timezone",
				Usage: "IANA zone used for calendar days; overrides SCHEDULER_TIMEZONE",
			},
		},
		Commands: []*cli.Command{
			newServeCommand(),
			newMigrateCommand(),
			newCreateUserCommand(),
			newExpandCommand(),
		},
	}
}

// runtime is the configuration and logger shared by every command.
type runtime struct {
	cfg      config.Config
	location *time.Location
	logger   *slog.Logger
}

func loadRuntime(cmd *cli.Command, logOutput io.Writer) (runtime, error) {
	cfg, err := config.LoadFile(cmd.String("config"))
	if err != nil {
		return runtime{}, fmt.Errorf("load configuration: %w", err)
	}

	if cmd.IsSet("log-level") {
		cfg.LogLevel = cmd.String("log-level")
	}
	if cmd.IsSet("storage") {
		cfg.Storage = cmd.String("storage")
	}
	if cmd.IsSet("sqlite-dsn") {
		cfg.SQLiteDSN = cmd.String("sqlite-dsn")
	}
	if cmd.IsSet("timezone") {
		cfg.Timezone = cmd.String("timezone")
	}
	if cmd.IsSet("port") {
		cfg.HTTPPort = int(cmd.Int("port"))
	}
	if err := cfg.Validate(); err != nil {
		return runtime{}, fmt.Errorf("invalid configuration: %w", err)
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return runtime{}, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return runtime{}, err
	}

	return runtime{
		cfg:      cfg,
		location: loc,
		logger:   logging.New(logOutput, level),
	}, nil
}

// store is satisfied by both storage backends.
type store interface {
	persistence.WorkOrderRepository
	persistence.UserRepository
	persistence.SessionRepository
	Migrate(ctx context.Context) error
	Close() error
}

func openStore(ctx context.Context, rt runtime) (store, error) {
	var s store
	switch rt.cfg.Storage {
	case config.StorageMemory:
		s = memory.New(time.Now)
	default:
		storage, err := sqlite.Open(rt.cfg.SQLiteDSN, sqlite.WithLogger(logging.WithModule(rt.logger, "migration")))
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
		s = storage
	}

	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	return s, nil
}

func closeStore(s store, logger *slog.Logger) {
	if err := s.Close(); err != nil {
		logger.Error("failed to close storage", "error", err)
	}
}
