package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-sqlite/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-sqlite/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-sqlite/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-sqlite/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-sqlite/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-sqlite/internal/telemetry"
)

// configEnvVar names the environment variable consulted when --config is not given.
const configEnvVar = "GRAYSQL_CONFIG"

// globalFlags holds the persistent flags shared by every subcommand.
type globalFlags struct {
	configPath   string
	databasePath string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "graysql",
		Short: "Migrate, query and back up SQLite databases",
		Long: `graysql drives a SQLite database through a single pinned connection.

Migrations are *.sql files applied in filename order, each in its own
transaction. Progress is stored in the database itself (PRAGMA user_version),
so re-running migrate only applies new files.`,
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "Config file path (default: $"+configEnvVar+")")
	rootCmd.PersistentFlags().StringVar(&flags.databasePath, "database", "", "Database file path (overrides config)")

	rootCmd.AddCommand(
		migrateCmd(flags),
		statusCmd(flags),
		backupCmd(flags),
		queryCmd(flags),
	)

	return rootCmd
}

// session is an open database with its logger and telemetry sinks.
type session struct {
	cfg      *config.Config
	logger   *logging.Logger
	db       *database.Database
	name     string
	observer *telemetry.Observer
	mqtt     *mqtt.Client
	influx   *influxdb.Client
}

// openSession loads configuration, connects the optional telemetry sinks and
// opens the database. Sink connection failures are logged and the command
// carries on without that sink; a database failure is returned.
func openSession(cmd *cobra.Command, flags *globalFlags) (*session, error) {
	path := flags.configPath
	if path == "" {
		path = os.Getenv(configEnvVar)
	}

	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if flags.databasePath != "" {
		cfg.Database.Path = flags.databasePath
	}

	// Logs go to the error stream so query output stays parseable
	logger := logging.NewWithWriter(cfg.Logging, version, cmd.ErrOrStderr())

	s := &session{
		cfg:    cfg,
		logger: logger,
		name:   mqtt.DatabaseName(cfg.Database.Path),
	}

	tcfg := telemetry.Config{
		Database: s.name,
		Logger:   logger.Logger,
	}

	if cfg.MQTT.Enabled {
		client, err := mqtt.Connect(cmd.Context(), cfg.MQTT)
		if err != nil {
			logger.Warn("mqtt unavailable, continuing without events", "error", err)
		} else {
			client.SetLogger(logger.Component("mqtt"))
			s.mqtt = client
			tcfg.Publisher = client
		}
	}

	if cfg.InfluxDB.Enabled {
		client, err := influxdb.Connect(cmd.Context(), cfg.InfluxDB)
		if err != nil {
			logger.Warn("influxdb unavailable, continuing without metrics", "error", err)
		} else {
			client.SetOnError(func(err error) {
				logger.Warn("influxdb write failed", "error", err)
			})
			s.influx = client
			tcfg.Metrics = client
		}
	}

	s.observer = telemetry.New(tcfg)

	db, err := database.Open(cmd.Context(), database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
		Logger:      logger.Component("database").Logger,
		Observer:    s.observer,
	})
	if err != nil {
		s.closeSinks()
		return nil, fmt.Errorf("opening database: %w", err)
	}
	s.db = db

	logger.Debug("database opened", "path", db.Path())
	return s, nil
}

// Close closes the database and then flushes and disconnects the sinks.
func (s *session) Close() {
	if err := s.db.Close(); err != nil {
		s.logger.Error("error closing database", "error", err)
	}
	s.closeSinks()
}

func (s *session) closeSinks() {
	if s.influx != nil {
		if err := s.influx.Close(); err != nil {
			s.logger.Warn("error closing influxdb client", "error", err)
		}
	}
	if s.mqtt != nil {
		if err := s.mqtt.Close(); err != nil {
			s.logger.Warn("error closing mqtt client", "error", err)
		}
	}
}

// withTimeout bounds ctx by d. A zero d means no limit.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
