// Package main applies the record cleaner's SQL migrations.
//
// The tool talks to PostgreSQL through golang-migrate only; it does not need
// the rest of the service configuration to be valid for a database to exist,
// but it reads the same config file and CLEANER_DATABASE_* variables.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/rs/zerolog"

	"github.com/helixir/record-cleaner-service/internal/config"
	"github.com/helixir/record-cleaner-service/internal/database"
	"github.com/helixir/record-cleaner-service/internal/observability"
)

type action struct {
	name string
	run  func(*database.Migrator) error
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	up := fs.Bool("up", false, "Apply all pending migrations")
	down := fs.Bool("down", false, "Roll back all migrations")
	steps := fs.Int("steps", 0, "Apply N migrations (negative rolls back)")
	version := fs.Bool("version", false, "Print the current migration version")
	force := fs.Int("force", -1, "Mark version V as applied and clear the dirty flag")
	migrationsPath := fs.String("path", "", "Migrations directory (default database.migration_path)")
	configPath := fs.String("config", "", "Configuration file path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	act, err := selectAction(*up, *down, *steps, *version, *force)
	if err != nil {
		fs.Usage()
		return err
	}

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      "info",
		Format:     "console",
		Output:     "stdout",
		TimeFormat: time.RFC3339,
	})
	logger = observability.WithComponent(logger, "migrate")

	dir := cfg.Database.MigrationPath
	if *migrationsPath != "" {
		dir = *migrationsPath
	}

	migrator, err := database.NewMigratorFromDSN(cfg.Database.DSN(), dir, logger)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to close migrator")
		}
	}()

	if act.run != nil {
		logger.Info().Str("action", act.name).Str("path", dir).Msg("running migrations")
		if err := act.run(migrator); err != nil {
			return fmt.Errorf("migrate %s: %w", act.name, err)
		}
	}
	logVersion(migrator, logger)
	return nil
}

// selectAction returns the single requested action. -version alone has no
// run function; every action ends by logging the version.
func selectAction(up, down bool, steps int, version bool, force int) (action, error) {
	var actions []action
	if up {
		actions = append(actions, action{name: "up", run: (*database.Migrator).Up})
	}
	if down {
		actions = append(actions, action{name: "down", run: (*database.Migrator).Down})
	}
	if steps != 0 {
		actions = append(actions, action{name: fmt.Sprintf("steps %d", steps), run: func(m *database.Migrator) error {
			return m.Steps(steps)
		}})
	}
	if version {
		actions = append(actions, action{name: "version"})
	}
	if force >= 0 {
		actions = append(actions, action{name: fmt.Sprintf("force %d", force), run: func(m *database.Migrator) error {
			return m.Force(force)
		}})
	}

	switch len(actions) {
	case 0:
		return action{}, errors.New("specify one of: -up, -down, -steps N, -version, -force V")
	case 1:
		return actions[0], nil
	default:
		return action{}, errors.New("specify only one action at a time")
	}
}

func logVersion(migrator *database.Migrator, logger zerolog.Logger) {
	v, dirty, err := migrator.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		logger.Info().Msg("no migrations applied")
		return
	}
	if err != nil {
		logger.Warn().Err(err).Msg("could not determine migration version")
		return
	}
	logger.Info().Uint("version", v).Bool("dirty", dirty).Msg("current migration version")
}
