// Package main provides a CLI tool for database migrations.
//
// Usage:
//
//	migrate [-path dir] up
//	migrate [-path dir] down
//	migrate [-path dir] steps N
//	migrate [-path dir] version
//	migrate [-path dir] force V
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/research-registry-service/internal/config"
	"github.com/helixir/research-registry-service/internal/database"
	"github.com/helixir/research-registry-service/internal/observability"
	"github.com/helixir/research-registry-service/migrations"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// command is one migrate action. arg is only read by steps and force.
type command struct {
	needsArg bool
	run      func(m *database.Migrator, arg int, logger zerolog.Logger) error
}

var commands = map[string]command{
	"up": {run: func(m *database.Migrator, _ int, logger zerolog.Logger) error {
		logger.Info().Msg("applying pending migrations")
		return m.Up()
	}},
	"down": {run: func(m *database.Migrator, _ int, logger zerolog.Logger) error {
		logger.Warn().Msg("rolling back every migration")
		return m.Down()
	}},
	"steps": {needsArg: true, run: func(m *database.Migrator, n int, logger zerolog.Logger) error {
		if n == 0 {
			return errors.New("steps needs a non-zero count")
		}
		logger.Info().Int("steps", n).Msg("migrating by steps")
		return m.Steps(n)
	}},
	"version": {run: func(*database.Migrator, int, zerolog.Logger) error { return nil }},
	"force": {needsArg: true, run: func(m *database.Migrator, v int, logger zerolog.Logger) error {
		if v < 0 {
			return errors.New("force needs a version >= 0")
		}
		logger.Warn().Int("version", v).Msg("forcing migration version")
		return m.Force(v)
	}},
}

func run(args []string) error {
	flags := flag.NewFlagSet("migrate", flag.ContinueOnError)
	dir := flags.String("path", "", "Read migrations from this directory instead of the embedded set")
	flags.Usage = func() {
		fmt.Fprintln(flags.Output(), "usage: migrate [-path dir] up|down|steps N|version|force V")
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		return err
	}

	name, arg, err := parseCommand(flags.Args())
	if err != nil {
		flags.Usage()
		return err
	}
	cmd := commands[name]

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      "info",
		Format:     "console",
		Output:     "stdout",
		TimeFormat: time.RFC3339,
	})
	logger = logger.With().Str("component", "migrate").Logger()

	var source fs.FS = migrations.FS
	if *dir != "" {
		source = os.DirFS(*dir)
		logger.Info().Str("path", *dir).Msg("using migrations from directory")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	migrator, err := database.NewMigrator(db, source, logger)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to close migrator")
		}
	}()

	if err := cmd.run(migrator, arg, logger); err != nil {
		return fmt.Errorf("migrate %s: %w", name, err)
	}
	printVersion(migrator, logger)
	return nil
}

func parseCommand(args []string) (string, int, error) {
	if len(args) == 0 {
		return "", 0, errors.New("no command given")
	}
	name := args[0]
	cmd, ok := commands[name]
	if !ok {
		return "", 0, fmt.Errorf("unknown command %q", name)
	}
	if !cmd.needsArg {
		if len(args) > 1 {
			return "", 0, fmt.Errorf("%s takes no argument", name)
		}
		return name, 0, nil
	}
	if len(args) != 2 {
		return "", 0, fmt.Errorf("%s needs exactly one number", name)
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		return "", 0, fmt.Errorf("%s: %w", name, err)
	}
	return name, n, nil
}

func printVersion(migrator *database.Migrator, logger zerolog.Logger) {
	v, dirty, err := migrator.Version()
	if err != nil {
		logger.Warn().Err(err).Msg("could not determine migration version")
		return
	}
	logger.Info().Uint("version", v).Bool("dirty", dirty).Msg("current migration version")
}
