// Package main is the entry point for the Chatter command line client.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"Chatter/pkg/config"
	"Chatter/pkg/engine"
	"Chatter/pkg/logging"
)

const version = "0.3.0"

func main() {
	if err := newCLI(os.Stdout, os.Stderr).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	_ = logging.CloseAll()
}

// newCLI builds the command tree. Extra engine options are used by tests.
func newCLI(stdout, stderr io.Writer, opts ...engine.Option) *cli.App {
	return &cli.App{
		Name:      "chatter",
		Usage:     "Local chat client with self-destructing messages",
		Version:   version,
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
				EnvVars: []string{"CHATTER_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "backend",
				Usage: "Storage backend: memory, sqlite or pebble",
			},
			&cli.StringFlag{
				Name:  "data",
				Usage: "Storage `PATH` (database file or pebble directory)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error",
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Human readable console logs",
			},
		},
		Commands: []*cli.Command{
			contactsCommand(opts),
			chatCommand(opts),
			watchCommand(opts),
			metricsCommand(opts),
			backendsCommand(opts),
			configCommand(),
			logsCommand(),
		},
	}
}

// loadConfig applies command line overrides on top of file and environment settings.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if v := c.String("backend"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := c.String("data"); v != "" {
		cfg.Storage.Path = v
	}
	if v := c.String("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if c.IsSet("pretty") {
		cfg.Log.Pretty = c.Bool("pretty")
	}
	return cfg, nil
}

// withApp starts the engine for one command and closes it afterwards.
func withApp(opts []engine.Option, fn func(*cli.Context, *App) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}

		parent := c.Context
		if parent == nil {
			parent = context.Background()
		}
		ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
		defer stop()

		log := logging.MustGet("app", logging.Options{
			Level:  cfg.Log.Level,
			Dir:    cfg.Log.Dir,
			Pretty: cfg.Log.Pretty,
			Stderr: c.App.ErrWriter,
		})

		app := NewApp(c.App.Writer)
		if err := app.startup(ctx, cfg, log, opts...); err != nil {
			return err
		}
		defer func() {
			if err := app.shutdown(); err != nil {
				log.Warn().Err(err).Msg("shutdown_failed")
			}
		}()
		c.Context = ctx
		return fn(c, app)
	}
}
