// Package main runs the webhook server.
//
// Configuration comes from an optional TOML file, an optional .env file and
// the environment. See config.Load for the variable names.
//
// Usage:
//
//	reviewbot serve --config reviewbot.toml
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/reviewbot/reviewbot/app"
	"github.com/reviewbot/reviewbot/config"
	"github.com/reviewbot/reviewbot/server"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cliApp := &cli.App{
		Name:  "reviewbot",
		Usage: "AI code review for GitHub pull requests and GitLab merge requests",
		Commands: []*cli.Command{
			serveCommand(logger),
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		logger.Error("failed to run", "error", err)
		os.Exit(1)
	}
}

func serveCommand(logger *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the webhook server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a TOML configuration file",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Value: ".env",
				Usage: "path to a dotenv file, ignored when missing",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "port to listen on, overrides PORT",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config"), c.String("env-file"))
			if err != nil {
				return err
			}
			if c.IsSet("port") {
				cfg.Server.Port = c.Int("port")
			}
			return serve(c.Context, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer a.Close()

	srv := server.New(a.Router, cfg.Server.SessionTimeout, logger)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		if err := srv.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-done:
	}
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
	return nil
}
