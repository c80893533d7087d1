// Package main replays a saved webhook payload against the configured
// services without starting a server.
//
// Usage:
//
//	reviewbot-local replay --env-file .env payload.json
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/reviewbot/reviewbot/app"
	"github.com/reviewbot/reviewbot/config"
	"github.com/reviewbot/reviewbot/router"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	cliApp := &cli.App{
		Name:  "reviewbot-local",
		Usage: "run reviews locally from saved webhook payloads",
		Commands: []*cli.Command{
			{
				Name:      "replay",
				Usage:     "Route one webhook payload and run its review in the foreground",
				ArgsUsage: "<payload.json>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to a TOML configuration file"},
					&cli.StringFlag{Name: "env-file", Value: ".env", Usage: "path to a dotenv file"},
					&cli.StringFlag{Name: "gitlab-token", EnvVars: []string{"GITLAB_TOKEN"}, Usage: "token sent as X-Gitlab-Token"},
					&cli.BoolFlag{Name: "dry-run", Usage: "print the routing decision without reviewing"},
				},
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return errors.New("expected exactly one payload file")
					}
					payload, err := os.ReadFile(c.Args().First())
					if err != nil {
						return fmt.Errorf("failed to read payload: %w", err)
					}

					cfg, err := config.Load(c.String("config"), c.String("env-file"))
					if err != nil {
						return err
					}

					a, err := app.New(c.Context, cfg, logger)
					if err != nil {
						return fmt.Errorf("failed to initialize: %w", err)
					}
					defer a.Close()

					req := &router.Request{Payload: payload, GitLabToken: c.String("gitlab-token")}
					if c.Bool("dry-run") {
						decision, err := a.Router.Route(c.Context, req)
						if err != nil {
							return err
						}
						if decision.Skipped() {
							logger.Info("would skip", "event", decision.Event.Kind(), "reason", decision.Skip)
						} else {
							logger.Info("would review", "event", decision.Event.Kind())
						}
						return nil
					}
					return a.Router.Dispatch(c.Context, req)
				},
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		logger.Error("failed", "error", err)
		os.Exit(1)
	}
}
