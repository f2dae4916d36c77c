package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/marketdesk/internal/apiclient"
	"github.com/florianilch/marketdesk/internal/app"
	"github.com/florianilch/marketdesk/internal/observability"
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string) error {
	cmd := &cli.Command{
		Name:  "marketdesk",
		Usage: "Marketplace admin console and API client",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
				Value: slog.LevelInfo.String(),
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json)",
				Value: string(app.DefaultConfigLogFormat),
			},
			&cli.StringFlag{
				Name:  "api--base-url",
				Usage: "marketplace API base URL",
				Value: app.DefaultConfigAPIBaseURL,
			},
		},
		Commands: []*cli.Command{
			startCommand(),
			callCommand(),
			sessionCommand(),
		},
	}

	return cmd.Run(ctx, args)
}

// setup loads the configuration and installs logging for one command run.
func setup(ctx context.Context, cmd *cli.Command) (*app.Config, func(context.Context) error, error) {
	cfg, err := configFromCommand(cmd)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	shutdown, err := observability.Instrument(ctx, observability.Options{
		Level:    cfg.LogLevel,
		Format:   string(cfg.LogFormat),
		Exporter: cfg.Telemetry.Exporter,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up observability layer: %w", err)
	}

	return cfg, shutdown, nil
}

func startCommand() *cli.Command {
	return &cli.Command{
		Name:  "start",
		Usage: "serve the admin console",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "server--host",
				Usage: "server host",
				Value: app.DefaultConfigServerHost,
			},
			&cli.IntFlag{
				Name:  "server--port",
				Usage: "server port",
				Value: int(app.DefaultConfigServerPort),
			},
			&cli.StringFlag{
				Name:  "api--refresh-policy",
				Usage: "concurrent refresh handling (share|fail-fast)",
				Value: string(apiclient.PolicyShare),
			},
			&cli.StringFlag{
				Name:  "session--redis--addr",
				Usage: "Redis address for console sessions (in-memory when empty)",
			},
		},
		Action: startAction,
	}
}

func startAction(ctx context.Context, cmd *cli.Command) error {
	cfg, shutdown, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() { _ = shutdown(context.Background()) }()

	application, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create app: %w", err)
	}

	slog.InfoContext(ctx, "starting")

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("app failed to start: %w", err)
	}

	slog.InfoContext(ctx, "stopped gracefully")
	return nil
}
