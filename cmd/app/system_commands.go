package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/TortoiseWolfe/SpokeToWork-sub001/cmd/app/commands"
	"github.com/TortoiseWolfe/SpokeToWork-sub001/internal/app"
	"github.com/TortoiseWolfe/SpokeToWork-sub001/internal/config"
)

func getSystemCommands(version string) []*cli.Command {
	return []*cli.Command{
		{
			Name:  "worker",
			Usage: "Start the pending distribution retry worker and the ops server",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.RunWorker(ctx, version)
			},
		},
		{
			Name:  "migrate",
			Usage: "Run database migrations",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				return commands.RunMigrations(container.Logger(), cfg.DBDriver, cfg.DBConnectionString)
			},
		},
	}
}
