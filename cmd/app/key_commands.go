package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/TortoiseWolfe/SpokeToWork-sub001/cmd/app/commands"
	"github.com/TortoiseWolfe/SpokeToWork-sub001/internal/app"
	"github.com/TortoiseWolfe/SpokeToWork-sub001/internal/config"
)

func getKeyCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "create-identity-key",
			Usage: "Generate the local identity key pair and publish its public key",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "overwrite",
					Value: false,
					Usage: "Replace an existing identity key (copies wrapped for the old key become unreadable)",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				container := app.NewContainer(config.Load())
				defer func() { _ = container.Shutdown(ctx) }()

				identityUseCase, err := container.IdentityUseCase()
				if err != nil {
					return err
				}

				return commands.RunCreateIdentityKey(
					ctx,
					identityUseCase,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.Bool("overwrite"),
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "rotate-group-key",
			Usage: "Create the next group key version of a conversation and distribute it",
			Flags: []cli.Flag{
				conversationFlag(),
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				container := app.NewContainer(config.Load())
				defer func() { _ = container.Shutdown(ctx) }()

				rotationUseCase, err := container.RotationUseCase()
				if err != nil {
					return err
				}

				return commands.RunRotateGroupKey(
					ctx,
					rotationUseCase,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("conversation"),
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "retry-pending",
			Usage: "Re-send a group key version to members that are still pending",
			Flags: []cli.Flag{
				conversationFlag(),
				&cli.UintFlag{
					Name:     "version",
					Required: true,
					Usage:    "Key version to re-send",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				container := app.NewContainer(config.Load())
				defer func() { _ = container.Shutdown(ctx) }()

				distributionUseCase, err := container.DistributionUseCase()
				if err != nil {
					return err
				}

				return commands.RunRetryPending(
					ctx,
					distributionUseCase,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("conversation"),
					uint(cmd.Uint("version")),
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "check-group-key",
			Usage: "Show the current key version of a conversation and whether it can be unwrapped",
			Flags: []cli.Flag{
				conversationFlag(),
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				container := app.NewContainer(config.Load())
				defer func() { _ = container.Shutdown(ctx) }()

				keyAccessUseCase, err := container.KeyAccessUseCase()
				if err != nil {
					return err
				}

				return commands.RunCheckGroupKey(
					ctx,
					keyAccessUseCase,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("conversation"),
					cmd.String("format"),
				)
			},
		},
	}
}
