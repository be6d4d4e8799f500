package main

import (
	"context"
	"os"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/vesselhq/vessel/pkg/cmd"
	"github.com/vesselhq/vessel/pkg/log"
)

const defaultPort = 9091

func main() {
	command := &cli.Command{
		Name:                  "vessel-api",
		Usage:                 "Manage workflows and their runs over HTTP",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence (postgres:// or a directory)",
				Required: true,
				Sources:  cli.EnvVars("VESSEL_DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("VESSEL_EVENT_BUS"),
			},
			&cli.StringFlag{
				Name:     "chains-config",
				Usage:    "Path to the YAML chain configuration file",
				Required: true,
				Sources:  cli.EnvVars("VESSEL_CHAINS_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the cross-replica relayer chain lock",
				Sources: cli.EnvVars("VESSEL_REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("VESSEL_LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("vessel-api")
			logger.InfoContext(ctx, "Initializing Vessel API")

			wallet, err := cmd.NewWalletStack(command.String("chains-config"), command.String("redis-url"), logger)
			if err != nil {
				return err
			}
			defer wallet.Close()

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), "vessel-api", logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			instanceID := "api-" + uuid.New().String()[:8]
			api := NewAPI(instanceID, logger, persistence, eventBus, wallet)

			return api.Start(int(command.Int("port")))
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
