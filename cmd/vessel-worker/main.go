package main

import (
	"context"
	"os"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/vesselhq/vessel/pkg/cmd"
	"github.com/vesselhq/vessel/pkg/log"
	"github.com/vesselhq/vessel/pkg/nodes/safetx"
	"github.com/vesselhq/vessel/pkg/workflow"
)

func main() {
	command := &cli.Command{
		Name:                  "vessel-worker",
		Usage:                 "Run workflow executions requested over the event bus",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Sources: cli.EnvVars("VESSEL_WORKER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence (postgres:// or a directory)",
				Required: true,
				Sources:  cli.EnvVars("VESSEL_DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "event-bus",
				Usage:    "Event bus provider (kafka, gochannel)",
				Required: true,
				Sources:  cli.EnvVars("VESSEL_EVENT_BUS"),
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

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("vessel-worker").With("worker_id", workerID)
			logger.InfoContext(ctx, "Initializing Vessel Worker")

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

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), "vessel-worker", logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			registry := cmd.NewRegistry(logger, safetx.NewFactory(wallet.Safe, wallet.Chains))
			executor := workflow.NewExecutor(workerID, logger, persistence, registry, eventBus)

			worker := NewWorker(ctx, workerID, logger, executor, eventBus)

			return worker.Start(ctx)
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
