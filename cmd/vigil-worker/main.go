package main

import (
	"context"
	"os"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/nocturnelabs/vigil/pkg/automation"
	"github.com/nocturnelabs/vigil/pkg/cmd"
	"github.com/nocturnelabs/vigil/pkg/config"
	"github.com/nocturnelabs/vigil/pkg/log"
	"github.com/nocturnelabs/vigil/pkg/notification"
	"github.com/nocturnelabs/vigil/pkg/workflow"
)

func main() {
	command := &cli.Command{
		Name:                  "vigil-worker",
		EnableShellCompletion: true,
		Usage:                 "Start a worker that executes workflows for incoming trigger events",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence (file:// or postgres://)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "definitions-path",
				Usage:    "Path to the YAML definitions file or directory",
				Required: true,
				Sources:  cli.EnvVars("DEFINITIONS_PATH"),
			},
			&cli.StringFlag{
				Name:     "event-bus",
				Usage:    "Event bus provider (gochannel, kafka)",
				Required: true,
				Sources:  cli.EnvVars("EVENT_BUS"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("vigil-worker").With("worker_id", workerID)

			logger.InfoContext(ctx, "Initializing Vigil Worker")

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), "vigil-worker", logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			notifier := notification.NewEngine(logger, persistence, eventBus)
			reg := cmd.NewRegistry(logger, notifier)
			executor := workflow.NewEngine(logger, reg, persistence, eventBus)
			auto := automation.NewEngine(logger, executor, notifier)

			defs, err := config.Load(command.String("definitions-path"))
			if err != nil {
				return err
			}

			if err := cmd.ApplyDefinitions(defs, reg, notifier); err != nil {
				return err
			}

			for _, rule := range defs.Rules {
				if err := auto.RegisterRule(rule); err != nil {
					return err
				}
			}

			worker := NewWorker(workerID, logger, reg, executor, auto, eventBus)

			return worker.Start(ctx)
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
