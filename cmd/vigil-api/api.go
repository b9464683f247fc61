// Package main provides the Vigil API server implementation.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/robfig/cron/v3"

	"github.com/nocturnelabs/vigil/pkg/automation"
	"github.com/nocturnelabs/vigil/pkg/cmd"
	"github.com/nocturnelabs/vigil/pkg/config"
	"github.com/nocturnelabs/vigil/pkg/eventbus"
	"github.com/nocturnelabs/vigil/pkg/notification"
	"github.com/nocturnelabs/vigil/pkg/persistence"
	"github.com/nocturnelabs/vigil/pkg/web"
	"github.com/nocturnelabs/vigil/pkg/workflow"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	handlers    *web.APIHandlers
	maintenance *cron.Cron
}

func NewAPI(
	ctx context.Context,
	logger *slog.Logger,
	store persistence.Persistence,
	eventBus eventbus.EventBus,
	definitionsPath string,
) (*API, error) {
	notifier := notification.NewEngine(logger, store, eventBus)
	reg := cmd.NewRegistry(logger, notifier)
	executor := workflow.NewEngine(logger, reg, store, eventBus)
	auto := automation.NewEngine(logger, executor, notifier)

	defs, err := config.Load(definitionsPath)
	if err != nil {
		return nil, fmt.Errorf("load definitions: %w", err)
	}

	if err := cmd.ApplyDefinitions(defs, reg, notifier); err != nil {
		return nil, err
	}

	for _, rule := range defs.Rules {
		if err := auto.RegisterRule(rule); err != nil {
			return nil, fmt.Errorf("register automation rule: %w", err)
		}
	}

	maintenance := cron.New()
	if err := notifier.StartMaintenance(maintenance); err != nil {
		return nil, fmt.Errorf("start maintenance: %w", err)
	}

	logger.InfoContext(ctx, "Definitions loaded",
		"tasks", len(defs.Tasks),
		"workflows", len(defs.Workflows),
		"rules", len(defs.Rules),
		"channels", len(defs.Channels),
		"templates", len(defs.Templates),
		"policies", len(defs.Policies),
	)

	return &API{
		logger:      logger,
		persistence: store,
		eventBus:    eventBus,
		handlers:    web.NewAPIHandlers(reg, executor, auto, notifier, store),
		maintenance: maintenance,
	}, nil
}

func (a *API) App() *fiber.App {
	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Vigil API")
	})

	a.handlers.Register(app)

	return app
}

func (a *API) Start(port int) error {
	a.maintenance.Start()
	defer a.maintenance.Stop()

	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}
