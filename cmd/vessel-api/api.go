// Package main provides the Vessel API server.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/vesselhq/vessel/pkg/cmd"
	"github.com/vesselhq/vessel/pkg/eventbus"
	"github.com/vesselhq/vessel/pkg/nodes/safetx"
	"github.com/vesselhq/vessel/pkg/persistence"
	"github.com/vesselhq/vessel/pkg/services"
	"github.com/vesselhq/vessel/pkg/web"
	"github.com/vesselhq/vessel/pkg/workflow"
)

type API struct {
	instanceID  string
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	wallet      *cmd.WalletStack
	validate    *validator.Validate
}

func NewAPI(
	instanceID string,
	logger *slog.Logger,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
	wallet *cmd.WalletStack,
) *API {
	return &API{
		instanceID:  instanceID,
		logger:      logger,
		persistence: persistence,
		eventBus:    eventBus,
		wallet:      wallet,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

// App wires the full service graph. Resumes run in-process through the
// executor so the caller learns the signature verdict synchronously; that is
// why the API carries the registry and the wallet stack.
func (a *API) App() *fiber.App {
	registry := cmd.NewRegistry(a.logger, safetx.NewFactory(a.wallet.Safe, a.wallet.Chains))
	executor := workflow.NewExecutor(a.instanceID, a.logger, a.persistence, registry, a.eventBus)

	workflowService := services.NewWorkflow(a.persistence, registry)
	executionService := services.NewExecution(a.persistence, a.eventBus, executor)

	handlers := web.NewAPIHandlers(workflowService, executionService, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker(healthcheck.Config{
		Probe: func(c fiber.Ctx) bool {
			return a.persistence.HealthCheck(c.Context()) == nil
		},
	}))

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Vessel API")
	})

	w := app.Group("/workflows")
	w.Get("/", handlers.ListWorkflows)
	w.Post("/", handlers.CreateWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Patch("/:id", handlers.UpdateWorkflow)
	w.Delete("/:id", handlers.DeleteWorkflow)
	w.Post("/:id/publish", handlers.PublishWorkflow)
	w.Post("/:id/executions", handlers.StartExecution)
	w.Get("/:id/executions", handlers.ListExecutions)

	e := app.Group("/executions")
	e.Get("/:id", handlers.GetExecution)
	e.Post("/:id/resume", handlers.ResumeExecution)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	return a.App().Listen(":" + strconv.Itoa(port))
}
