// Package main provides the flowforge API server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/dukex/flowforge/pkg/cmd"
	"github.com/dukex/flowforge/pkg/eventbus"
	"github.com/dukex/flowforge/pkg/web"
	"github.com/dukex/flowforge/pkg/workflow"
)

const shutdownTimeout = 10 * time.Second

type API struct {
	logger     *slog.Logger
	runtime    *cmd.Runtime
	jobs       *workflow.JobQueue
	dispatcher *workflow.Dispatcher
}

// NewAPI builds the server. eventBus may be nil, which disables POST /triggers.
func NewAPI(logger *slog.Logger, runtime *cmd.Runtime, eventBus eventbus.EventBus) *API {
	api := &API{
		logger:  logger,
		runtime: runtime,
		jobs: workflow.NewJobQueue(logger, runtime.Workflows,
			runtime.Persistence.JobRepository(), runtime.Executor),
	}

	if eventBus != nil {
		api.dispatcher = workflow.NewDispatcher(logger, runtime.Workflows, runtime.Executor,
			eventBus, runtime.Persistence.DeadLetterRepository())
	}

	return api
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(web.Dependencies{
		WorkflowService: a.runtime.Service,
		Executor:        a.runtime.Executor,
		Jobs:            a.jobs,
		Dispatcher:      a.dispatcher,
		Persistence:     a.runtime.Persistence,
		Registry:        a.runtime.Registry,
	})

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Flowforge API")
	})

	handlers.Register(app)

	return app
}

// Start serves on port until ctx is done. With consumeTriggers the API also
// runs the workflows its own trigger endpoint dispatches.
func (a *API) Start(ctx context.Context, port int, consumeTriggers bool) error {
	if consumeTriggers && a.dispatcher != nil {
		if err := a.dispatcher.Start(ctx); err != nil {
			return err
		}

		defer a.dispatcher.Wait()
	}

	app := a.App()
	errCh := make(chan error, 1)

	go func() {
		errCh <- app.Listen(":"+strconv.Itoa(port), fiber.ListenConfig{DisableStartupMessage: true})
	}()

	a.logger.InfoContext(ctx, "API listening", "port", port, "consume_triggers", consumeTriggers)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}
