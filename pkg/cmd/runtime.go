package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/dukex/flowforge/pkg/otelhelper"
	"github.com/dukex/flowforge/pkg/persistence"
	"github.com/dukex/flowforge/pkg/registry"
	"github.com/dukex/flowforge/pkg/services"
	"github.com/dukex/flowforge/pkg/workflow"
)

const (
	DefaultWorkflowCacheTTL = 30 * time.Second
	DefaultRunTimeout       = 10 * time.Minute
)

// Config is what every binary needs to build a Runtime.
type Config struct {
	ServiceName       string
	DatabaseURL       string
	DocumentsURL      string
	PluginsPath       string
	EmailTransportURL string
	Tracing           bool
	WorkflowCacheTTL  time.Duration
	RunTimeout        time.Duration
}

// CommonFlags are shared by every flowforge binary.
func CommonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "Persistence URL: a file root (file://./data) or postgres://...",
			Value:   "file://./data",
			Sources: cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "documents-url",
			Usage:   "MongoDB URL for the query node's collections; the persistence store keeps them when empty",
			Sources: cli.EnvVars("DOCUMENTS_URL"),
		},
		&cli.StringFlag{
			Name:    "plugins-path",
			Usage:   "Path to the directory containing node plugins",
			Sources: cli.EnvVars("PLUGINS_PATH"),
		},
		&cli.StringFlag{
			Name:    "email-transport-url",
			Usage:   "HTTP endpoint that delivers email; emails are only logged when empty",
			Sources: cli.EnvVars("EMAIL_TRANSPORT_URL"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "Log format (text, json)",
			Value:   "text",
			Sources: cli.EnvVars("LOG_FORMAT"),
		},
		&cli.BoolFlag{
			Name:    "otel",
			Usage:   "Export traces over OTLP HTTP",
			Sources: cli.EnvVars("OTEL_ENABLED"),
		},
		&cli.DurationFlag{
			Name:    "workflow-cache-ttl",
			Usage:   "How long workflow graphs are cached by slug",
			Value:   DefaultWorkflowCacheTTL,
			Sources: cli.EnvVars("WORKFLOW_CACHE_TTL"),
		},
		&cli.DurationFlag{
			Name:    "run-timeout",
			Usage:   "Upper bound for a single workflow run (0 disables it)",
			Value:   DefaultRunTimeout,
			Sources: cli.EnvVars("RUN_TIMEOUT"),
		},
	}
}

// EventBusFlags select and configure the trigger event bus.
func EventBusFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (gochannel, kafka)",
			Value:   "gochannel",
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringFlag{
			Name:    "kafka-brokers",
			Usage:   "Comma separated kafka brokers",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
	}
}

// ConfigFromCommand reads the CommonFlags values.
func ConfigFromCommand(command *cli.Command, serviceName string) Config {
	return Config{
		ServiceName:       serviceName,
		DatabaseURL:       command.String("database-url"),
		DocumentsURL:      command.String("documents-url"),
		PluginsPath:       command.String("plugins-path"),
		EmailTransportURL: command.String("email-transport-url"),
		Tracing:           command.Bool("otel"),
		WorkflowCacheTTL:  command.Duration("workflow-cache-ttl"),
		RunTimeout:        command.Duration("run-timeout"),
	}
}

// Runtime holds the components shared by the API, the worker and the CLI.
type Runtime struct {
	Logger      *slog.Logger
	Persistence persistence.Persistence
	Registry    *registry.Registry
	Workflows   *workflow.Repository
	Executor    *workflow.Executor
	Service     *services.Workflow

	closers []func(context.Context) error
}

func NewRuntime(ctx context.Context, logger *slog.Logger, cfg Config) (*Runtime, error) {
	p, err := NewPersistence(ctx, logger, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{
		Logger:      logger,
		Persistence: p,
		closers:     []func(context.Context) error{p.Close},
	}

	store, closeStore, err := NewDocumentStore(ctx, logger, cfg.DocumentsURL, p)
	if err != nil {
		_ = rt.Close(ctx)

		return nil, err
	}

	rt.closers = append(rt.closers, closeStore)

	reg, err := NewRegistry(logger, cfg.PluginsPath, store, cfg.EmailTransportURL)
	if err != nil {
		_ = rt.Close(ctx)

		return nil, err
	}

	rt.Registry = reg

	executorOpts := []workflow.ExecutorOption{workflow.WithRunTimeout(cfg.RunTimeout)}

	if cfg.Tracing {
		tracer, shutdown, err := otelhelper.NewTracer(ctx, cfg.ServiceName)
		if err != nil {
			_ = rt.Close(ctx)

			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}

		rt.closers = append(rt.closers, shutdown)
		executorOpts = append(executorOpts, workflow.WithTracer(tracer))
	}

	rt.Workflows = workflow.NewRepository(p.WorkflowRepository(), cfg.WorkflowCacheTTL)
	rt.Executor = workflow.NewExecutor(logger, rt.Workflows, p.ExecutionRepository(), reg, executorOpts...)
	rt.Service = services.NewWorkflow(p, rt.Workflows)

	return rt, nil
}

// AddCloser registers fn to run on Close, before the closers already registered.
func (rt *Runtime) AddCloser(fn func(context.Context) error) {
	rt.closers = append(rt.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error

	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}

	rt.closers = nil

	return errors.Join(errs...)
}
