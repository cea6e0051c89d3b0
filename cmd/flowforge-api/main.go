package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	cli "github.com/urfave/cli/v3"

	"github.com/dukex/flowforge/pkg/cmd"
	"github.com/dukex/flowforge/pkg/log"
)

const defaultPort = 9091

func main() {
	flags := []cli.Flag{
		&cli.IntFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Usage:   "Port to run the API server on",
			Value:   defaultPort,
			Sources: cli.EnvVars("PORT"),
		},
		&cli.BoolFlag{
			Name:    "consume-triggers",
			Usage:   "Run dispatched workflows in this process (always on for the gochannel bus)",
			Sources: cli.EnvVars("CONSUME_TRIGGERS"),
		},
	}
	flags = append(flags, cmd.CommonFlags()...)
	flags = append(flags, cmd.EventBusFlags()...)

	command := &cli.Command{
		Name:                  "flowforge-api",
		Usage:                 "Create, run and schedule workflows over HTTP",
		EnableShellCompletion: true,
		Flags:                 flags,
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := log.Setup(command.String("log-level"), command.String("log-format")).
				With("module", "flowforge-api")

			logger.InfoContext(ctx, "Initializing flowforge API")

			runtime, err := cmd.NewRuntime(ctx, logger, cmd.ConfigFromCommand(command, "flowforge-api"))
			if err != nil {
				return err
			}

			defer func() {
				if err := runtime.Close(context.WithoutCancel(ctx)); err != nil {
					logger.ErrorContext(ctx, "Failed to close runtime", "error", err)
				}
			}()

			provider := command.String("event-bus")

			eventBus, err := cmd.NewEventBus(provider, command.String("kafka-brokers"), "flowforge-api", logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			consume := command.Bool("consume-triggers") || provider == "" || provider == "gochannel"

			return NewAPI(logger, runtime, eventBus).Start(ctx, command.Int("port"), consume)
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := command.Run(ctx, os.Args); err != nil {
		stop()
		panic(err)
	}
}
