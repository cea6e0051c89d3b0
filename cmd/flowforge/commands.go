package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/dukex/flowforge/pkg/cmd"
	"github.com/dukex/flowforge/pkg/log"
	"github.com/dukex/flowforge/pkg/models"
	"github.com/dukex/flowforge/pkg/workflow"
)

var errMissingArgument = errors.New("missing argument")

// NewApp builds the root command.
func NewApp() *cli.Command {
	return &cli.Command{
		Name:                  "flowforge",
		Usage:                 "Manage and run flowforge workflows",
		EnableShellCompletion: true,
		Flags:                 cmd.CommonFlags(),
		Commands: []*cli.Command{
			newImportCommand(),
			newValidateCommand(),
			newWorkflowsCommand(),
			newRunCommand(),
			newScheduleCommand(),
			newJobsCommand(),
		},
	}
}

// withRuntime builds a Runtime from the root flags, runs fn and closes it.
func withRuntime(ctx context.Context, command *cli.Command, fn func(*cmd.Runtime) error) error {
	root := command.Root()

	errWriter := root.ErrWriter
	if errWriter == nil {
		errWriter = os.Stderr
	}

	logger := log.New(errWriter, root.String("log-level"), root.String("log-format")).
		With("module", "flowforge-cli")

	runtime, err := cmd.NewRuntime(ctx, logger, cmd.ConfigFromCommand(root, "flowforge-cli"))
	if err != nil {
		return err
	}

	runErr := fn(runtime)

	return errors.Join(runErr, runtime.Close(context.WithoutCancel(ctx)))
}

func printJSON(command *cli.Command, value any) error {
	encoder := json.NewEncoder(command.Root().Writer)
	encoder.SetIndent("", "  ")

	return encoder.Encode(value)
}

func parseInput(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}

	var input map[string]any
	if err := json.Unmarshal([]byte(raw), &input); err != nil {
		return nil, fmt.Errorf("input must be a JSON object: %w", err)
	}

	return input, nil
}

func inputFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "input",
		Aliases: []string{"i"},
		Usage:   "Run input as a JSON object",
	}
}

func requireArg(command *cli.Command, name string) (string, error) {
	value := command.Args().First()
	if value == "" {
		return "", fmt.Errorf("%w: %s", errMissingArgument, name)
	}

	return value, nil
}

func newImportCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Create or update workflows from YAML or JSON files",
		ArgsUsage: "<file>...",
		Action: func(ctx context.Context, command *cli.Command) error {
			if command.Args().Len() == 0 {
				return fmt.Errorf("%w: file", errMissingArgument)
			}

			return withRuntime(ctx, command, func(rt *cmd.Runtime) error {
				for _, path := range command.Args().Slice() {
					workflows, err := readWorkflowFile(path)
					if err != nil {
						return err
					}

					for _, wf := range workflows {
						imported, err := rt.Service.Import(ctx, wf)
						if err != nil {
							return fmt.Errorf("%s: %w", path, err)
						}

						fmt.Fprintf(command.Root().Writer, "imported %s (version %d)\n", imported.Slug, imported.Version)
					}
				}

				return nil
			})
		},
	}
}

func newValidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Aliases:   []string{"v"},
		Usage:     "Check workflow files without storing them",
		ArgsUsage: "<file>...",
		Action: func(ctx context.Context, command *cli.Command) error {
			if command.Args().Len() == 0 {
				return fmt.Errorf("%w: file", errMissingArgument)
			}

			return withRuntime(ctx, command, func(rt *cmd.Runtime) error {
				var errs []error

				for _, path := range command.Args().Slice() {
					workflows, err := readWorkflowFile(path)
					if err != nil {
						errs = append(errs, err)

						continue
					}

					for _, wf := range workflows {
						if wf.Status == "" {
							wf.Status = models.WorkflowStatusActive
						}

						if err := rt.Service.Validate(wf); err != nil {
							errs = append(errs, fmt.Errorf("%s: %s: %w", path, wf.Slug, err))

							continue
						}

						for _, node := range wf.Canvas.Nodes {
							if !rt.Registry.IsRegistered(node.Kind()) {
								fmt.Fprintf(command.Root().Writer, "%s: %s: node %s has unknown kind %q and will be skipped\n",
									path, wf.Slug, node.ID, node.Kind())
							}
						}

						fmt.Fprintf(command.Root().Writer, "%s: %s ok\n", path, wf.Slug)
					}
				}

				return errors.Join(errs...)
			})
		},
	}
}

func newWorkflowsCommand() *cli.Command {
	return &cli.Command{
		Name:  "workflows",
		Usage: "Inspect stored workflows",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List workflows",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "status", Usage: "Only workflows with this status"},
				},
				Action: func(ctx context.Context, command *cli.Command) error {
					return withRuntime(ctx, command, func(rt *cmd.Runtime) error {
						workflows, err := rt.Service.List(ctx, models.WorkflowStatus(command.String("status")))
						if err != nil {
							return err
						}

						for _, wf := range workflows {
							fmt.Fprintf(command.Root().Writer, "%s\t%s\tv%d\t%s\n", wf.Slug, wf.Status, wf.Version, wf.Name)
						}

						return nil
					})
				},
			},
		},
	}
}

func newRunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Execute a workflow now and print the result",
		ArgsUsage: "<slug>",
		Flags:     []cli.Flag{inputFlag()},
		Action: func(ctx context.Context, command *cli.Command) error {
			slug, err := requireArg(command, "slug")
			if err != nil {
				return err
			}

			input, err := parseInput(command.String("input"))
			if err != nil {
				return err
			}

			return withRuntime(ctx, command, func(rt *cmd.Runtime) error {
				wf, err := rt.Service.FetchBySlug(ctx, slug)
				if err != nil {
					return err
				}

				result, err := rt.Executor.Execute(ctx, workflow.ExecuteRequest{
					WorkflowID:   wf.ID,
					WorkflowSlug: wf.Slug,
					Trigger:      models.TriggerSourceManual,
					Input:        input,
				})
				if err != nil {
					return err
				}

				if err := printJSON(command, result); err != nil {
					return err
				}

				if !result.Success {
					return fmt.Errorf("execution %s %s: %s", result.ExecutionID, result.Status, result.Error)
				}

				return nil
			})
		},
	}
}

func newScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:      "schedule",
		Usage:     "Store a job that runs a workflow later",
		ArgsUsage: "<slug>",
		Flags: []cli.Flag{
			inputFlag(),
			&cli.StringFlag{Name: "at", Usage: "RFC 3339 time to run at"},
			&cli.DurationFlag{Name: "in", Usage: "Delay from now, ignored when --at is set"},
			&cli.IntFlag{Name: "max-retries", Usage: "Retry bound", Value: models.DefaultMaxRetries},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			slug, err := requireArg(command, "slug")
			if err != nil {
				return err
			}

			input, err := parseInput(command.String("input"))
			if err != nil {
				return err
			}

			scheduledFor := time.Now().UTC().Add(command.Duration("in"))

			if at := command.String("at"); at != "" {
				scheduledFor, err = time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("invalid --at: %w", err)
				}
			}

			maxRetries := command.Int("max-retries")

			return withRuntime(ctx, command, func(rt *cmd.Runtime) error {
				queue := workflow.NewJobQueue(rt.Logger, rt.Workflows, rt.Persistence.JobRepository(), rt.Executor)

				job, err := queue.Schedule(ctx, workflow.ScheduleRequest{
					WorkflowSlug: slug,
					Input:        input,
					ScheduledFor: scheduledFor,
					MaxRetries:   &maxRetries,
				})
				if err != nil {
					return err
				}

				return printJSON(command, job)
			})
		},
	}
}

func newJobsCommand() *cli.Command {
	return &cli.Command{
		Name:  "jobs",
		Usage: "Inspect and process scheduled jobs",
		Commands: []*cli.Command{
			{
				Name:  "process",
				Usage: "Claim and run one batch of due jobs",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "batch-size", Value: workflow.DefaultJobBatchSize},
					&cli.DurationFlag{Name: "retry-interval", Value: workflow.DefaultJobRetryInterval},
				},
				Action: func(ctx context.Context, command *cli.Command) error {
					return withRuntime(ctx, command, func(rt *cmd.Runtime) error {
						queue := workflow.NewJobQueue(rt.Logger, rt.Workflows, rt.Persistence.JobRepository(), rt.Executor,
							workflow.WithBatchSize(command.Int("batch-size")),
							workflow.WithRetryInterval(command.Duration("retry-interval")),
						)

						processed, err := queue.ProcessPending(ctx)
						if err != nil {
							return err
						}

						fmt.Fprintf(command.Root().Writer, "processed %d job(s)\n", processed)

						return nil
					})
				},
			},
			{
				Name:  "list",
				Usage: "List jobs",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "status", Usage: "pending, running, completed or failed"},
				},
				Action: func(ctx context.Context, command *cli.Command) error {
					return withRuntime(ctx, command, func(rt *cmd.Runtime) error {
						jobs, err := rt.Persistence.JobRepository().List(ctx, models.JobStatus(command.String("status")))
						if err != nil {
							return err
						}

						return printJSON(command, jobs)
					})
				},
			},
		},
	}
}

func readWorkflowFile(path string) ([]*models.Workflow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	workflows, err := decodeWorkflows(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return workflows, nil
}
