package main

import (
	"errors"
	"fmt"

	"github.com/nomis52/taskflow/config"
	"github.com/nomis52/taskflow/definition"
	"github.com/nomis52/taskflow/logging"
	"github.com/nomis52/taskflow/workflow"
	"github.com/spf13/cobra"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:   "taskflow",
		Short: "Run dependency-ordered workflows",
		Long: `taskflow executes workflows of tasks with declared dependencies.

Independent tasks run concurrently, failed tasks are retried according to
their retry policy, and outputs of finished tasks feed the parameters of the
tasks that depend on them. Workflows are defined in YAML or HCL files.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "path to config file")

	cmd.AddCommand(
		newRunCmd(flags),
		newValidateCmd(flags),
		newServeCmd(flags),
		newVersionCmd(),
	)
	return cmd
}

// loadConfig reads the config file, or returns the defaults when path is empty.
func loadConfig(path string) (config.Config, error) {
	if path == "" {
		var cfg config.Config
		cfg.SetDefaults()
		return cfg, cfg.Validate()
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// definitionFiles returns the files named on the command line, falling back
// to the ones listed in the config.
func definitionFiles(args []string, cfg *config.Config) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	if len(cfg.Workflows) > 0 {
		return cfg.Workflows, nil
	}
	return nil, errors.New("no workflow files given and none listed in the config")
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// newLoader returns a definition loader applying the engine settings of cfg.
func newLoader(cfg *config.Config, logger *logging.Logger, opts ...workflow.Option) *definition.Loader {
	wfOpts := append(cfg.WorkflowOptions(), workflow.WithLogger(logger.Logger))
	return definition.NewLoader(
		definition.WithLogger(logger.Logger),
		definition.WithDefaultRetry(cfg.DefaultRetry()),
		definition.WithWorkflowOptions(append(wfOpts, opts...)...),
	)
}
