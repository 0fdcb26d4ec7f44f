package main

import (
	"fmt"
	"strings"

	"github.com/nomis52/taskflow/workflow"
	"github.com/spf13/cobra"
)

func newValidateCmd(global *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file...]",
		Short: "Check workflow definitions without running them",
		Long: `Validate parses the workflow definition files, resolves every action and
builds each dependency graph. It reports unknown actions, missing
dependencies, cycles and references to tasks that are not dependencies.

With --config the config file is validated too, and files default to the
workflows it lists.`,
		Example: `  taskflow validate etl.yaml report.hcl
  taskflow validate -c /etc/taskflow/config.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(global.configPath)
			if err != nil {
				return err
			}
			files, err := definitionFiles(args, &cfg)
			if err != nil {
				return err
			}
			logger, err := newLogger(&cfg)
			if err != nil {
				return err
			}
			defer logger.Close()

			workflows, err := newLoader(&cfg, logger).Load(files...)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, wf := range workflows {
				graph, err := workflow.BuildGraph(wf.Tasks())
				if err != nil {
					return fmt.Errorf("workflow %q: %w", wf.Name(), err)
				}
				fmt.Fprintf(out, "%s: %d tasks, order %s\n", wf.Name(), graph.Len(), strings.Join(graph.TopologicalOrder(), ", "))
			}
			fmt.Fprintf(out, "%d workflow(s) valid in %d file(s)\n", len(workflows), len(files))
			return nil
		},
	}
}
