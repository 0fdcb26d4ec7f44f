package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/nomis52/taskflow/buildinfo"
	"github.com/nomis52/taskflow/config"
	"github.com/nomis52/taskflow/logging"
	"github.com/nomis52/taskflow/metrics"
	"github.com/nomis52/taskflow/workflow"
	"github.com/spf13/cobra"
)

const maxDetailLen = 60

type runFlags struct {
	output    string
	workflows []string
}

func newRunCmd(global *globalFlags) *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run [file...]",
		Short: "Run workflows once and print their results",
		Long: `Run loads the workflow definition files and runs every workflow they
define, one after another. A failed workflow does not stop the ones after it.

Files default to the workflows listed in the config. When monitoring has a
victoriametrics_url, run metrics are pushed once the run finishes.

Exits non-zero if any workflow did not complete.`,
		Example: `  # Run every workflow in a file
  taskflow run etl.yaml

  # Run one workflow from the configured files, printing JSON
  taskflow run -c /etc/taskflow/config.yaml -w etl -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflows(cmd, global, flags, args)
		},
	}

	cmd.Flags().StringVarP(&flags.output, "output", "o", "text", "output format (text, json)")
	cmd.Flags().StringSliceVarP(&flags.workflows, "workflow", "w", nil, "only run the named workflows, in the given order")
	return cmd
}

func runWorkflows(cmd *cobra.Command, global *globalFlags, flags *runFlags, args []string) error {
	if flags.output != "text" && flags.output != "json" {
		return fmt.Errorf("invalid output format %q: must be text or json", flags.output)
	}

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

	props := buildinfo.Get()
	logger.Info("taskflow started",
		"version", props.Version,
		"git_commit", props.GitCommit,
		"config_path", global.configPath,
	)

	var wfOpts []workflow.Option
	var registry *metrics.PushRegistry
	if cfg.Monitoring.VictoriaMetricsURL != "" {
		registry = newPushRegistry(&cfg)
		m, err := workflow.NewMetrics(registry)
		if err != nil {
			return fmt.Errorf("registering workflow metrics: %w", err)
		}
		wfOpts = append(wfOpts, workflow.WithMetrics(m))
	}

	loaded, err := newLoader(&cfg, logger, wfOpts...).Load(files...)
	if err != nil {
		return err
	}
	runners, err := selectWorkflows(loaded, flags.workflows)
	if err != nil {
		return err
	}

	composite := workflow.Compose(runners...)
	result, runErr := composite.Run(cmd.Context())

	if registry != nil {
		pushMetrics(cmd.Context(), registry, &cfg, logger)
	}

	if err := printResults(cmd.OutOrStdout(), flags.output, composite.Results()); err != nil {
		return err
	}

	if runErr != nil {
		return runErr
	}
	if result.Status != workflow.StatusCompleted {
		if result.Err != nil {
			return result.Err
		}
		return fmt.Errorf("run %s", result.Status)
	}
	return nil
}

// selectWorkflows returns the named workflows in the requested order, or
// every loaded workflow when names is empty.
func selectWorkflows(loaded []*workflow.Workflow, names []string) ([]workflow.Runner, error) {
	if len(loaded) == 0 {
		return nil, errors.New("no workflows defined")
	}

	byName := make(map[string]*workflow.Workflow, len(loaded))
	var all []string
	for _, wf := range loaded {
		byName[wf.Name()] = wf
		all = append(all, wf.Name())
	}
	if len(names) == 0 {
		names = all
	}

	runners := make([]workflow.Runner, 0, len(names))
	for i, name := range names {
		wf, ok := byName[name]
		if !ok {
			sort.Strings(all)
			return nil, fmt.Errorf("unknown workflow %q (available: %s)", name, strings.Join(all, ", "))
		}
		if slices.Contains(names[:i], name) {
			return nil, fmt.Errorf("duplicate workflow %q", name)
		}
		runners = append(runners, wf)
	}
	return runners, nil
}

func newPushRegistry(cfg *config.Config) *metrics.PushRegistry {
	instance := cfg.Monitoring.Instance
	if instance == "" {
		instance, _ = os.Hostname()
	}
	return metrics.NewPushRegistry(metrics.PushConfig{
		URL:      cfg.Monitoring.VictoriaMetricsURL,
		Prefix:   cfg.Monitoring.MetricsPrefix,
		Job:      cfg.Monitoring.JobName,
		Instance: instance,
		Timeout:  cfg.Monitoring.PushTimeout,
	})
}

// pushMetrics flushes the registry. A failed push is logged but does not
// fail the run.
func pushMetrics(ctx context.Context, registry *metrics.PushRegistry, cfg *config.Config, logger *logging.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Monitoring.PushTimeout)
	defer cancel()

	if err := registry.Flush(ctx); err != nil {
		logger.Warn("failed to push metrics", "url", cfg.Monitoring.VictoriaMetricsURL, "error", err)
		return
	}
	logger.Debug("pushed metrics", "series", registry.Len())
}

func printResults(w io.Writer, format string, results []*workflow.WorkflowResult) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if results == nil {
			results = []*workflow.WorkflowResult{}
		}
		return enc.Encode(results)
	}

	for i, res := range results {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "workflow %s: %s in %s\n", res.Name, res.Status, res.Duration().Round(time.Millisecond))

		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "TASK\tSTATE\tATTEMPTS\tDURATION\tDETAIL")
		for _, name := range taskOrder(res) {
			tr := res.Tasks[name]
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", name, tr.State, tr.Attempts, tr.Duration().Round(time.Millisecond), detail(tr))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		if res.Err != nil {
			fmt.Fprintf(w, "error: %v\n", res.Err)
		}
	}
	return nil
}

// taskOrder lists tasks in the order they started; tasks that never started
// come last, by name.
func taskOrder(res *workflow.WorkflowResult) []string {
	names := make([]string, 0, len(res.Tasks))
	for name := range res.Tasks {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := res.Tasks[names[i]].StartTime, res.Tasks[names[j]].StartTime
		switch {
		case a.IsZero() != b.IsZero():
			return b.IsZero()
		case !a.Equal(b):
			return a.Before(b)
		default:
			return names[i] < names[j]
		}
	})
	return names
}

func detail(tr *workflow.TaskResult) string {
	var s string
	switch tr.State {
	case workflow.Succeeded:
		if tr.Output != nil {
			s = fmt.Sprint(tr.Output)
		}
	case workflow.Failed:
		var execErr *workflow.TaskExecutionError
		if errors.As(tr.Error, &execErr) {
			s = execErr.Err.Error()
		} else if tr.Error != nil {
			s = tr.Error.Error()
		}
	case workflow.Skipped:
		s = tr.SkipReason
	}
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > maxDetailLen {
		s = s[:maxDetailLen-3] + "..."
	}
	return s
}
