package server

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/nomis52/taskflow/config"
	"github.com/nomis52/taskflow/definition"
	"github.com/nomis52/taskflow/workflow"
)

// catalog holds the workflow definitions loaded from the config's files and
// builds a fresh workflow from one on request.
type catalog struct {
	defs       map[string]*definition.Definition
	names      []string
	loaderOpts []definition.LoaderOption
}

// loadCatalog reads every definition file listed in cfg and checks that each
// workflow builds. opts are applied to every workflow built from the catalog.
func loadCatalog(cfg *config.Config, logger *slog.Logger, opts ...workflow.Option) (*catalog, error) {
	c := &catalog{
		defs: make(map[string]*definition.Definition),
		loaderOpts: []definition.LoaderOption{
			definition.WithLogger(logger),
			definition.WithDefaultRetry(cfg.DefaultRetry()),
			definition.WithWorkflowOptions(append(cfg.WorkflowOptions(), opts...)...),
		},
	}

	for _, path := range cfg.Workflows {
		defs, err := definition.ReadFile(path)
		if err != nil {
			return nil, err
		}
		for _, def := range defs {
			if prev, dup := c.defs[def.Name]; dup {
				return nil, fmt.Errorf("workflow %q defined in both %s and %s", def.Name, prev.Source, path)
			}
			if _, err := c.build(def); err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			c.defs[def.Name] = def
			c.names = append(c.names, def.Name)
		}
	}
	sort.Strings(c.names)

	logger.Info("workflows loaded", "workflows", c.names, "files", len(cfg.Workflows))
	return c, nil
}

// Workflows returns the workflow names, sorted.
func (c *catalog) Workflows() []string {
	return append([]string(nil), c.names...)
}

// Build returns a new instance of the named workflow with opts applied after
// the catalog's own options.
func (c *catalog) Build(name string, opts ...workflow.Option) (workflow.Runner, error) {
	def, ok := c.defs[name]
	if !ok {
		return nil, fmt.Errorf("unknown workflow %q", name)
	}
	return c.build(def, opts...)
}

func (c *catalog) build(def *definition.Definition, opts ...workflow.Option) (*workflow.Workflow, error) {
	loaderOpts := append(append([]definition.LoaderOption(nil), c.loaderOpts...), definition.WithWorkflowOptions(opts...))
	return definition.NewLoader(loaderOpts...).Build(def)
}
