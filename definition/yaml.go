package definition

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/nomis52/taskflow/workflow"
	"gopkg.in/yaml.v3"
)

type yamlWorkflow struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Params      map[string]any `yaml:"params"`
	Tasks       []yamlTask     `yaml:"tasks"`
}

type yamlTask struct {
	Name      string         `yaml:"name"`
	Action    string         `yaml:"action"`
	Params    map[string]any `yaml:"params"`
	DependsOn []string       `yaml:"depends_on"`
	Retry     *yamlRetry     `yaml:"retry"`
	Timeout   string         `yaml:"timeout"`
}

type yamlRetry struct {
	Count    int    `yaml:"count"`
	Delay    string `yaml:"delay"`
	Backoff  string `yaml:"backoff"`
	MaxDelay string `yaml:"max_delay"`
}

// ParseYAML parses a YAML stream holding one workflow per document.
// Unknown keys are rejected.
func ParseYAML(data []byte) ([]*Definition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var defs []*Definition
	for i := 0; ; i++ {
		var doc yamlWorkflow
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}

		def, err := doc.definition()
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		defs = append(defs, def)
	}

	if len(defs) == 0 {
		return nil, errors.New("no workflow defined")
	}
	return defs, nil
}

func (w yamlWorkflow) definition() (*Definition, error) {
	def := &Definition{
		Name:        w.Name,
		Description: w.Description,
		Params:      w.Params,
	}

	for _, t := range w.Tasks {
		td := TaskDefinition{
			Name:      t.Name,
			Action:    t.Action,
			DependsOn: t.DependsOn,
			Params:    make(map[string]workflow.Param, len(t.Params)),
		}
		for k, v := range t.Params {
			td.Params[k] = yamlParam(v)
		}

		if t.Retry != nil {
			retry, err := retrySettings(*t.Retry).policy()
			if err != nil {
				return nil, fmt.Errorf("task %q: retry: %w", t.Name, err)
			}
			td.Retry = retry
		}

		timeout, err := parseDuration(t.Timeout)
		if err != nil {
			return nil, fmt.Errorf("task %q: timeout: %w", t.Name, err)
		}
		td.Timeout = timeout

		def.Tasks = append(def.Tasks, td)
	}
	return def, nil
}

// yamlParam treats a top-level string of the exact reference form as a
// reference; everything else, including strings nested in lists or maps, is
// a literal.
func yamlParam(v any) workflow.Param {
	if s, ok := v.(string); ok {
		if task, ok := parseRef(s); ok {
			return workflow.Ref(task)
		}
	}
	return workflow.Literal(v)
}
