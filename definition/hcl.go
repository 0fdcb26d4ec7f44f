package definition

import (
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/nomis52/taskflow/workflow"
	"github.com/zclconf/go-cty/cty"
)

// hclRoot is the top level of an HCL definition file.
type hclRoot struct {
	Workflows []*hclWorkflow `hcl:"workflow,block"`
}

type hclWorkflow struct {
	Name        string     `hcl:"name,label"`
	Description string     `hcl:"description,optional"`
	Params      *hclParams `hcl:"params,block"`
	Tasks       []*hclTask `hcl:"task,block"`
}

type hclTask struct {
	Name      string     `hcl:"name,label"`
	Action    string     `hcl:"action"`
	DependsOn []string   `hcl:"depends_on,optional"`
	Timeout   string     `hcl:"timeout,optional"`
	Params    *hclParams `hcl:"params,block"`
	Retry     *hclRetry  `hcl:"retry,block"`
}

// hclParams holds a params block; its attributes are evaluated one by one so
// references can be told apart from literals.
type hclParams struct {
	Body hcl.Body `hcl:",remain"`
}

type hclRetry struct {
	Count    int    `hcl:"count,optional"`
	Delay    string `hcl:"delay,optional"`
	Backoff  string `hcl:"backoff,optional"`
	MaxDelay string `hcl:"max_delay,optional"`
}

// ParseHCL parses the workflow blocks in an HCL document. filename is used
// in diagnostics only.
func ParseHCL(data []byte, filename string) ([]*Definition, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL: %w", diags)
	}

	var root hclRoot
	if diags := gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %w", diags)
	}
	if len(root.Workflows) == 0 {
		return nil, errors.New("no workflow defined")
	}

	defs := make([]*Definition, 0, len(root.Workflows))
	for _, w := range root.Workflows {
		def, err := w.definition()
		if err != nil {
			return nil, fmt.Errorf("workflow %q: %w", w.Name, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func (w *hclWorkflow) definition() (*Definition, error) {
	def := &Definition{
		Name:        w.Name,
		Description: w.Description,
	}

	if w.Params != nil {
		params, err := w.Params.decode()
		if err != nil {
			return nil, fmt.Errorf("params: %w", err)
		}
		def.Params = make(map[string]any, len(params))
		for k, p := range params {
			if p.IsRef() {
				return nil, fmt.Errorf("params: %q: workflow parameters cannot reference tasks", k)
			}
			def.Params[k] = p.Value()
		}
	}

	for _, t := range w.Tasks {
		td := TaskDefinition{
			Name:      t.Name,
			Action:    t.Action,
			DependsOn: t.DependsOn,
			Params:    map[string]workflow.Param{},
		}

		if t.Params != nil {
			params, err := t.Params.decode()
			if err != nil {
				return nil, fmt.Errorf("task %q: params: %w", t.Name, err)
			}
			td.Params = params
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

func (p *hclParams) decode() (map[string]workflow.Param, error) {
	attrs, diags := p.Body.JustAttributes()
	if diags.HasErrors() {
		return nil, diags
	}

	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)

	params := make(map[string]workflow.Param, len(attrs))
	for _, name := range names {
		param, err := decodeParam(attrs[name].Expr)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", name, err)
		}
		params[name] = param
	}
	return params, nil
}

// decodeParam returns a reference for the traversal tasks.<name>.output and
// evaluates anything else as a literal without variables.
func decodeParam(expr hcl.Expression) (workflow.Param, error) {
	if traversal, diags := hcl.AbsTraversalForExpr(expr); !diags.HasErrors() {
		task, ok := taskOutputRef(traversal)
		if !ok {
			return workflow.Param{}, fmt.Errorf("unsupported reference %s, expected tasks.<name>.output", expr.Range())
		}
		return workflow.Ref(task), nil
	}

	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return workflow.Param{}, diags
	}
	native, err := ctyToNative(val)
	if err != nil {
		return workflow.Param{}, err
	}
	return workflow.Literal(native), nil
}

func taskOutputRef(t hcl.Traversal) (string, bool) {
	if len(t) != 3 || t.RootName() != "tasks" {
		return "", false
	}
	name, ok := t[1].(hcl.TraverseAttr)
	if !ok {
		return "", false
	}
	output, ok := t[2].(hcl.TraverseAttr)
	if !ok || output.Name != "output" {
		return "", false
	}
	return name.Name, true
}

// ctyToNative converts a cty value into plain Go values: string, int for
// whole numbers, float64, bool, []any and map[string]any.
func ctyToNative(v cty.Value) (any, error) {
	if v.IsNull() || !v.IsKnown() {
		return nil, nil
	}

	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString(), nil

	case ty == cty.Number:
		bf := v.AsBigFloat()
		if bf.IsInt() {
			if i, acc := bf.Int64(); acc == big.Exact {
				return int(i), nil
			}
		}
		f, _ := bf.Float64()
		return f, nil

	case ty == cty.Bool:
		return v.True(), nil

	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		items := make([]any, 0, v.LengthInt())
		it := v.ElementIterator()
		for it.Next() {
			_, elem := it.Element()
			native, err := ctyToNative(elem)
			if err != nil {
				return nil, err
			}
			items = append(items, native)
		}
		return items, nil

	case ty.IsObjectType() || ty.IsMapType():
		m := make(map[string]any)
		it := v.ElementIterator()
		for it.Next() {
			key, elem := it.Element()
			native, err := ctyToNative(elem)
			if err != nil {
				return nil, fmt.Errorf("in attribute %q: %w", key.AsString(), err)
			}
			m[key.AsString()] = native
		}
		return m, nil

	default:
		return nil, fmt.Errorf("unsupported value type %s", ty.FriendlyName())
	}
}
