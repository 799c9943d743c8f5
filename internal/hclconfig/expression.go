package hclconfig

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/specialistvlad/esxigrid/internal/config"
	"github.com/specialistvlad/esxigrid/internal/property"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// functions are the callable helpers available to every expression.
var functions = map[string]function.Function{
	"coalesce":   stdlib.CoalesceFunc,
	"concat":     stdlib.ConcatFunc,
	"contains":   stdlib.ContainsFunc,
	"format":     stdlib.FormatFunc,
	"formatlist": stdlib.FormatListFunc,
	"join":       stdlib.JoinFunc,
	"jsonencode": stdlib.JSONEncodeFunc,
	"length":     stdlib.LengthFunc,
	"lookup":     stdlib.LookupFunc,
	"lower":      stdlib.LowerFunc,
	"max":        stdlib.MaxFunc,
	"merge":      stdlib.MergeFunc,
	"min":        stdlib.MinFunc,
	"replace":    stdlib.ReplaceFunc,
	"split":      stdlib.SplitFunc,
	"substr":     stdlib.SubstrFunc,
	"trimspace":  stdlib.TrimSpaceFunc,
	"upper":      stdlib.UpperFunc,
}

// target is one output read by an expression.
type target struct {
	mode   config.Mode
	typ    string
	name   string
	output string
}

func (t target) ref() property.Reference {
	return property.Reference{Resource: t.name, Output: t.output}
}

// expression adapts an HCL expression to config.Expression.
type expression struct {
	expr    hcl.Expression
	targets []target
}

func newExpression(expr hcl.Expression) (*expression, error) {
	e := &expression{expr: expr}
	seen := make(map[target]bool)
	for _, trav := range expr.Variables() {
		t, err := parseTraversal(trav)
		if err != nil {
			return nil, err
		}
		if !seen[t] {
			seen[t] = true
			e.targets = append(e.targets, t)
		}
	}
	return e, nil
}

// parseTraversal reads `<root>.<type>.<name>.<output>[...]`. Anything after
// the output is applied by HCL itself during evaluation.
func parseTraversal(trav hcl.Traversal) (target, error) {
	var t target
	switch root := trav.RootName(); root {
	case "resource":
		t.mode = config.ManagedMode
	case "data":
		t.mode = config.DataMode
	default:
		return t, fmt.Errorf("unsupported reference root %q: use resource.<type>.<name>.<output> or data.<type>.<name>.<output>", root)
	}

	parts := make([]string, 0, 3)
	for _, step := range trav[1:] {
		attr, ok := step.(hcl.TraverseAttr)
		if !ok || len(parts) == 3 {
			break
		}
		parts = append(parts, attr.Name)
	}
	if len(parts) < 3 {
		return t, fmt.Errorf("reference %s must name a type, a resource and an output", formatTraversal(trav))
	}
	t.typ, t.name, t.output = parts[0], parts[1], parts[2]
	return t, nil
}

// References implements config.Expression.
func (e *expression) References() []property.Reference {
	refs := make([]property.Reference, 0, len(e.targets))
	for _, t := range e.targets {
		refs = append(refs, t.ref())
	}
	return refs
}

// Evaluate implements config.Expression.
func (e *expression) Evaluate(ctx context.Context, scope config.Scope) (property.Value, error) {
	evalCtx, err := e.buildEvalContext(ctx, scope)
	if err != nil {
		return property.Value{}, err
	}
	val, diags := e.expr.Value(evalCtx)
	if diags.HasErrors() {
		return property.Value{}, diags
	}
	return property.FromCty(val)
}

// buildEvalContext exposes exactly the outputs this expression reads.
func (e *expression) buildEvalContext(ctx context.Context, scope config.Scope) (*hcl.EvalContext, error) {
	// root -> type -> name -> output -> value
	tree := map[string]map[string]map[string]map[string]cty.Value{}
	for _, t := range e.targets {
		v, err := scope.Output(ctx, t.ref())
		if err != nil {
			return nil, err
		}
		cv, err := property.ToCty(v)
		if err != nil {
			return nil, fmt.Errorf("output %s: %w", t.ref(), err)
		}
		root := t.mode.String()
		if tree[root] == nil {
			tree[root] = map[string]map[string]map[string]cty.Value{}
		}
		if tree[root][t.typ] == nil {
			tree[root][t.typ] = map[string]map[string]cty.Value{}
		}
		if tree[root][t.typ][t.name] == nil {
			tree[root][t.typ][t.name] = map[string]cty.Value{}
		}
		tree[root][t.typ][t.name][t.output] = cv
	}

	vars := make(map[string]cty.Value, len(tree))
	for root, types := range tree {
		typeVals := make(map[string]cty.Value, len(types))
		for typ, names := range types {
			nameVals := make(map[string]cty.Value, len(names))
			for name, outputs := range names {
				nameVals[name] = cty.ObjectVal(outputs)
			}
			typeVals[typ] = cty.ObjectVal(nameVals)
		}
		vars[root] = cty.ObjectVal(typeVals)
	}
	return &hcl.EvalContext{Variables: vars, Functions: functions}, nil
}

// formatTraversal converts an hcl.Traversal to a human-readable string.
func formatTraversal(t hcl.Traversal) string {
	s := t.RootName()
	for _, part := range t[1:] {
		switch p := part.(type) {
		case hcl.TraverseAttr:
			s += "." + p.Name
		case hcl.TraverseIndex:
			s += "[...]"
		}
	}
	return s
}
