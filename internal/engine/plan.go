package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/specialistvlad/esxigrid/internal/config"
	"github.com/specialistvlad/esxigrid/internal/future"
	"github.com/specialistvlad/esxigrid/internal/graph"
	"github.com/specialistvlad/esxigrid/internal/property"
	"github.com/specialistvlad/esxigrid/internal/schema"
	"github.com/specialistvlad/esxigrid/internal/state"
)

// realized is what a finished resource publishes to its dependents.
type realized struct {
	identity string
	outputs  property.Bag
}

// node is one vertex of a run: a declared resource or lookup, or a recorded
// resource that left the configuration and must be deleted.
type node struct {
	name string
	// resource is nil for deletes of removed resources.
	resource *config.Resource
	kind     *schema.Kind
	prior    *state.Record
	// static holds the inputs known before dispatch, with the auto-assigned
	// name filled in and reference-valued inputs left as references.
	static property.Bag
	// deps are the logical names this resource depends on, sorted.
	deps    []string
	outputs *future.Future[realized]
}

func (n *node) removed() bool { return n.resource == nil }

func (n *node) kindType() string {
	if n.kind != nil {
		return n.kind.Type
	}
	return n.prior.Kind
}

// plan is a validated run: the graph and its nodes.
type plan struct {
	graph *graph.Graph
	nodes map[string]*node
}

var errUnresolved = errors.New("reference cannot be resolved before apply")

// prepare validates model against the kind table and prior state and builds
// the run graph. Every error it returns is a *ConfigurationError, and it
// makes no provider calls.
func (e *Engine) prepare(ctx context.Context, model *config.Model, records []*state.Record) (*plan, error) {
	if err := model.CheckNames(); err != nil {
		var dup *config.DuplicateNameError
		if errors.As(err, &dup) {
			return nil, &ConfigurationError{Resource: dup.Name, Err: err}
		}
		return nil, &ConfigurationError{Err: err}
	}

	prior := make(map[string]*state.Record, len(records))
	for _, rec := range records {
		prior[rec.Name] = rec
	}

	p := &plan{graph: graph.New(), nodes: make(map[string]*node)}
	for _, r := range model.Resources {
		kind, err := e.kindFor(r)
		if err != nil {
			return nil, &ConfigurationError{Resource: r.Name, Err: err}
		}
		n := &node{
			name:     r.Name,
			resource: r,
			kind:     kind,
			outputs:  future.New[realized](),
		}
		switch rec := prior[r.Name]; {
		case r.Mode == config.ManagedMode:
			n.prior = rec
		case rec != nil:
			return nil, &ConfigurationError{Resource: r.Name, Err: &RecordedNameError{Name: r.Name, Kind: rec.Kind}}
		}
		p.nodes[r.Name] = n
		p.graph.AddNode(r.Name)
		if err := p.graph.SetLabel(r.Name, kind.Type); err != nil {
			return nil, &ConfigurationError{Resource: r.Name, Err: err}
		}
	}

	for _, r := range model.Resources {
		n := p.nodes[r.Name]
		deps, err := p.link(r)
		if err != nil {
			return nil, &ConfigurationError{Resource: r.Name, Err: err}
		}
		n.deps = deps

		static, err := staticInputs(ctx, n)
		if err != nil {
			return nil, &ConfigurationError{Resource: r.Name, Err: err}
		}
		n.static = static
		if err := n.kind.Validate(n.kind.ApplyDefaults(static)); err != nil {
			return nil, &ConfigurationError{Resource: r.Name, Err: err}
		}
	}

	if err := p.addRemoved(records); err != nil {
		return nil, &ConfigurationError{Err: err}
	}
	if err := p.graph.DetectCycles(); err != nil {
		return nil, &ConfigurationError{Err: err}
	}
	return p, nil
}

func (e *Engine) kindFor(r *config.Resource) (*schema.Kind, error) {
	var (
		kind *schema.Kind
		ok   bool
	)
	if r.Mode == config.DataMode {
		kind, ok = e.table.Lookup(r.Type)
	} else {
		kind, ok = e.table.Resource(r.Type)
	}
	if !ok {
		return nil, &UnknownKindError{Type: r.Type, Mode: r.Mode.String()}
	}
	return kind, nil
}

// link adds the edges implied by r's references and depends_on and returns
// the sorted dependency names.
func (p *plan) link(r *config.Resource) ([]string, error) {
	seen := make(map[string]struct{})
	for _, ref := range r.References() {
		target, ok := p.nodes[ref.Resource]
		if !ok {
			return nil, &UnknownReferenceError{Reference: ref.String(), Reason: fmt.Sprintf("no resource named %q is declared", ref.Resource)}
		}
		if !target.kind.HasOutput(ref.Output) {
			return nil, &UnknownReferenceError{Reference: ref.String(), Reason: fmt.Sprintf("%s has no output %q", target.kind.Type, ref.Output)}
		}
		seen[ref.Resource] = struct{}{}
	}
	for _, dep := range r.DependsOn {
		if _, ok := p.nodes[dep]; !ok {
			return nil, &UnknownReferenceError{Reference: dep, Reason: "depends_on target is not declared"}
		}
		seen[dep] = struct{}{}
	}

	deps := make([]string, 0, len(seen))
	for dep := range seen {
		deps = append(deps, dep)
	}
	sort.Strings(deps)
	for _, dep := range deps {
		if err := p.graph.AddEdge(dep, r.Name); err != nil {
			return nil, err
		}
	}
	return deps, nil
}

// staticInputs evaluates every reference-free input and stands in a
// reference for the rest, then assigns an auto-name if one is needed.
func staticInputs(ctx context.Context, n *node) (property.Bag, error) {
	unresolved := config.ScopeFunc(func(context.Context, property.Reference) (property.Value, error) {
		return property.Null(), errUnresolved
	})
	bag := make(property.Bag, len(n.resource.Inputs))
	for name, expr := range n.resource.Inputs {
		if refs := expr.References(); len(refs) > 0 {
			bag[name] = property.RefValue(refs[0])
			continue
		}
		v, err := expr.Evaluate(ctx, unresolved)
		if err != nil {
			return nil, &config.EvalError{Input: name, Err: err}
		}
		bag[name] = v
	}
	if n.kind.Lookup {
		return bag, nil
	}
	var priorInputs property.Bag
	if n.prior != nil {
		priorInputs = n.prior.Inputs
	}
	return n.kind.AssignName(n.name, bag, priorInputs)
}

// addRemoved adds a delete node for every record whose resource left the
// configuration. A removed resource is deleted after the removed resources
// that depended on it, and after every remaining resource that used to
// depend on it has been applied.
func (p *plan) addRemoved(records []*state.Record) error {
	var removed []*state.Record
	for _, rec := range records {
		if _, ok := p.nodes[rec.Name]; ok {
			continue
		}
		removed = append(removed, rec)
		p.nodes[rec.Name] = &node{name: rec.Name, prior: rec}
		p.graph.AddNode(rec.Name)
		if err := p.graph.SetLabel(rec.Name, rec.Kind); err != nil {
			return err
		}
	}
	if len(removed) == 0 {
		return nil
	}

	isRemoved := make(map[string]bool, len(removed))
	for _, rec := range removed {
		isRemoved[rec.Name] = true
	}
	for _, rec := range records {
		for _, dep := range rec.Dependencies {
			if !isRemoved[dep] {
				continue
			}
			if err := p.graph.AddEdge(rec.Name, dep); err != nil {
				return err
			}
		}
	}
	return nil
}
