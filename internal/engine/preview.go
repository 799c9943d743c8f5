package engine

import (
	"context"
	"errors"
	"time"

	"github.com/specialistvlad/esxigrid/internal/config"
	"github.com/specialistvlad/esxigrid/internal/ctxlog"
	"github.com/specialistvlad/esxigrid/internal/provider"
	"github.com/specialistvlad/esxigrid/internal/state"
)

// errUnknownUntilApply rejects the outputs of resources a preview would
// change. Dependents of such resources report Unknown.
var errUnknownUntilApply = errors.New("unknown until apply")

// Preview reports the action every resource would take without making any
// call that changes the host. Diff and lookups are still sent to the
// provider, and state is left untouched.
func (e *Engine) Preview(ctx context.Context, model *config.Model) (*Result, error) {
	return e.execute(ctx, "preview", model, true)
}

type previewRunner struct {
	engine *Engine
	plan   *plan
}

func (r *previewRunner) skip(id string, cause error) *Outcome {
	n := r.plan.nodes[id]
	if n.outputs != nil {
		_ = n.outputs.Reject(cause)
	}
	return &Outcome{Name: id, Kind: n.kindType(), Action: plannedAction(n), Status: StatusSkipped, Err: cause}
}

func (r *previewRunner) run(ctx context.Context, id string) *Outcome {
	n := r.plan.nodes[id]
	ctx, _ = ctxlog.With(ctx, "resource", n.name, "kind", n.kindType())
	start := time.Now()
	o := &Outcome{Name: n.name, Kind: n.kindType(), Action: plannedAction(n), Status: StatusPlanned}

	var (
		known bool
		err   error
	)
	switch {
	case n.removed():
		o.Identity = n.prior.Identity
	case n.kind.Lookup:
		err = r.engine.lookup(ctx, r.plan, n, o)
		known = err == nil
	default:
		known, err = r.engine.decide(ctx, r.plan, n, o)
	}

	if errors.Is(err, errUnknownUntilApply) {
		o.Unknown = true
		err = nil
	}
	o = finish(ctx, o, start, err)

	if n.outputs != nil {
		switch {
		case known && o.Status == StatusPlanned:
			_ = n.outputs.Resolve(realized{identity: o.Identity, outputs: o.Outputs})
		case o.Status == StatusPlanned:
			_ = n.outputs.Reject(errUnknownUntilApply)
		default:
			_ = n.outputs.Reject(o.Err)
		}
	}
	return o
}

// decide picks a managed resource's action. It reports whether the
// resource's outputs are already known, which is only the case when it
// would not change.
func (e *Engine) decide(ctx context.Context, p *plan, n *node, o *Outcome) (bool, error) {
	prior := n.prior
	inputs, err := p.resolveInputs(ctx, n)
	if err != nil {
		return false, err
	}
	switch {
	case prior == nil && n.resource.Lifecycle.ImportID != "":
		o.Action = ActionImport
		o.Identity = n.resource.Lifecycle.ImportID
		return false, nil
	case prior == nil || prior.Status == state.StatusCreating || prior.Identity == "":
		o.Action = ActionCreate
		return false, nil
	case prior.Kind != n.kind.Type:
		o.Action = ActionReplace
		o.Identity = prior.Identity
		return false, nil
	}

	o.Identity = prior.Identity
	if prior.InputsHash == inputs.Hash() {
		o.Action = ActionNoop
		o.Outputs = prior.Outputs
		return true, nil
	}

	var diff provider.Diff
	err = e.call(ctx, n.name, provider.OpDiff, 0, func(ctx context.Context) error {
		diff, err = e.provider.Diff(ctx, n.kind.Type, prior.Identity, prior.Inputs, inputs)
		return err
	})
	if err != nil {
		return false, err
	}
	switch diff.Result {
	case provider.NoChange:
		o.Action = ActionNoop
		o.Outputs = prior.Outputs
		return true, nil
	case provider.RequiresReplacement:
		o.Action = ActionReplace
		o.ReplaceKeys = diff.ReplaceKeys
	default:
		o.Action = ActionUpdate
	}
	return false, nil
}
