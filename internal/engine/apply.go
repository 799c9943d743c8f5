package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/specialistvlad/esxigrid/internal/config"
	"github.com/specialistvlad/esxigrid/internal/ctxlog"
	"github.com/specialistvlad/esxigrid/internal/property"
	"github.com/specialistvlad/esxigrid/internal/provider"
	"github.com/specialistvlad/esxigrid/internal/schema"
	"github.com/specialistvlad/esxigrid/internal/state"
)

// Apply drives every resource in model to its desired state and deletes
// recorded resources that model no longer declares. A configuration error
// is returned before any provider call with a nil result. Otherwise the
// result lists one outcome per resource and the error aggregates failures.
func (e *Engine) Apply(ctx context.Context, model *config.Model) (*Result, error) {
	return e.execute(ctx, "up", model, false)
}

// Destroy deletes every recorded resource, dependents first.
func (e *Engine) Destroy(ctx context.Context) (*Result, error) {
	return e.execute(ctx, "destroy", &config.Model{}, false)
}

func (e *Engine) execute(ctx context.Context, command string, model *config.Model, preview bool) (*Result, error) {
	start := time.Now()
	runID := uuid.NewString()
	ctx, logger := ctxlog.With(ctx, "runID", runID, "command", command)

	records, err := e.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading state: %w", err)
	}
	p, err := e.prepare(ctx, model, records)
	if err != nil {
		logger.Error("Configuration rejected.", "error", err)
		return nil, err
	}

	if e.onPlan != nil {
		e.onPlan(command, p.graph)
	}
	logger.Info("▶️ Run started.", "nodes", p.graph.Len(), "workers", e.workers, "preview", preview)
	var r runner = &applyRunner{engine: e, plan: p}
	if preview {
		r = &previewRunner{engine: e, plan: p}
	}
	res := &Result{
		RunID:    runID,
		Command:  command,
		Outcomes: e.schedule(ctx, p.graph, r),
		Elapsed:  time.Since(start),
	}
	e.observe(res)

	runErr := res.Err()
	if runErr != nil {
		logger.Error("Run finished with failures.", "summary", res.Summary().String(), "error", runErr)
	} else {
		logger.Info("✅ Run finished.", "summary", res.Summary().String(), "duration", res.Elapsed)
	}
	return res, runErr
}

var errDependencyPending = errors.New("dependency has not finished")

// scope resolves references through the futures of realized resources. A
// resource is dispatched only after its dependencies finish, so an
// unsettled future is never waited on.
func (p *plan) scope() config.Scope {
	return config.ScopeFunc(func(ctx context.Context, ref property.Reference) (property.Value, error) {
		n, ok := p.nodes[ref.Resource]
		if !ok || n.outputs == nil {
			return property.Null(), &UnknownReferenceError{Reference: ref.String(), Reason: "not part of this run"}
		}
		if !n.outputs.Settled() {
			return property.Null(), fmt.Errorf("%w: %s", errDependencyPending, ref.Resource)
		}
		r, err := n.outputs.Await(ctx)
		if err != nil {
			return property.Null(), err
		}
		if ref.Output == schema.IDOutput {
			return property.String(r.identity), nil
		}
		if v, ok := r.outputs[ref.Output]; ok {
			return v, nil
		}
		return property.Null(), nil
	})
}

// resolveInputs evaluates n's inputs against its realized dependencies and
// runs them through naming, defaults and validation.
func (p *plan) resolveInputs(ctx context.Context, n *node) (property.Bag, error) {
	// Dependencies are settled before n is dispatched, so run cancellation
	// must not turn a finished value into an error.
	bag, err := config.EvaluateInputs(context.WithoutCancel(ctx), n.resource.Inputs, p.scope())
	if err != nil {
		return nil, err
	}
	if !n.kind.Lookup {
		if bag, err = n.kind.AssignName(n.name, bag, n.static); err != nil {
			return nil, err
		}
	}
	bag = n.kind.ApplyDefaults(bag)
	if err := n.kind.Validate(bag); err != nil {
		return nil, err
	}
	return bag, nil
}

// call runs one provider operation. It refuses to start once ctx is done,
// and otherwise runs detached from ctx under its own timeout so a
// cancelled run never abandons a half-finished call.
func (e *Engine) call(ctx context.Context, name string, op provider.Operation, timeout time.Duration, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if timeout <= 0 {
		timeout = e.callTimeout
	}
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	err := fn(callCtx)
	if err == nil {
		return nil
	}
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w after %s: %w", provider.ErrTimeout, timeout, err)
	}
	return &ProviderError{Resource: name, Operation: op, Cause: err}
}

// put writes a record even when the run is being cancelled: the provider
// call it describes has already happened.
func (e *Engine) put(ctx context.Context, rec *state.Record) error {
	if err := e.store.Put(context.WithoutCancel(ctx), rec); err != nil {
		return fmt.Errorf("recording %q: %w", rec.Name, err)
	}
	return nil
}

// finish stamps o with err. Errors caused by run cancellation mark the
// resource skipped rather than failed.
func finish(ctx context.Context, o *Outcome, start time.Time, err error) *Outcome {
	o.Duration = time.Since(start)
	switch {
	case err == nil:
		if o.Status == "" {
			o.Status = StatusSucceeded
		}
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		o.Status = StatusSkipped
		o.Err = err
	default:
		o.Status = StatusFailed
		o.Err = err
	}
	return o
}

type applyRunner struct {
	engine *Engine
	plan   *plan
}

func (r *applyRunner) skip(id string, cause error) *Outcome {
	n := r.plan.nodes[id]
	if n.outputs != nil {
		_ = n.outputs.Reject(cause)
	}
	return &Outcome{Name: id, Kind: n.kindType(), Action: plannedAction(n), Status: StatusSkipped, Err: cause}
}

func (r *applyRunner) run(ctx context.Context, id string) *Outcome {
	n := r.plan.nodes[id]
	ctx, logger := ctxlog.With(ctx, "resource", n.name, "kind", n.kindType())
	start := time.Now()
	o := &Outcome{Name: n.name, Kind: n.kindType(), Action: plannedAction(n)}

	var err error
	switch {
	case n.removed():
		err = r.engine.deleteRemoved(ctx, n, o)
	case n.kind.Lookup:
		err = r.engine.lookup(ctx, r.plan, n, o)
	default:
		err = r.engine.reconcile(ctx, r.plan, n, o)
	}
	o = finish(ctx, o, start, err)

	if n.outputs != nil {
		if o.Status == StatusSucceeded {
			_ = n.outputs.Resolve(realized{identity: o.Identity, outputs: o.Outputs})
		} else {
			_ = n.outputs.Reject(o.Err)
		}
	}
	if err != nil {
		logger.Error("Resource failed.", "action", o.Action, "error", err)
	} else {
		logger.Debug("Resource done.", "action", o.Action, "duration", o.Duration)
	}
	return o
}

// plannedAction is the best guess at n's action before it runs.
func plannedAction(n *node) Action {
	switch {
	case n.removed():
		return ActionDelete
	case n.kind.Lookup:
		return ActionRead
	case n.prior == nil && n.resource.Lifecycle.ImportID != "":
		return ActionImport
	case n.prior == nil:
		return ActionCreate
	}
	return ActionUpdate
}

func (e *Engine) lookup(ctx context.Context, p *plan, n *node, o *Outcome) error {
	inputs, err := p.resolveInputs(ctx, n)
	if err != nil {
		return err
	}
	var outputs property.Bag
	err = e.call(ctx, n.name, provider.OpInvoke, 0, func(ctx context.Context) error {
		outputs, err = e.provider.Invoke(ctx, n.kind.Type, inputs)
		return err
	})
	if err != nil {
		return err
	}
	o.Outputs = outputs
	if id, ok := outputs[schema.IDOutput]; ok && id.Kind() == property.KindString {
		o.Identity = id.AsString()
	}
	return nil
}

// reconcile decides and performs the action for a managed resource.
func (e *Engine) reconcile(ctx context.Context, p *plan, n *node, o *Outcome) error {
	logger := ctxlog.FromContext(ctx)
	prior := n.prior

	if prior != nil && prior.Status == state.StatusRealized && prior.Deposed != "" {
		if err := e.deleteDeposed(ctx, n, prior); err != nil {
			return err
		}
	}

	inputs, err := p.resolveInputs(ctx, n)
	if err != nil {
		return fmt.Errorf("resolving inputs: %w", err)
	}
	hash := inputs.Hash()

	switch {
	case prior == nil && n.resource.Lifecycle.ImportID != "":
		o.Action = ActionImport
		return e.importResource(ctx, n, inputs, o)
	case prior == nil || prior.Status == state.StatusCreating || prior.Identity == "":
		o.Action = ActionCreate
		deposed := ""
		if prior != nil {
			deposed = prior.Deposed
			logger.Warn("Re-issuing create interrupted by an earlier run.")
		}
		return e.create(ctx, n, inputs, hash, deposed, o)
	case prior.Kind != n.kind.Type:
		o.Action = ActionReplace
		return e.replace(ctx, n, inputs, hash, o)
	case prior.InputsHash == hash:
		o.Action = ActionNoop
		o.Identity, o.Outputs = prior.Identity, prior.Outputs
		if !slices.Equal(prior.Dependencies, n.deps) {
			rec := *prior
			rec.Dependencies = n.deps
			return e.put(ctx, &rec)
		}
		return nil
	}

	var diff provider.Diff
	err = e.call(ctx, n.name, provider.OpDiff, 0, func(ctx context.Context) error {
		diff, err = e.provider.Diff(ctx, n.kind.Type, prior.Identity, prior.Inputs, inputs)
		return err
	})
	if err != nil {
		return err
	}
	logger.Debug("Provider diff.", "result", diff.Result, "changed", diff.ChangedKeys, "replace", diff.ReplaceKeys)

	switch diff.Result {
	case provider.NoChange:
		o.Action = ActionNoop
		o.Identity, o.Outputs = prior.Identity, prior.Outputs
		rec := *prior
		rec.Inputs, rec.InputsHash, rec.Dependencies = inputs, hash, n.deps
		return e.put(ctx, &rec)
	case provider.RequiresReplacement:
		o.Action = ActionReplace
		o.ReplaceKeys = diff.ReplaceKeys
		return e.replace(ctx, n, inputs, hash, o)
	}

	o.Action = ActionUpdate
	logger.Info("✏️ Updating resource.", "changed", diff.ChangedKeys)
	var outputs property.Bag
	err = e.call(ctx, n.name, provider.OpUpdate, n.resource.Lifecycle.UpdateTimeout, func(ctx context.Context) error {
		outputs, err = e.provider.Update(ctx, n.kind.Type, prior.Identity, inputs)
		return err
	})
	if err != nil {
		return err
	}
	o.Identity, o.Outputs = prior.Identity, outputs
	return e.put(ctx, &state.Record{
		Name:         n.name,
		Kind:         n.kind.Type,
		Identity:     prior.Identity,
		Inputs:       inputs,
		InputsHash:   hash,
		Outputs:      outputs,
		Dependencies: n.deps,
		Status:       state.StatusRealized,
	})
}

// create records a pending create, calls the provider and records the
// result. A record left pending by a crash makes the next run re-issue the
// create, which the provider answers idempotently by object name.
func (e *Engine) create(ctx context.Context, n *node, inputs property.Bag, hash, deposed string, o *Outcome) error {
	logger := ctxlog.FromContext(ctx)
	if err := ctx.Err(); err != nil {
		return err
	}
	rec := &state.Record{
		Name:         n.name,
		Kind:         n.kind.Type,
		Inputs:       inputs,
		InputsHash:   hash,
		Dependencies: n.deps,
		Status:       state.StatusCreating,
		Deposed:      deposed,
	}
	if err := e.put(ctx, rec); err != nil {
		return err
	}

	logger.Info("▶️ Creating resource.")
	var (
		id      string
		outputs property.Bag
		err     error
	)
	err = e.call(ctx, n.name, provider.OpCreate, n.resource.Lifecycle.CreateTimeout, func(ctx context.Context) error {
		id, outputs, err = e.provider.Create(ctx, n.kind.Type, n.name, inputs)
		return err
	})
	if err != nil {
		return err
	}

	if deposed != "" && id == deposed {
		return e.reusedByReplacement(ctx, n, id)
	}

	rec.Identity, rec.Outputs, rec.Status = id, outputs, state.StatusRealized
	o.Identity, o.Outputs = id, outputs
	if err := e.put(ctx, rec); err != nil {
		return err
	}
	logger.Info("✅ Resource created.", "identity", id)

	if rec.Deposed != "" {
		return e.deleteDeposed(ctx, n, rec)
	}
	return nil
}

// replace swaps the recorded object for a new one in the order the
// resource's lifecycle asks for.
func (e *Engine) replace(ctx context.Context, n *node, inputs property.Bag, hash string, o *Outcome) error {
	logger := ctxlog.FromContext(ctx)
	prior := n.prior

	// A deposed object is deleted as the resource's current kind, so a kind
	// change always deletes first.
	if n.resource.Lifecycle.ReplaceOrder == config.CreateBeforeDelete && prior.Kind == n.kind.Type {
		renamed, ok, err := replacementInputs(n, inputs, o.ReplaceKeys)
		if err != nil {
			return fmt.Errorf("naming replacement: %w", err)
		}
		if ok {
			logger.Info("♻️ Replacing resource, creating first.", "replace", o.ReplaceKeys)
			return e.create(ctx, n, renamed, renamed.Hash(), prior.Identity, o)
		}
		logger.Warn("Replacement keeps the object name, deleting first instead.", "replace", o.ReplaceKeys)
	}

	logger.Info("♻️ Replacing resource, deleting first.", "replace", o.ReplaceKeys)
	if err := e.delete(ctx, n.name, prior.Kind, prior.Identity, n.resource.Lifecycle.DeleteTimeout); err != nil {
		return err
	}
	return e.create(ctx, n, inputs, hash, "", o)
}

// replacementInputs returns the inputs a create-before-delete replacement
// can be created with alongside the object it replaces. Backends find
// objects by name, so the replacement needs a name of its own: an
// auto-assigned name is generated afresh, and a declared one must be
// changing. ok is false when the declared name stays the same.
func replacementInputs(n *node, inputs property.Bag, replaceKeys []string) (property.Bag, bool, error) {
	prop := "name"
	if n.kind.AutoName != nil {
		prop = n.kind.AutoName.Property
	}
	if _, named := n.kind.Input(prop); !named {
		return inputs, true, nil
	}
	if _, declared := n.resource.Inputs[prop]; !declared && n.kind.AutoName != nil {
		bag := inputs.Clone()
		delete(bag, prop)
		bag, err := n.kind.AssignName(n.name, bag, nil)
		if err != nil {
			return nil, false, err
		}
		if err := n.kind.Validate(bag); err != nil {
			return nil, false, err
		}
		return bag, true, nil
	}
	return inputs, slices.Contains(replaceKeys, prop), nil
}

// reusedByReplacement handles a create that answered with the object it was
// meant to replace. Nothing changed on the host, so the prior record is put
// back and the resource fails.
func (e *Engine) reusedByReplacement(ctx context.Context, n *node, id string) error {
	if prior := n.prior; prior != nil && prior.Status == state.StatusRealized && prior.Identity == id {
		if err := e.put(ctx, prior); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w: %s; give the resource a new name or replace it delete-first", ErrReplacementReused, id)
}

// deleteDeposed removes the object a create-before-delete replacement left
// behind and clears it from rec.
func (e *Engine) deleteDeposed(ctx context.Context, n *node, rec *state.Record) error {
	var timeout time.Duration
	if n.resource != nil {
		timeout = n.resource.Lifecycle.DeleteTimeout
	}
	if err := e.delete(ctx, n.name, rec.Kind, rec.Deposed, timeout); err != nil {
		return err
	}
	cleared := *rec
	cleared.Deposed = ""
	if err := e.put(ctx, &cleared); err != nil {
		return err
	}
	*rec = cleared
	return nil
}

func (e *Engine) delete(ctx context.Context, name, kind, id string, timeout time.Duration) error {
	ctxlog.FromContext(ctx).Info("🔥 Deleting object.", "identity", id)
	return e.call(ctx, name, provider.OpDelete, timeout, func(ctx context.Context) error {
		err := e.provider.Delete(ctx, kind, id)
		if errors.Is(err, provider.ErrNotFound) {
			return nil
		}
		return err
	})
}

// importResource adopts an existing object. The recorded inputs are the
// ones the object actually has, so the next run converges it through the
// usual Diff.
func (e *Engine) importResource(ctx context.Context, n *node, inputs property.Bag, o *Outcome) error {
	id := n.resource.Lifecycle.ImportID
	ctxlog.FromContext(ctx).Info("📥 Importing resource.", "identity", id)

	var (
		outputs property.Bag
		err     error
	)
	err = e.call(ctx, n.name, provider.OpRead, 0, func(ctx context.Context) error {
		outputs, err = e.provider.Read(ctx, n.kind.Type, id)
		return err
	})
	if err != nil {
		return err
	}

	actual := make(property.Bag)
	for _, in := range n.kind.Inputs() {
		if v, ok := outputs[in.Name]; ok {
			actual[in.Name] = v
		}
	}
	if len(actual) == 0 {
		actual = inputs
	}
	o.Identity, o.Outputs = id, outputs
	return e.put(ctx, &state.Record{
		Name:         n.name,
		Kind:         n.kind.Type,
		Identity:     id,
		Inputs:       actual,
		InputsHash:   actual.Hash(),
		Outputs:      outputs,
		Dependencies: n.deps,
		Status:       state.StatusRealized,
	})
}

// deleteRemoved deletes a resource that left the configuration.
func (e *Engine) deleteRemoved(ctx context.Context, n *node, o *Outcome) error {
	rec := n.prior
	o.Identity = rec.Identity
	if rec.Deposed != "" {
		if err := e.delete(ctx, n.name, rec.Kind, rec.Deposed, 0); err != nil {
			return err
		}
	}
	if rec.Identity == "" {
		ctxlog.FromContext(ctx).Warn("Dropping record of a create that never reported an identity.")
	} else if err := e.delete(ctx, n.name, rec.Kind, rec.Identity, 0); err != nil {
		return err
	}
	if err := e.store.Delete(context.WithoutCancel(ctx), n.name); err != nil {
		return fmt.Errorf("forgetting %q: %w", n.name, err)
	}
	return nil
}
