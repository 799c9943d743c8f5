// Package memory implements an in-process provider. It keeps objects in a
// map, journals every call and can inject failures and latency, which makes
// it both a rehearsal backend for `esxigrid preview` style runs and the
// test double for the engine.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/specialistvlad/esxigrid/internal/property"
	"github.com/specialistvlad/esxigrid/internal/provider"
	"github.com/specialistvlad/esxigrid/internal/schema"
)

// Call is one journaled provider call.
type Call struct {
	Operation provider.Operation
	Kind      string
	// Name is the logical resource name, when the provider knows it.
	Name string
	ID   string
}

// Option configures a Provider.
type Option func(*Provider)

// WithFailure installs a hook consulted before every call; a non-nil error
// fails the call without side effects.
func WithFailure(fn func(Call) error) Option {
	return func(p *Provider) { p.fail = fn }
}

// WithDelay makes every call wait for the returned duration. The wait is
// cut short when the call's context ends.
func WithDelay(fn func(Call) time.Duration) Option {
	return func(p *Provider) { p.delay = fn }
}

// WithHook registers a function invoked, outside the provider lock, as each
// call begins.
func WithHook(fn func(Call)) Option {
	return func(p *Provider) { p.hook = fn }
}

// WithTable overrides the kind table used to recognise kinds.
func WithTable(t *schema.Table) Option {
	return func(p *Provider) { p.table = t }
}

type object struct {
	id      string
	kind    string
	logical string
	inputs  property.Bag
	outputs property.Bag
}

// Provider is a thread-safe in-memory provider.
type Provider struct {
	mu      sync.Mutex
	table   *schema.Table
	objects map[string]*object
	// byName indexes objects by kind and "name" input, which is what the
	// host itself keys objects on.
	byName  map[string]string
	journal []Call
	nextIP  int

	fail  func(Call) error
	delay func(Call) time.Duration
	hook  func(Call)
}

var _ provider.Provider = (*Provider)(nil)

// New returns an empty in-memory provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		objects: make(map[string]*object),
		byName:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.table == nil {
		p.table = schema.Builtin()
	}
	return p
}

func nameKey(kind string, inputs property.Bag) (string, bool) {
	v, ok := inputs["name"]
	if !ok || v.Kind() != property.KindString {
		return "", false
	}
	return kind + "/" + v.AsString(), true
}

// begin journals c, runs the hook and applies the configured delay and
// failure. It must be called without p.mu held.
func (p *Provider) begin(ctx context.Context, c Call) error {
	p.mu.Lock()
	p.journal = append(p.journal, c)
	p.mu.Unlock()

	if p.hook != nil {
		p.hook(c)
	}
	if p.delay != nil {
		if d := p.delay(c); d > 0 {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	if p.fail != nil {
		if err := p.fail(c); err != nil {
			return err
		}
	}
	return nil
}

func (p *Provider) checkKind(kind string, lookup bool) error {
	var ok bool
	if lookup {
		_, ok = p.table.Lookup(kind)
	} else {
		_, ok = p.table.Resource(kind)
	}
	if !ok {
		return &provider.UnknownKindError{Kind: kind}
	}
	return nil
}

func (p *Provider) logicalName(id string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if obj, ok := p.objects[id]; ok {
		return obj.logical
	}
	return ""
}

// outputs echoes inputs and adds the values the host would report.
// Called with p.mu held.
func (p *Provider) outputs(obj *object) property.Bag {
	out := obj.inputs.Clone()
	if out == nil {
		out = property.Bag{}
	}
	if obj.kind == "esxi_virtual_machine" {
		power := obj.inputs["power"]
		if power.Kind() == property.KindString && power.AsString() != "on" {
			out["ipAddress"] = property.String("")
		} else {
			if prev, ok := obj.outputs["ipAddress"]; ok && prev.Kind() == property.KindString && prev.AsString() != "" {
				out["ipAddress"] = prev
			} else {
				p.nextIP++
				out["ipAddress"] = property.String(fmt.Sprintf("192.0.2.%d", p.nextIP))
			}
		}
	}
	return out
}

func (p *Provider) Create(ctx context.Context, kind, name string, inputs property.Bag) (string, property.Bag, error) {
	if err := p.checkKind(kind, false); err != nil {
		return "", nil, err
	}
	if err := p.begin(ctx, Call{Operation: provider.OpCreate, Kind: kind, Name: name}); err != nil {
		return "", nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	key, keyed := nameKey(kind, inputs)
	if keyed {
		if id, ok := p.byName[key]; ok {
			obj := p.objects[id]
			obj.logical = name
			return obj.id, obj.outputs.Clone(), nil
		}
	}

	obj := &object{
		id:      uuid.NewString(),
		kind:    kind,
		logical: name,
		inputs:  inputs.Clone(),
	}
	obj.outputs = p.outputs(obj)
	p.objects[obj.id] = obj
	if keyed {
		p.byName[key] = obj.id
	}
	return obj.id, obj.outputs.Clone(), nil
}

func (p *Provider) Read(ctx context.Context, kind, id string) (property.Bag, error) {
	if err := p.begin(ctx, Call{Operation: provider.OpRead, Kind: kind, Name: p.logicalName(id), ID: id}); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	obj, ok := p.objects[id]
	if !ok || obj.kind != kind {
		return nil, fmt.Errorf("%s %s: %w", kind, id, provider.ErrNotFound)
	}
	return obj.outputs.Clone(), nil
}

func (p *Provider) Update(ctx context.Context, kind, id string, inputs property.Bag) (property.Bag, error) {
	if err := p.begin(ctx, Call{Operation: provider.OpUpdate, Kind: kind, Name: p.logicalName(id), ID: id}); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	obj, ok := p.objects[id]
	if !ok || obj.kind != kind {
		return nil, fmt.Errorf("%s %s: %w", kind, id, provider.ErrNotFound)
	}
	if key, keyed := nameKey(kind, obj.inputs); keyed {
		delete(p.byName, key)
	}
	obj.inputs = inputs.Clone()
	obj.outputs = p.outputs(obj)
	if key, keyed := nameKey(kind, obj.inputs); keyed {
		p.byName[key] = obj.id
	}
	return obj.outputs.Clone(), nil
}

func (p *Provider) Delete(ctx context.Context, kind, id string) error {
	if err := p.begin(ctx, Call{Operation: provider.OpDelete, Kind: kind, Name: p.logicalName(id), ID: id}); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	obj, ok := p.objects[id]
	if !ok {
		return nil
	}
	if key, keyed := nameKey(kind, obj.inputs); keyed && p.byName[key] == id {
		delete(p.byName, key)
	}
	delete(p.objects, id)
	return nil
}

func (p *Provider) Diff(ctx context.Context, kind, id string, olds, news property.Bag) (provider.Diff, error) {
	if err := p.checkKind(kind, false); err != nil {
		return provider.Diff{}, err
	}
	if err := p.begin(ctx, Call{Operation: provider.OpDiff, Kind: kind, Name: p.logicalName(id), ID: id}); err != nil {
		return provider.Diff{}, err
	}
	return provider.DiffESXi(kind, olds, news), nil
}

// Invoke serves the virtual machine lookups.
func (p *Provider) Invoke(ctx context.Context, kind string, args property.Bag) (property.Bag, error) {
	if err := p.checkKind(kind, true); err != nil {
		return nil, err
	}
	if err := p.begin(ctx, Call{Operation: provider.OpInvoke, Kind: kind}); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	var obj *object
	switch kind {
	case "esxi_virtual_machine":
		key, _ := nameKey(kind, args)
		obj = p.objects[p.byName[key]]
	case "esxi_virtual_machine_by_id":
		if v, ok := args["id"]; ok && v.Kind() == property.KindString {
			if o, ok := p.objects[v.AsString()]; ok && o.kind == "esxi_virtual_machine" {
				obj = o
			}
		}
	}
	if obj == nil {
		return nil, fmt.Errorf("%s %v: %w", kind, args, provider.ErrNotFound)
	}
	out := obj.outputs.Clone()
	out[schema.IDOutput] = property.String(obj.id)
	return out, nil
}

// Calls returns a copy of the call journal.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.journal...)
}

// Count returns how many journaled calls used one of ops.
func (p *Provider) Count(ops ...provider.Operation) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.journal {
		for _, op := range ops {
			if c.Operation == op {
				n++
			}
		}
	}
	return n
}

// ResetJournal clears the call journal but keeps the objects.
func (p *Provider) ResetJournal() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.journal = nil
}

// Seed stores an object directly, bypassing the journal. It is used to
// model objects created outside esxigrid.
func (p *Provider) Seed(kind string, inputs property.Bag) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	obj := &object{id: uuid.NewString(), kind: kind, inputs: inputs.Clone()}
	obj.outputs = p.outputs(obj)
	p.objects[obj.id] = obj
	if key, ok := nameKey(kind, inputs); ok {
		p.byName[key] = obj.id
	}
	return obj.id
}

// Lookup returns the identity and inputs of the object of kind named name.
func (p *Provider) Lookup(kind, name string) (string, property.Bag, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id, ok := p.byName[kind+"/"+name]
	if !ok {
		return "", nil, false
	}
	return id, p.objects[id].inputs.Clone(), true
}

// Len returns the number of live objects.
func (p *Provider) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.objects)
}

// Names returns the "kind/name" keys of every named object, sorted.
func (p *Provider) Names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := make([]string, 0, len(p.byName))
	for k := range p.byName {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
