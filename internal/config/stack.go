package config

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/specialistvlad/esxigrid/internal/property"
)

// Stack builds a Model from Go code. Declarations keep their call order.
type Stack struct {
	mu    sync.Mutex
	model Model
	errs  []error
}

// NewStack returns an empty stack.
func NewStack() *Stack {
	return &Stack{}
}

// Handle identifies a declared resource and mints references to its outputs.
type Handle struct {
	typ  string
	name string
}

// Name returns the logical name.
func (h *Handle) Name() string { return h.name }

// Type returns the kind's type name.
func (h *Handle) Type() string { return h.typ }

// Output returns a reference to the named output.
func (h *Handle) Output(output string) property.Reference {
	return property.Reference{Resource: h.name, Output: output}
}

// ID returns a reference to the provider identity.
func (h *Handle) ID() property.Reference {
	return h.Output("id")
}

// Option customizes a declaration.
type Option func(*Resource)

// DependsOn adds explicit ordering edges that no input reference implies.
func DependsOn(handles ...*Handle) Option {
	return func(r *Resource) {
		for _, h := range handles {
			r.DependsOn = append(r.DependsOn, h.name)
		}
	}
}

// ReplaceWith selects the replacement order for the resource.
func ReplaceWith(order ReplaceOrder) Option {
	return func(r *Resource) { r.Lifecycle.ReplaceOrder = order }
}

// Timeouts bounds individual provider calls. Zero keeps the engine default.
func Timeouts(create, update, del time.Duration) Option {
	return func(r *Resource) {
		r.Lifecycle.CreateTimeout = create
		r.Lifecycle.UpdateTimeout = update
		r.Lifecycle.DeleteTimeout = del
	}
}

// Import adopts the existing object with the given provider identity.
func Import(id string) Option {
	return func(r *Resource) { r.Lifecycle.ImportID = id }
}

// Resource declares a managed resource.
func (s *Stack) Resource(typ, name string, inputs property.Bag, opts ...Option) *Handle {
	return s.declare(ManagedMode, typ, name, inputs, opts)
}

// Data declares a lookup.
func (s *Stack) Data(typ, name string, inputs property.Bag, opts ...Option) *Handle {
	return s.declare(DataMode, typ, name, inputs, opts)
}

func (s *Stack) declare(mode Mode, typ, name string, inputs property.Bag, opts []Option) *Handle {
	r := &Resource{
		Mode:   mode,
		Type:   typ,
		Name:   name,
		Inputs: Inputs(inputs),
	}
	for _, opt := range opts {
		opt(r)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.model.Resource(name); dup {
		s.errs = append(s.errs, fmt.Errorf("logical name %q is declared twice", name))
	}
	s.model.Resources = append(s.model.Resources, r)
	return &Handle{typ: typ, name: name}
}

// Model returns the declared model, or the first declaration errors.
func (s *Stack) Model() (*Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.errs) > 0 {
		return nil, errors.Join(s.errs...)
	}
	m := &Model{Resources: make([]*Resource, len(s.model.Resources))}
	copy(m.Resources, s.model.Resources)
	return m, nil
}
