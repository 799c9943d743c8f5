package config

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/specialistvlad/esxigrid/internal/property"
)

// Loader is the interface for a format-specific configuration loader.
type Loader interface {
	// Load reads configuration from the given paths and translates it into
	// the format-agnostic model.
	Load(ctx context.Context, paths ...string) (*Model, error)
}

// Mode distinguishes managed resources from read-only lookups.
type Mode int

const (
	// ManagedMode resources are created, updated and deleted by the engine.
	ManagedMode Mode = iota
	// DataMode resources are looked up through the provider on every run.
	DataMode
)

func (m Mode) String() string {
	if m == DataMode {
		return "data"
	}
	return "resource"
}

// Model is the unified representation of a configuration.
type Model struct {
	// Resources holds managed resources and lookups in declaration order.
	Resources []*Resource
}

// Resource is one declared resource or lookup.
type Resource struct {
	Mode Mode
	// Type is the kind's configuration type name, e.g. "esxi_resource_pool".
	Type string
	// Name is the caller-assigned logical name, unique within the model.
	Name      string
	Inputs    map[string]Expression
	DependsOn []string
	Lifecycle Lifecycle
	// DeclRange locates the declaration for error messages, when known.
	DeclRange string
}

// Lifecycle holds per-resource options that steer the engine.
type Lifecycle struct {
	ReplaceOrder  ReplaceOrder
	CreateTimeout time.Duration
	UpdateTimeout time.Duration
	DeleteTimeout time.Duration
	// ImportID adopts an existing object instead of creating one when no
	// prior record exists.
	ImportID string
}

// ReplaceOrder selects how a resource requiring replacement is swapped.
type ReplaceOrder int

const (
	// DeleteBeforeCreate removes the old object first. It is the default
	// because most ESXi objects are keyed by name.
	DeleteBeforeCreate ReplaceOrder = iota
	// CreateBeforeDelete brings up the replacement before removing the old object.
	CreateBeforeDelete
)

func (o ReplaceOrder) String() string {
	if o == CreateBeforeDelete {
		return "create_before_delete"
	}
	return "delete_before_create"
}

// ParseReplaceOrder parses the configuration spelling of a ReplaceOrder.
func ParseReplaceOrder(s string) (ReplaceOrder, error) {
	switch s {
	case "", "delete_before_create":
		return DeleteBeforeCreate, nil
	case "create_before_delete":
		return CreateBeforeDelete, nil
	}
	return DeleteBeforeCreate, fmt.Errorf("invalid replace_order %q: must be 'delete_before_create' or 'create_before_delete'", s)
}

// Address renders the resource the way configuration refers to it.
func (r *Resource) Address() string {
	if r.Mode == DataMode {
		return "data." + r.Type + "." + r.Name
	}
	return r.Type + "." + r.Name
}

// References returns the distinct references made by the resource's
// inputs, sorted by resource then output.
func (r *Resource) References() []property.Reference {
	seen := make(map[property.Reference]struct{})
	for _, expr := range r.Inputs {
		for _, ref := range expr.References() {
			seen[ref] = struct{}{}
		}
	}
	refs := make([]property.Reference, 0, len(seen))
	for ref := range seen {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Resource != refs[j].Resource {
			return refs[i].Resource < refs[j].Resource
		}
		return refs[i].Output < refs[j].Output
	})
	return refs
}

// Resource returns the resource with the given logical name.
func (m *Model) Resource(name string) (*Resource, bool) {
	for _, r := range m.Resources {
		if r.Name == name {
			return r, true
		}
	}
	return nil, false
}

// DuplicateNameError reports two declarations sharing a logical name.
type DuplicateNameError struct {
	Name   string
	First  string
	Second string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("logical name %q is declared twice (%s and %s)", e.Name, e.First, e.Second)
}

// CheckNames verifies logical names are non-empty and unique.
func (m *Model) CheckNames() error {
	seen := make(map[string]*Resource, len(m.Resources))
	var problems []string
	for _, r := range m.Resources {
		if r.Name == "" {
			problems = append(problems, fmt.Sprintf("%s declared without a name", r.Type))
			continue
		}
		if first, ok := seen[r.Name]; ok {
			return &DuplicateNameError{Name: r.Name, First: describe(first), Second: describe(r)}
		}
		seen[r.Name] = r
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func describe(r *Resource) string {
	if r.DeclRange != "" {
		return r.Address() + " at " + r.DeclRange
	}
	return r.Address()
}
