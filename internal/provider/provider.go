// Package provider defines the protocol between the lifecycle engine and a
// hypervisor backend. The engine treats every side effect as opaque: it
// hands a provider property bags and gets identities and outputs back.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/specialistvlad/esxigrid/internal/property"
)

var (
	// ErrNotFound is returned by Read, Update and Delete when the object
	// behind an identity no longer exists.
	ErrNotFound = errors.New("object not found")
	// ErrTimeout marks a call that exceeded its per-call deadline.
	ErrTimeout = errors.New("provider call timed out")
	// ErrUnsupported is returned for kinds or arguments a backend cannot handle.
	ErrUnsupported = errors.New("unsupported by provider")
)

// Operation names a provider call.
type Operation string

const (
	OpCreate Operation = "create"
	OpRead   Operation = "read"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
	OpDiff   Operation = "diff"
	OpInvoke Operation = "invoke"
)

// DiffResult classifies the change between last-applied and desired inputs.
type DiffResult int

const (
	NoChange DiffResult = iota
	Updatable
	RequiresReplacement
)

func (d DiffResult) String() string {
	switch d {
	case NoChange:
		return "no-change"
	case Updatable:
		return "updatable"
	case RequiresReplacement:
		return "requires-replacement"
	}
	return fmt.Sprintf("DiffResult(%d)", int(d))
}

// Diff is a provider's verdict on a change. The provider, not the engine,
// decides which properties force replacement.
type Diff struct {
	Result      DiffResult
	ChangedKeys []string
	ReplaceKeys []string
}

// Provider performs the side effects for every resource kind.
type Provider interface {
	// Create realizes a new object. name is the logical name, useful for
	// logging; idempotency is keyed on the object name carried in inputs.
	Create(ctx context.Context, kind, name string, inputs property.Bag) (id string, outputs property.Bag, err error)
	// Read reports the current outputs of an existing object.
	Read(ctx context.Context, kind, id string) (property.Bag, error)
	// Update converges an existing object to inputs in place.
	Update(ctx context.Context, kind, id string, inputs property.Bag) (property.Bag, error)
	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, kind, id string) error
	// Diff classifies the change from olds to news.
	Diff(ctx context.Context, kind, id string, olds, news property.Bag) (Diff, error)
	// Invoke runs a lookup function such as getVirtualMachine.
	Invoke(ctx context.Context, kind string, args property.Bag) (property.Bag, error)
}

// UnknownKindError reports a kind a provider does not implement.
type UnknownKindError struct {
	Kind string
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("unknown resource kind %q", e.Kind)
}

func (e *UnknownKindError) Unwrap() error { return ErrUnsupported }

// DiffByKeys is the common Diff implementation: any changed key listed in
// replaceKeys forces replacement, any other change is updatable.
func DiffByKeys(olds, news property.Bag, replaceKeys ...string) Diff {
	changed := property.ChangedKeys(olds, news)
	if len(changed) == 0 {
		return Diff{Result: NoChange}
	}
	d := Diff{Result: Updatable, ChangedKeys: changed}
	for _, k := range changed {
		for _, rk := range replaceKeys {
			if k == rk {
				d.ReplaceKeys = append(d.ReplaceKeys, k)
			}
		}
	}
	if len(d.ReplaceKeys) > 0 {
		d.Result = RequiresReplacement
	}
	return d
}
