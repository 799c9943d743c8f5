package engine

import (
	"errors"
	"fmt"

	"github.com/specialistvlad/esxigrid/internal/provider"
)

// ErrReplacementReused reports a replacement whose create returned the
// object it was replacing.
var ErrReplacementReused = errors.New("replacement create returned the object being replaced")

// ConfigurationError is fatal for the whole run and is always reported
// before any provider call.
type ConfigurationError struct {
	// Resource is the offending logical name, when one is to blame.
	Resource string
	Err      error
}

func (e *ConfigurationError) Error() string {
	if e.Resource == "" {
		return fmt.Sprintf("configuration error: %v", e.Err)
	}
	return fmt.Sprintf("configuration error in %q: %v", e.Resource, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ProviderError reports a failed provider call for one resource.
type ProviderError struct {
	Resource  string
	Operation provider.Operation
	Cause     error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s of %q failed: %v", e.Operation, e.Resource, e.Cause)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// SkippedError marks a resource that never ran because a dependency failed.
type SkippedError struct {
	Resource   string
	Dependency string
}

func (e *SkippedError) Error() string {
	return fmt.Sprintf("skipped %q due to upstream failure of %q", e.Resource, e.Dependency)
}

// UnknownReferenceError reports a reference to a resource or output that
// the configuration does not declare.
type UnknownReferenceError struct {
	Reference string
	Reason    string
}

func (e *UnknownReferenceError) Error() string {
	return fmt.Sprintf("unknown reference %q: %s", e.Reference, e.Reason)
}

// UnknownKindError reports a resource type with no schema.
type UnknownKindError struct {
	Type string
	Mode string
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("unknown %s type %q", e.Mode, e.Type)
}

// RecordedNameError reports a data lookup declared under the name of a
// resource that state still records. The recorded object has to be deleted
// before its name can be reused for a lookup.
type RecordedNameError struct {
	Name string
	Kind string
}

func (e *RecordedNameError) Error() string {
	return fmt.Sprintf("%q is recorded as a managed %s; delete it or pick another name for the data lookup", e.Name, e.Kind)
}
