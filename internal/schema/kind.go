package schema

import (
	"github.com/specialistvlad/esxigrid/internal/property"
	"github.com/zclconf/go-cty/cty"
)

// IDOutput is the output every realized resource exposes: its provider identity.
const IDOutput = "id"

// Kind describes one resource kind or lookup.
type Kind struct {
	// Type is the configuration type name, e.g. "esxi_resource_pool".
	Type        string
	Token       string
	Description string
	// Lookup marks read-only data sources dispatched through Invoke.
	Lookup   bool
	AutoName *AutoName

	inputs      []*Input
	inputByName map[string]*Input
	outputs     map[string]*Output
}

// AutoName bounds names generated for resources that omit "name".
type AutoName struct {
	Property  string
	MinLength int
	MaxLength int
}

// Input is one declared argument of a kind.
type Input struct {
	Name        string
	Type        cty.Type
	Description string
	Default     *property.Value
	Required    bool
	// OneOf restricts string values to a closed set of tokens.
	OneOf []string
	// AllowInteger additionally admits decimal integer strings (custom shares).
	AllowInteger bool
	Min          *float64
	Max          *float64
	MaxItems     int
	// ItemRequired names keys each list element must carry.
	ItemRequired []string
	ForbidPrefix string
}

// Output is one value reported by a provider beyond the echoed inputs.
type Output struct {
	Name        string
	Type        cty.Type
	Description string
}

// Inputs returns the declared inputs in manifest order.
func (k *Kind) Inputs() []*Input {
	out := make([]*Input, len(k.inputs))
	copy(out, k.inputs)
	return out
}

// Input returns the named input.
func (k *Kind) Input(name string) (*Input, bool) {
	in, ok := k.inputByName[name]
	return in, ok
}

// HasOutput reports whether name may be referenced on a realized instance
// of this kind. Resources echo their inputs, so input names qualify.
func (k *Kind) HasOutput(name string) bool {
	if name == IDOutput {
		return true
	}
	if _, ok := k.outputs[name]; ok {
		return true
	}
	if k.Lookup {
		return false
	}
	_, ok := k.inputByName[name]
	return ok
}

// OutputNames returns the names HasOutput accepts, sorted.
func (k *Kind) OutputNames() []string {
	seen := map[string]struct{}{IDOutput: {}}
	for name := range k.outputs {
		seen[name] = struct{}{}
	}
	if !k.Lookup {
		for name := range k.inputByName {
			seen[name] = struct{}{}
		}
	}
	return sortedSet(seen)
}
