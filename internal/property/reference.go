package property

import (
	"fmt"
	"strings"
)

// Reference points at a named output of another resource in the same graph.
type Reference struct {
	// Resource is the logical name of the producing resource.
	Resource string
	// Output is the name of the output attribute, e.g. "name" or "id".
	Output string
}

func (r Reference) String() string {
	return r.Resource + "." + r.Output
}

// ParseReference parses the "resource.output" form produced by String.
func ParseReference(s string) (Reference, error) {
	resource, output, ok := strings.Cut(s, ".")
	if !ok || resource == "" || output == "" {
		return Reference{}, fmt.Errorf("invalid reference %q: expected <resource>.<output>", s)
	}
	return Reference{Resource: resource, Output: output}, nil
}
