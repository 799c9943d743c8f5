package graph

import (
	"fmt"
	"strings"
)

// CycleError reports a dependency cycle. Path starts and ends with the
// same node, e.g. [a b c a].
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	if len(e.Path) == 0 {
		return "dependency cycle detected"
	}
	return "dependency cycle detected: " + strings.Join(e.Path, " -> ")
}

// Participants returns the distinct nodes on the cycle.
func (e *CycleError) Participants() []string {
	if len(e.Path) < 2 {
		return e.Path
	}
	return e.Path[:len(e.Path)-1]
}

// NodeNotFoundError reports a reference to an ID the graph does not hold.
type NodeNotFoundError struct {
	ID string
}

func (e *NodeNotFoundError) Error() string {
	return fmt.Sprintf("node not found: %s", e.ID)
}
