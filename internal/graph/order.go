package graph

import (
	"container/heap"
)

// DetectCycles checks the graph for any cycles. It returns a *CycleError
// naming the nodes on the first cycle found, visiting nodes in declaration
// order.
func (g *Graph) DetectCycles() error {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return g.detectCycles()
}

func (g *Graph) detectCycles() error {
	// Classic three-colour DFS: permanent nodes are fully explored, nodes on
	// the stack are in the current traversal.
	permanent := make(map[string]bool)
	onStack := make(map[string]int)
	var stack []string

	var visit func(n *node) error
	visit = func(n *node) error {
		if permanent[n.id] {
			return nil
		}
		if pos, ok := onStack[n.id]; ok {
			path := append([]string{}, stack[pos:]...)
			return &CycleError{Path: append(path, n.id)}
		}

		onStack[n.id] = len(stack)
		stack = append(stack, n.id)
		for _, id := range byIndex(n.dependents) {
			if err := visit(g.nodes[id]); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		delete(onStack, n.id)
		permanent[n.id] = true
		return nil
	}

	for _, id := range g.order {
		if err := visit(g.nodes[id]); err != nil {
			return err
		}
	}
	return nil
}

// TopologicalOrder returns every node such that each node appears after
// all of its dependencies. Among nodes that are ready at the same time the
// one declared first comes first.
func (g *Graph) TopologicalOrder() ([]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	if err := g.detectCycles(); err != nil {
		return nil, err
	}
	return g.kahn(g.order), nil
}

// ReverseTopologicalOrder returns the teardown order: every node appears
// before the nodes it depends on.
func (g *Graph) ReverseTopologicalOrder() ([]string, error) {
	order, err := g.TopologicalOrder()
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order, nil
}

// Downstream returns the nodes transitively depending on any of ids, in
// topological order. The seeds themselves are not included. These are the
// nodes that must be re-resolved when a seed's outputs change.
func (g *Graph) Downstream(ids ...string) ([]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	reached := make(map[string]bool)
	queue := make([]*node, 0, len(ids))
	for _, id := range ids {
		n, ok := g.nodes[id]
		if !ok {
			return nil, &NodeNotFoundError{ID: id}
		}
		queue = append(queue, n)
	}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, d := range n.dependents {
			if !reached[d.id] {
				reached[d.id] = true
				queue = append(queue, d)
			}
		}
	}
	for _, id := range ids {
		delete(reached, id)
	}

	subset := make([]string, 0, len(reached))
	for _, id := range g.order {
		if reached[id] {
			subset = append(subset, id)
		}
	}
	return g.kahn(subset), nil
}

// kahn orders the given subset of nodes. Edges to nodes outside the subset
// are ignored. The caller must hold the read lock and guarantee acyclicity.
func (g *Graph) kahn(subset []string) []string {
	in := make(map[string]bool, len(subset))
	for _, id := range subset {
		in[id] = true
	}

	remaining := make(map[string]int, len(subset))
	ready := &indexHeap{}
	for _, id := range subset {
		n := g.nodes[id]
		count := 0
		for depID := range n.deps {
			if in[depID] {
				count++
			}
		}
		remaining[id] = count
		if count == 0 {
			heap.Push(ready, n)
		}
	}

	order := make([]string, 0, len(subset))
	for ready.Len() > 0 {
		n := heap.Pop(ready).(*node)
		order = append(order, n.id)
		for id, d := range n.dependents {
			if !in[id] {
				continue
			}
			remaining[id]--
			if remaining[id] == 0 {
				heap.Push(ready, d)
			}
		}
	}
	return order
}

// indexHeap is a min-heap of nodes keyed by declaration index.
type indexHeap []*node

func (h indexHeap) Len() int           { return len(h) }
func (h indexHeap) Less(i, j int) bool { return h[i].index < h[j].index }
func (h indexHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *indexHeap) Push(x any)        { *h = append(*h, x.(*node)) }
func (h *indexHeap) Pop() any {
	old := *h
	n := old[len(old)-1]
	*h = old[:len(old)-1]
	return n
}
