package graph

import (
	"fmt"
	"strings"
)

// DOT exports the graph as Graphviz DOT text. Edges point from a
// dependency to its dependent.
func (g *Graph) DOT() string {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	var b strings.Builder
	b.WriteString("digraph esxigrid {\n")
	b.WriteString("  rankdir=LR;\n")
	for i, id := range g.order {
		n := g.nodes[id]
		label := escapeQuotes(id)
		if n.label != "" {
			label += "\\n(" + escapeQuotes(n.label) + ")"
		}
		fmt.Fprintf(&b, "  n%d [label=\"%s\"];\n", i, label)
	}
	for i, id := range g.order {
		for _, depID := range byIndex(g.nodes[id].dependents) {
			fmt.Fprintf(&b, "  n%d -> n%d;\n", i, g.nodes[depID].index)
		}
	}
	b.WriteString("}\n")
	return b.String()
}

// Mermaid exports the graph as Mermaid flowchart text.
func (g *Graph) Mermaid() string {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	var b strings.Builder
	b.WriteString("graph TD\n")
	for i, id := range g.order {
		n := g.nodes[id]
		label := escapeQuotes(id)
		if n.label != "" {
			label += "<br/>(" + escapeQuotes(n.label) + ")"
		}
		fmt.Fprintf(&b, "    n%d[\"%s\"]\n", i, label)
	}
	for i, id := range g.order {
		for _, depID := range byIndex(g.nodes[id].dependents) {
			fmt.Fprintf(&b, "    n%d --> n%d\n", i, g.nodes[depID].index)
		}
	}
	return b.String()
}

func escapeQuotes(s string) string {
	return strings.ReplaceAll(s, "\"", "\\\"")
}
