// Package graph resolves the order in which declared resources are realized.
//
// Nodes are identified by logical name and remember their declaration
// order. An edge from A to B records that B consumes an output of A, so A
// must be realized first. TopologicalOrder breaks ties between
// unconstrained nodes by declaration order, which keeps plans and logs
// stable across runs.
package graph
