// Package config defines the format-agnostic configuration model: the
// declared resources, lookups, their input expressions and lifecycle
// options.
//
// The Model is the single source of truth for the graph and engine
// packages. Concrete loaders, such as the HCL one, live in separate
// packages; Go programs can build a Model directly with a Stack.
package config
