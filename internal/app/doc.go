// Package app wires the engine to its collaborators: the HCL loader, the
// state store, the provider backend, metrics and the optional HTTP
// surface. It is independent of the CLI that drives it.
package app
