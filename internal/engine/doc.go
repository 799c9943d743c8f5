// Package engine reconciles a configuration model against persisted state
// through a provider.
//
// A run validates the whole model up front, so configuration errors cost no
// provider calls. It then schedules resources on a bounded worker pool in
// dependency order. Each resource decides its own action: create when no
// record exists, nothing when its resolved inputs hash to the recorded
// value, otherwise whatever the provider's Diff asks for. Resources removed
// from the configuration are deleted once nothing that used to depend on
// them still needs them.
//
// A provider failure only halts the failed resource and its dependents;
// independent branches run to completion. Cancelling the run context stops
// dispatch, while calls already in flight finish under their own timeout.
package engine
