// Package engine runs executables against a store.
//
// An Executable declares its arguments up front: Read, Optional, and Write
// handles on store state, or application-defined arguments built with
// Custom. Each invocation claims every declared argument before any logic
// runs, so an executable that asks for two write handles on one state, or
// a read and a write, fails with ALIASING_VIOLATION and never executes.
//
// Write handles edit a private copy. Changes leave the invocation as
// store.Replace mutations, either one per change (ModeImmediate) or one
// per handle when the logic returns (ModeDelayed, the default).
//
// PASSES:
//
// Sequential (Runner.Execute):
// 1. Executables run in the caller's goroutine, in order
// 2. Emitted mutations go straight to the store queue
// 3. The queue is committed after each executable
//
// Parallel (Runner.ExecuteParallel):
// 1. Each executable runs on an errgroup worker with its own batch
// 2. Barrier: the runner waits for every worker
// 3. Batches are enqueued in submission order and committed once
//
// During the logic phase nothing writes to the store, so concurrent readers
// never race a writer. A pass optionally records itself in a journal.
package engine
