// Package store is the central typed state container.
//
// A Store holds at most one value per Go type, keyed by typemap.ID. State
// enters a store in two ways:
//
//   - Plugin load: Plugin.Load may call Insert directly. This is a
//     single-threaded setup phase.
//   - Commit: mutations queued with Enqueue are applied in FIFO order,
//     each stamped with the next value of the store's logical Clock.
//
// # Mutations
//
// Replace, Remove, and Update are invertible: Commit captures each one's
// inverse against the state immediately before it applies, and keeps the
// pairs per commit for Undo and Redo. Func is an escape hatch that cannot
// be inverted; a commit containing one clears the history. Batch groups
// mutations and is flattened at enqueue time.
//
// State types holding slices, maps, or pointers should implement
// Cloner so that snapshots taken for inverses do not alias live state.
//
// # Phases
//
// Enqueue is safe during the concurrent logic phase (the queue is an
// arenavec claimed with an atomic add). Everything that changes state
// contents runs single-threaded, so readers never race a writer.
package store
