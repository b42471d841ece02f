// Package registry implements the RelayGrid distributed handler registry:
// independently developed subsystems register named handlers here and
// resolve them by name at call time, locally or across a multi-node
// deployment with differing trust levels.
//
// # Architecture
//
// A registry instance is built from a small set of cooperating parts:
//
//   - entry store: a concurrent name-to-entry table readable without
//     synchronization, writable only through the actor
//   - registry actor: one goroutine serializing every mutation as a strict
//     FIFO queue
//   - snapshot cache: an immutable name-to-handler map, atomically swapped
//     after each mutation once the registry is locked, checked first on
//     every read
//   - caretaker: a standby holder of the entry store across an actor crash,
//     bounded by a hold timeout until a restarted actor reclaims it
//
// Reads (Resolve, ListAll, ListAvailable) bypass the actor entirely. This
// trades a small staleness window for read-path scalability under many
// concurrent callers.
//
// # Sovereignty lifecycle
//
// The registry has a two-phase lifecycle. During bootstrap any unique name
// may be registered. LockCore stamps every existing entry core and flips
// the lock: from then on core entries are immutable to deregistration and
// new registrations must carry a namespace separator so plugins cannot
// shadow foundational names.
//
// # Circuit breaker
//
// RecordFailure bumps a per-entry counter; at the configured threshold the
// entry disappears from ResolveStable and ListAvailable while plain Resolve
// keeps working as long as the handler is loadable. ResetFailures closes
// the circuit again.
//
// # Errors
//
// Every misuse comes back as a typed *Error with a stable code; nothing in
// this package panics at the caller. See errors.go for the taxonomy.
package registry
