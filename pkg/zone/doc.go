// Package zone implements the RelayGrid zone directory: it classifies
// nodes into trust tiers and gates cross-node registry resolution.
//
// Three tiers exist: 0 (hostile), 1 (worker) and 2 (core). Assignments
// come from static configuration; a node connecting without one is
// assigned hostile with a logged warning, the fail-closed default. With
// zones disabled entirely (single-node or development deployments) every
// node is treated as core.
//
// Two distinct predicates are exposed. CanResolve governs registry
// visibility: a resolver only sees entries owned by zones no more trusted
// than itself. CanAccess is the looser general data-flow rule offered to
// callers outside the registry; the registry itself never consults it.
package zone
