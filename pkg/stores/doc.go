// Package stores persists registry snapshots. It provides SQLite-based
// storage with WAL mode, embedded schema migrations, and retention
// pruning, so a node can restore its entry table after a restart.
// Handlers are never persisted; restored entries wait for their handler
// code to be registered again.
package stores
