package stores

import (
	"context"
	"time"

	"github.com/relaygrid/relaygrid/pkg/registry"
)

// EntrySnapshot is the persistable part of a registry entry. Handlers are
// live objects and never hit the database; a restored entry stays
// unresolvable until its handler is registered again.
type EntrySnapshot struct {
	Name         string         `json:"name"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	FailureCount int            `json:"failure_count"`
	Core         bool           `json:"core"`
	RegisteredAt time.Time      `json:"registered_at"`
}

// SnapshotRecord is one persisted registry snapshot.
type SnapshotRecord struct {
	ID        int64           `json:"id"`
	Registry  string          `json:"registry"`
	Locked    bool            `json:"locked"`
	TakenAt   time.Time       `json:"taken_at"`
	Entries   []EntrySnapshot `json:"entries"`
	CreatedAt time.Time       `json:"created_at"`
}

// State rebuilds a registry state from the record. Handlers come back
// nil; entries resolve as module_not_loaded until re-bound.
func (r *SnapshotRecord) State() registry.State {
	entries := make([]registry.Entry, len(r.Entries))
	for i, e := range r.Entries {
		entries[i] = registry.Entry{
			Name:         e.Name,
			Metadata:     e.Metadata,
			FailureCount: e.FailureCount,
			Core:         e.Core,
			RegisteredAt: e.RegisteredAt,
		}
	}
	return registry.State{
		Entries: entries,
		Locked:  r.Locked,
		TakenAt: r.TakenAt,
	}
}

// fromState strips a registry state down to its persistable form.
func fromState(state registry.State) []EntrySnapshot {
	entries := make([]EntrySnapshot, len(state.Entries))
	for i, e := range state.Entries {
		entries[i] = EntrySnapshot{
			Name:         e.Name,
			Metadata:     e.Metadata,
			FailureCount: e.FailureCount,
			Core:         e.Core,
			RegisteredAt: e.RegisteredAt,
		}
	}
	return entries
}

// Store persists registry snapshots.
type Store interface {
	// SaveSnapshot persists a registry state and returns the record ID.
	SaveSnapshot(ctx context.Context, registryName string, state registry.State) (int64, error)

	// LatestSnapshot returns the most recent snapshot for a registry.
	LatestSnapshot(ctx context.Context, registryName string) (*SnapshotRecord, error)

	// ListSnapshots returns recent snapshots for a registry, newest first.
	ListSnapshots(ctx context.Context, registryName string, limit int) ([]*SnapshotRecord, error)

	// Prune drops all but the newest keep snapshots for a registry and
	// returns how many were deleted.
	Prune(ctx context.Context, registryName string, keep int) (int64, error)

	// Close releases the underlying database.
	Close() error
}
