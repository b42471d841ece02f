package stores

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/relaygrid/relaygrid/pkg/registry"
)

// setupTestStore creates a temp-file SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: filepath.Join(t.TempDir(), "relaygrid.db"),
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	if err := store.Open(context.Background()); err != nil {
		t.Fatalf("failed to open store: %v", err)
	}

	t.Cleanup(func() { store.Close() })
	return store
}

func testState(locked bool, names ...string) registry.State {
	entries := make([]registry.Entry, len(names))
	for i, name := range names {
		entries[i] = registry.Entry{
			Name:         name,
			Metadata:     map[string]any{"kind": "test"},
			Core:         locked,
			RegisteredAt: time.Now().UTC(),
		}
	}
	return registry.State{Entries: entries, Locked: locked, TakenAt: time.Now().UTC()}
}

// TestStoreLifecycle tests database initialization and closure
func TestStoreLifecycle(t *testing.T) {
	store := setupTestStore(t)

	if err := store.HealthCheck(context.Background()); err != nil {
		t.Fatalf("health check failed: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

func TestStoreRequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestSaveAndLatestSnapshot(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	id1, err := store.SaveSnapshot(ctx, "default", testState(false, "auth.check"))
	if err != nil {
		t.Fatalf("failed to save snapshot: %v", err)
	}

	id2, err := store.SaveSnapshot(ctx, "default", testState(true, "auth.check", "billing.charge"))
	if err != nil {
		t.Fatalf("failed to save snapshot: %v", err)
	}
	if id2 <= id1 {
		t.Fatalf("expected monotonically increasing IDs, got %d then %d", id1, id2)
	}

	rec, err := store.LatestSnapshot(ctx, "default")
	if err != nil {
		t.Fatalf("failed to get latest snapshot: %v", err)
	}

	if rec.ID != id2 {
		t.Errorf("expected latest snapshot %d, got %d", id2, rec.ID)
	}
	if !rec.Locked {
		t.Error("expected latest snapshot to be locked")
	}
	if len(rec.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(rec.Entries))
	}
	if rec.Entries[0].Name != "auth.check" {
		t.Errorf("unexpected first entry: %s", rec.Entries[0].Name)
	}
	if rec.Entries[0].Metadata["kind"] != "test" {
		t.Errorf("metadata did not survive round trip: %v", rec.Entries[0].Metadata)
	}
}

func TestLatestSnapshotMissing(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.LatestSnapshot(context.Background(), "nope")
	if !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("expected ErrNoSnapshot, got %v", err)
	}
}

func TestSnapshotStateRebuild(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if _, err := store.SaveSnapshot(ctx, "default", testState(true, "auth.check")); err != nil {
		t.Fatalf("failed to save snapshot: %v", err)
	}

	rec, err := store.LatestSnapshot(ctx, "default")
	if err != nil {
		t.Fatalf("failed to get latest snapshot: %v", err)
	}

	state := rec.State()
	if !state.Locked {
		t.Error("expected rebuilt state to be locked")
	}
	if len(state.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(state.Entries))
	}
	if state.Entries[0].Handler != nil {
		t.Error("handlers must not survive persistence")
	}
	if !state.Entries[0].Core {
		t.Error("expected core flag to survive")
	}
}

func TestListSnapshots(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := store.SaveSnapshot(ctx, "default", testState(false, "auth.check")); err != nil {
			t.Fatalf("failed to save snapshot: %v", err)
		}
	}
	if _, err := store.SaveSnapshot(ctx, "other", testState(false, "x.y")); err != nil {
		t.Fatalf("failed to save snapshot: %v", err)
	}

	records, err := store.ListSnapshots(ctx, "default", 10)
	if err != nil {
		t.Fatalf("failed to list snapshots: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(records))
	}
	if records[0].ID < records[1].ID {
		t.Error("expected newest first ordering")
	}

	limited, err := store.ListSnapshots(ctx, "default", 2)
	if err != nil {
		t.Fatalf("failed to list snapshots: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("expected limit to apply, got %d records", len(limited))
	}
}

func TestPruneKeepsNewest(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	var last int64
	for i := 0; i < 5; i++ {
		id, err := store.SaveSnapshot(ctx, "default", testState(false, "auth.check"))
		if err != nil {
			t.Fatalf("failed to save snapshot: %v", err)
		}
		last = id
	}

	deleted, err := store.Prune(ctx, "default", 2)
	if err != nil {
		t.Fatalf("failed to prune: %v", err)
	}
	if deleted != 3 {
		t.Errorf("expected 3 deleted, got %d", deleted)
	}

	records, err := store.ListSnapshots(ctx, "default", 10)
	if err != nil {
		t.Fatalf("failed to list snapshots: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 remaining, got %d", len(records))
	}
	if records[0].ID != last {
		t.Errorf("expected newest snapshot %d to survive, got %d", last, records[0].ID)
	}
}

func TestPruneOtherRegistryUntouched(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if _, err := store.SaveSnapshot(ctx, "a", testState(false, "x.y")); err != nil {
		t.Fatalf("failed to save snapshot: %v", err)
	}
	if _, err := store.SaveSnapshot(ctx, "b", testState(false, "x.y")); err != nil {
		t.Fatalf("failed to save snapshot: %v", err)
	}

	if _, err := store.Prune(ctx, "a", 1); err != nil {
		t.Fatalf("failed to prune: %v", err)
	}

	if _, err := store.LatestSnapshot(ctx, "b"); err != nil {
		t.Fatalf("prune of registry a must not touch registry b: %v", err)
	}
}
