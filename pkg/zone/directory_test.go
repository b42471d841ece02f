package zone

import (
	"errors"
	"testing"
)

func testDirectory(t *testing.T, enabled bool, localZone Zone, nodes map[string]NodeInfo) *Directory {
	t.Helper()
	return NewDirectory(Options{
		Enabled:   enabled,
		LocalNode: "local-node",
		LocalZone: localZone,
		Nodes:     nodes,
	})
}

func TestZoneString(t *testing.T) {
	cases := []struct {
		zone Zone
		want string
	}{
		{ZoneHostile, "hostile"},
		{ZoneWorker, "worker"},
		{ZoneCore, "core"},
	}
	for _, tc := range cases {
		if got := tc.zone.String(); got != tc.want {
			t.Errorf("Zone(%d).String() = %q, want %q", tc.zone, got, tc.want)
		}
	}
}

func TestZoneValid(t *testing.T) {
	for z := ZoneHostile; z <= ZoneCore; z++ {
		if !z.Valid() {
			t.Errorf("zone %d should be valid", z)
		}
	}
	if Zone(-1).Valid() || Zone(3).Valid() {
		t.Error("out-of-range zones must be invalid")
	}
}

func TestTrustZoneKnownNodes(t *testing.T) {
	dir := testDirectory(t, true, ZoneCore, map[string]NodeInfo{
		"worker-1": {Zone: ZoneWorker},
		"edge-1":   {Zone: ZoneHostile},
	})

	if z := dir.TrustZone("worker-1"); z != ZoneWorker {
		t.Errorf("worker-1: expected worker, got %s", z)
	}
	if z := dir.TrustZone("edge-1"); z != ZoneHostile {
		t.Errorf("edge-1: expected hostile, got %s", z)
	}
	if z := dir.TrustZone("local-node"); z != ZoneCore {
		t.Errorf("local: expected core, got %s", z)
	}
}

func TestTrustZoneUnknownIsHostile(t *testing.T) {
	dir := testDirectory(t, true, ZoneCore, nil)

	if z := dir.TrustZone("stranger"); z != ZoneHostile {
		t.Fatalf("unknown node must default hostile, got %s", z)
	}

	// A plain lookup must not plant an entry; only a connect event does.
	for _, n := range dir.ListNodes() {
		if n.NodeID == "stranger" {
			t.Fatal("lookup of an unknown name must not mutate the table")
		}
	}
}

func TestNodeConnectedUnknownRegistersHostile(t *testing.T) {
	dir := testDirectory(t, true, ZoneCore, nil)

	if z := dir.NodeConnected("stranger"); z != ZoneHostile {
		t.Fatalf("unknown connecting node must register hostile, got %s", z)
	}

	// The assignment sticks while the node stays connected.
	found := false
	for _, n := range dir.ListNodes() {
		if n.NodeID == "stranger" && n.Zone == ZoneHostile {
			found = true
		}
	}
	if !found {
		t.Error("connected node not recorded in the directory")
	}
}

func TestConfiguredNodeSurvivesDisconnect(t *testing.T) {
	dir := testDirectory(t, true, ZoneCore, map[string]NodeInfo{
		"worker-1": {Zone: ZoneWorker},
	})

	if z := dir.NodeConnected("worker-1"); z != ZoneWorker {
		t.Fatalf("expected worker on connect, got %s", z)
	}

	dir.RemoveNode("worker-1")

	// A transient partition must not demote a configured node: both a
	// lookup during the outage and the rejoin answer its assigned zone.
	if z := dir.TrustZone("worker-1"); z != ZoneWorker {
		t.Fatalf("expected configured zone while disconnected, got %s", z)
	}
	if z := dir.NodeConnected("worker-1"); z != ZoneWorker {
		t.Fatalf("expected configured zone on rejoin, got %s", z)
	}
}

func TestDisabledDirectoryTrustsEveryone(t *testing.T) {
	dir := testDirectory(t, false, ZoneHostile, nil)

	if !dir.Disabled() {
		t.Fatal("expected disabled directory")
	}
	if z := dir.TrustZone("anyone"); z != ZoneCore {
		t.Errorf("disabled directory must answer core, got %s", z)
	}
	if z := dir.LocalZone(); z != ZoneCore {
		t.Errorf("disabled directory must treat local as core, got %s", z)
	}
	if err := dir.CanAccess(dir.TrustZone("anyone"), ZoneCore); err != nil {
		t.Errorf("no violations possible when disabled: %v", err)
	}
}

func TestCanAccessMatrix(t *testing.T) {
	dir := testDirectory(t, true, ZoneCore, nil)

	cases := []struct {
		from, to Zone
		allowed  bool
	}{
		{ZoneHostile, ZoneHostile, true},
		{ZoneHostile, ZoneWorker, true},
		{ZoneHostile, ZoneCore, false},
		{ZoneWorker, ZoneHostile, true},
		{ZoneWorker, ZoneWorker, true},
		{ZoneWorker, ZoneCore, true},
		{ZoneCore, ZoneHostile, true},
		{ZoneCore, ZoneWorker, true},
		{ZoneCore, ZoneCore, true},
	}

	for _, tc := range cases {
		err := dir.CanAccess(tc.from, tc.to)
		if tc.allowed && err != nil {
			t.Errorf("CanAccess(%s, %s) unexpectedly denied: %v", tc.from, tc.to, err)
		}
		if !tc.allowed && err == nil {
			t.Errorf("CanAccess(%s, %s) unexpectedly allowed", tc.from, tc.to)
		}
	}
}

func TestCanAccessViolationError(t *testing.T) {
	dir := testDirectory(t, true, ZoneCore, nil)

	err := dir.CanAccess(ZoneHostile, ZoneCore)
	var v *ViolationError
	if !errors.As(err, &v) {
		t.Fatalf("expected ViolationError, got %v", err)
	}
	if v.From != ZoneHostile || v.To != ZoneCore {
		t.Errorf("unexpected violation detail: %+v", v)
	}
	if !errors.Is(err, &ViolationError{}) {
		t.Error("expected type-based matching")
	}
}

func TestCanResolveMatrix(t *testing.T) {
	dir := testDirectory(t, true, ZoneCore, nil)

	cases := []struct {
		from, to Zone
		want     bool
	}{
		{ZoneCore, ZoneCore, true},
		{ZoneCore, ZoneWorker, true},
		{ZoneCore, ZoneHostile, true},
		{ZoneWorker, ZoneCore, false},
		{ZoneWorker, ZoneWorker, true},
		{ZoneWorker, ZoneHostile, true},
		{ZoneHostile, ZoneCore, false},
		{ZoneHostile, ZoneWorker, false},
		{ZoneHostile, ZoneHostile, true},
	}

	for _, tc := range cases {
		if got := dir.CanResolve(tc.from, tc.to); got != tc.want {
			t.Errorf("CanResolve(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestRegisterAndRemoveNode(t *testing.T) {
	dir := testDirectory(t, true, ZoneCore, nil)

	dir.RegisterNode("worker-1", NodeInfo{Zone: ZoneWorker})
	if z := dir.TrustZone("worker-1"); z != ZoneWorker {
		t.Fatalf("expected worker after register, got %s", z)
	}

	// An explicit registration is configuration; removal on disconnect
	// does not revoke it.
	dir.RemoveNode("worker-1")
	if z := dir.TrustZone("worker-1"); z != ZoneWorker {
		t.Fatalf("expected registered zone after removal, got %s", z)
	}

	// A node that only ever connected falls back to hostile once gone.
	dir.NodeConnected("drifter")
	dir.RemoveNode("drifter")
	if z := dir.TrustZone("drifter"); z != ZoneHostile {
		t.Fatalf("expected hostile after removal, got %s", z)
	}

	// The local node cannot be removed.
	dir.RemoveNode("local-node")
	if z := dir.TrustZone("local-node"); z != ZoneCore {
		t.Errorf("local node must survive removal, got %s", z)
	}
}

func TestNodesInZone(t *testing.T) {
	dir := testDirectory(t, true, ZoneCore, map[string]NodeInfo{
		"worker-2": {Zone: ZoneWorker},
		"worker-1": {Zone: ZoneWorker},
		"edge-1":   {Zone: ZoneHostile},
	})

	workers := dir.NodesInZone(ZoneWorker)
	if len(workers) != 2 {
		t.Fatalf("expected 2 workers, got %d", len(workers))
	}
	if workers[0].NodeID != "worker-1" || workers[1].NodeID != "worker-2" {
		t.Errorf("expected sorted order, got %v", workers)
	}
}

func TestReloadKeepsLocal(t *testing.T) {
	dir := testDirectory(t, true, ZoneCore, map[string]NodeInfo{
		"old-node": {Zone: ZoneWorker},
	})

	dir.Reload(map[string]NodeInfo{
		"new-node": {Zone: ZoneWorker},
	})

	if z := dir.TrustZone("new-node"); z != ZoneWorker {
		t.Errorf("expected new node after reload, got %s", z)
	}
	if z := dir.TrustZone("local-node"); z != ZoneCore {
		t.Errorf("local node must survive reload, got %s", z)
	}

	// old-node is gone; it now defaults hostile.
	if z := dir.TrustZone("old-node"); z != ZoneHostile {
		t.Errorf("expected stale node dropped, got %s", z)
	}
}
