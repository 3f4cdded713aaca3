package graph

import (
	"testing"
	"time"

	"github.com/vivariumhq/vivarium/cmd/vivarium/cli/paths"
)

func TestRecord_WriteStartEndMirrorsAncestors(t *testing.T) {
	t.Parallel()

	g := New()
	now := time.Now()

	g.Record(Event{Op: OpWrite, Phase: PhaseStart, Key: "src/a.ts", Timestamp: now})

	leaf := g.nodes["src/a.ts"]
	if leaf == nil {
		t.Fatal("leaf node not created")
	}
	if leaf.ActiveOperation != OpWrite {
		t.Errorf("leaf ActiveOperation = %q, want write", leaf.ActiveOperation)
	}
	if leaf.IsFolder || leaf.Depth != 1 {
		t.Errorf("leaf = folder:%v depth:%d, want file at depth 1", leaf.IsFolder, leaf.Depth)
	}

	folder := g.nodes["src"]
	if folder == nil || !folder.IsFolder || folder.Depth != 0 {
		t.Fatalf("ancestor folder src not materialized correctly: %+v", folder)
	}
	if folder.ActiveOperation != OpWrite {
		t.Errorf("folder ActiveOperation = %q, want write (mirrored)", folder.ActiveOperation)
	}
	if root := g.nodes[paths.RootKey]; root.ActiveOperation != OpWrite {
		t.Errorf("root ActiveOperation = %q, want write (mirrored)", root.ActiveOperation)
	}

	g.Record(Event{Op: OpWrite, Phase: PhaseEnd, Key: "src/a.ts", Timestamp: now.Add(time.Second)})

	if leaf.ActiveOperation != "" {
		t.Errorf("leaf ActiveOperation = %q after end, want cleared", leaf.ActiveOperation)
	}
	if leaf.Activity.Writes != 1 {
		t.Errorf("leaf Writes = %d, want 1", leaf.Activity.Writes)
	}
	if folder.ActiveOperation != "" {
		t.Errorf("folder ActiveOperation = %q after end, want cleared (mirrored)", folder.ActiveOperation)
	}
	if folder.Activity.Writes != 0 {
		t.Errorf("folder Writes = %d, want 0 (counters are leaf-only)", folder.Activity.Writes)
	}
}

func TestRecord_NodeCreationIsIdempotent(t *testing.T) {
	t.Parallel()

	g := New()
	now := time.Now()

	for i := 0; i < 5; i++ {
		g.Record(Event{Op: OpRead, Phase: PhaseStart, Key: "a/b/c.go", Timestamp: now})
	}

	// Root + a + a/b + a/b/c.go.
	if g.Len() != 4 {
		t.Errorf("node count = %d, want 4", g.Len())
	}
}

func TestRecord_EndWithoutStartOnlyIncrements(t *testing.T) {
	t.Parallel()

	// A start arriving after its end is two independent transitions: the
	// end finds no active state to clear and just counts.
	g := New()
	now := time.Now()

	g.Record(Event{Op: OpRead, Phase: PhaseEnd, Key: "x.go", Timestamp: now})

	n := g.nodes["x.go"]
	if n.Activity.Reads != 1 {
		t.Errorf("Reads = %d, want 1", n.Activity.Reads)
	}
	if n.ActiveOperation != "" {
		t.Errorf("ActiveOperation = %q, want empty", n.ActiveOperation)
	}
}

func TestRecord_SearchNeverCreatesNodes(t *testing.T) {
	t.Parallel()

	g := New()
	now := time.Now()

	if g.Record(Event{Op: OpSearch, Phase: PhaseStart, Key: "TODO.*pattern", Timestamp: now}) {
		t.Error("search on unknown key reported a change")
	}
	if g.Len() != 1 {
		t.Errorf("node count = %d, want 1 (root only)", g.Len())
	}

	// A search on an existing node does apply.
	g.Record(Event{Op: OpRead, Phase: PhaseEnd, Key: "src/a.go", Timestamp: now})
	g.Record(Event{Op: OpSearch, Phase: PhaseStart, Key: "src/a.go", Timestamp: now})
	if g.nodes["src/a.go"].ActiveOperation != OpSearch {
		t.Error("search on known key did not set active operation")
	}
	g.Record(Event{Op: OpSearch, Phase: PhaseEnd, Key: "src/a.go", Timestamp: now})
	if g.nodes["src/a.go"].Activity.Searches != 1 {
		t.Errorf("Searches = %d, want 1", g.nodes["src/a.go"].Activity.Searches)
	}
}

func TestSnapshot_LinksPointToDirectParent(t *testing.T) {
	t.Parallel()

	g := New()
	g.Record(Event{Op: OpWrite, Phase: PhaseStart, Key: "a/b/c.go", Timestamp: time.Now()})

	snap := g.Snapshot()
	if len(snap.Nodes) != 4 {
		t.Fatalf("snapshot nodes = %d, want 4", len(snap.Nodes))
	}
	if len(snap.Links) != 3 {
		t.Fatalf("snapshot links = %d, want 3", len(snap.Links))
	}

	parents := map[string]string{}
	for _, l := range snap.Links {
		parents[l.Source] = l.Target
	}
	want := map[string]string{
		"a":        paths.RootKey,
		"a/b":      "a",
		"a/b/c.go": "a/b",
	}
	for src, target := range want {
		if parents[src] != target {
			t.Errorf("link %s -> %s, want -> %s", src, parents[src], target)
		}
	}
}

func TestSnapshot_IsACopy(t *testing.T) {
	t.Parallel()

	g := New()
	now := time.Now()
	g.Record(Event{Op: OpWrite, Phase: PhaseStart, Key: "a.go", Timestamp: now})

	snap := g.Snapshot()
	g.Record(Event{Op: OpWrite, Phase: PhaseEnd, Key: "a.go", Timestamp: now})

	for _, n := range snap.Nodes {
		if n.ID == "a.go" && n.ActiveOperation != OpWrite {
			t.Error("snapshot mutated by later event")
		}
	}
}

func TestReset(t *testing.T) {
	t.Parallel()

	g := New()
	g.Record(Event{Op: OpWrite, Phase: PhaseEnd, Key: "a/b.go", Timestamp: time.Now()})
	g.Reset()

	if g.Len() != 1 {
		t.Errorf("node count after reset = %d, want 1", g.Len())
	}
	if _, ok := g.nodes[paths.RootKey]; !ok {
		t.Error("root missing after reset")
	}
}

func TestRecentlyActive(t *testing.T) {
	t.Parallel()

	g := New()
	now := time.Now()

	g.Record(Event{Op: OpWrite, Phase: PhaseEnd, Key: "src/old.go", Timestamp: now.Add(-10 * time.Minute)})
	g.Record(Event{Op: OpWrite, Phase: PhaseEnd, Key: "src/a.go", Timestamp: now.Add(-2 * time.Minute)})
	g.Record(Event{Op: OpRead, Phase: PhaseEnd, Key: "src/b.go", Timestamp: now.Add(-1 * time.Minute)})
	g.Record(Event{Op: OpRead, Phase: PhaseEnd, Key: "top.go", Timestamp: now})

	recent := g.RecentlyActive(now, 5*time.Minute)

	src := recent["src"]
	if len(src) != 2 || src[0] != "b.go" || src[1] != "a.go" {
		t.Errorf("recent[src] = %v, want [b.go a.go] (most recent first)", src)
	}
	if got := recent[paths.RootKey]; len(got) != 1 || got[0] != "top.go" {
		t.Errorf("recent[root] = %v, want [top.go]", got)
	}
	for folder, files := range recent {
		for _, f := range files {
			if f == "old.go" {
				t.Errorf("stale file old.go present under %s", folder)
			}
		}
	}
}
