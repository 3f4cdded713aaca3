package registry

import (
	"context"
	"testing"
	"time"
)

func TestStateRoundTrip(t *testing.T) {
	t.Parallel()

	src := New()
	base := time.Now().Truncate(time.Millisecond)
	registerN(t, src, base, 2, RegisterMeta{AgentType: "claude-code"})
	src.Touch(testID(0), base.Add(time.Second), Delta{AddWrite: true, SkillName: "refactor"})

	store := NewStore(t.TempDir())
	if err := store.Save(src.ExportState(base.Add(2 * time.Second))); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded == nil {
		t.Fatal("Load returned nil for an existing state file")
	}

	dst := New()
	restored := dst.ImportState(context.Background(), *loaded, base.Add(time.Minute), DefaultEvictionTimeout)
	if restored != 2 {
		t.Fatalf("restored = %d, want 2", restored)
	}

	s := dst.Get(testID(0))
	if s == nil {
		t.Fatal("restored session missing")
	}
	if s.FileWrites != 1 || s.CurrentSkill != "refactor" || s.DisplayName != "Claude 1" {
		t.Errorf("restored session = writes:%d skill:%q name:%q", s.FileWrites, s.CurrentSkill, s.DisplayName)
	}
	if got := dst.ActiveSkills(); len(got) != 1 || got[0] != "refactor" {
		t.Errorf("restored active skills = %v", got)
	}
}

func TestImportState_DropsStaleSessions(t *testing.T) {
	t.Parallel()

	src := New()
	base := time.Now()
	registerN(t, src, base, 2, RegisterMeta{})
	// Only the second session stays fresh.
	src.Touch(testID(1), base.Add(time.Hour), Delta{})

	state := src.ExportState(base.Add(time.Hour))

	dst := New()
	restored := dst.ImportState(context.Background(), state, base.Add(time.Hour), 30*time.Minute)
	if restored != 1 {
		t.Fatalf("restored = %d, want 1", restored)
	}
	if dst.Get(testID(0)) != nil {
		t.Error("stale session was resurrected")
	}
	if dst.Get(testID(1)) == nil {
		t.Error("fresh session was dropped")
	}
}

func TestImportState_PrunesDanglingChildren(t *testing.T) {
	t.Parallel()

	src := New()
	base := time.Now()
	src.Register(context.Background(), testID(0), base, RegisterMeta{})
	src.Register(context.Background(), testID(1), base.Add(2*CreationCooldown), RegisterMeta{ParentAgentID: testID(0)})
	// Keep the parent fresh, let the child lapse.
	src.Touch(testID(0), base.Add(time.Hour), Delta{})

	state := src.ExportState(base.Add(time.Hour))

	dst := New()
	dst.ImportState(context.Background(), state, base.Add(time.Hour), 30*time.Minute)
	parent := dst.Get(testID(0))
	if parent == nil {
		t.Fatal("parent not restored")
	}
	if len(parent.ChildAgentIDs) != 0 {
		t.Errorf("child list = %v, want dangling reference pruned", parent.ChildAgentIDs)
	}
}

func TestStoreLoad_MissingFileIsNotAnError(t *testing.T) {
	t.Parallel()

	store := NewStore(t.TempDir())
	state, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if state != nil {
		t.Errorf("state = %+v, want nil for missing file", state)
	}
}
