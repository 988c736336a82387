package core

import (
	"strings"
	"testing"
)

func TestEntityState_Tracked(t *testing.T) {
	tracked := []EntityState{
		EntityStateUnchanged,
		EntityStateAdded,
		EntityStateModified,
		EntityStateDeleted,
	}
	for _, state := range tracked {
		if !state.Tracked() {
			t.Fatalf("expected %q to be tracked", state)
		}
	}
	if EntityStateDetached.Tracked() {
		t.Fatalf("expected detached state to be untracked")
	}
	if EntityState("").Tracked() {
		t.Fatalf("expected empty state to be untracked")
	}
}

func TestEntityDebugInfo_StringIncludesDeltas(t *testing.T) {
	info := EntityDebugInfo{
		EntityType: "User",
		EntityKey:  "7d0f4f22",
		State:      EntityStateModified,
		Deltas: []FieldDelta{
			{Field: "name", Original: "before", Current: "after"},
			{Field: "age", Original: 30, Current: 31},
		},
	}

	dump := info.String()
	if !strings.HasPrefix(dump, "User[7d0f4f22]: modified") {
		t.Fatalf("expected header with type, key, and state, got %q", dump)
	}
	if !strings.Contains(dump, "name: before -> after") {
		t.Fatalf("expected name delta in dump, got %q", dump)
	}
	if !strings.Contains(dump, "age: 30 -> 31") {
		t.Fatalf("expected age delta in dump, got %q", dump)
	}
}

func TestEntityDebugInfo_StringHandlesUntracked(t *testing.T) {
	dump := EntityDebugInfo{EntityType: "User"}.String()
	if dump != "User: untracked" {
		t.Fatalf("expected untracked dump, got %q", dump)
	}

	dump = EntityDebugInfo{State: EntityStateAdded}.String()
	if dump != "unknown: added" {
		t.Fatalf("expected unknown entity type dump, got %q", dump)
	}
}
