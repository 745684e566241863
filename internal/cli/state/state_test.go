package state

import (
	"path/filepath"
	"testing"
)

func TestSaveLoadClear(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "state.json")

	empty, err := Load(path)
	if err != nil {
		t.Fatalf("load missing state failed: %v", err)
	}
	if empty.Language != "" || empty.ProblemID != nil {
		t.Fatalf("expected empty state, got %+v", empty)
	}

	id := int64(2)
	want := SessionState{Language: "javascript", ProblemID: &id, Input: "1 2\n"}
	if err := Save(path, want); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if got.Language != want.Language || got.Input != want.Input || got.ProblemID == nil || *got.ProblemID != id {
		t.Fatalf("expected %+v, got %+v", want, got)
	}

	if err := Clear(path); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if err := Clear(path); err != nil {
		t.Fatalf("clear of missing file should succeed, got %v", err)
	}
}
