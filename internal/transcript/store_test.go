package transcript

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestStore_RoundTrip(t *testing.T) {
	s := newTestStore(t)

	tr := New("sys")
	tr.Append(RoleUser, "hello")
	tr.Append(RoleAssistant, "hi there")
	tr.Append(RoleTool, "4")

	if err := s.Save("chan-1", tr); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load("chan-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(got.Turns, tr.Turns) {
		t.Errorf("round trip mismatch:\ngot  %+v\nwant %+v", got.Turns, tr.Turns)
	}
}

func TestStore_LoadMissing(t *testing.T) {
	s := newTestStore(t)
	tr, err := s.Load("never-seen")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tr.Len() != 0 {
		t.Errorf("Len = %d, want 0", tr.Len())
	}
}

func TestStore_FileShape(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	tr := &Transcript{}
	tr.Append(RoleUser, "x")
	if err := s.Save("k", tr); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "k.json"))
	if err != nil {
		t.Fatal(err)
	}
	var file struct {
		History string `json:"history"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		t.Fatalf("outer shape: %v", err)
	}
	if file.History == "" {
		t.Fatal("history field is empty")
	}
	var turns []Turn
	if err := json.Unmarshal([]byte(file.History), &turns); err != nil {
		t.Fatalf("inner turns: %v", err)
	}
	if len(turns) != 1 || turns[0].Role != RoleUser {
		t.Errorf("turns = %+v", turns)
	}
}

func TestStore_SaveOverwrites(t *testing.T) {
	s := newTestStore(t)
	a := &Transcript{}
	a.Append(RoleUser, "first")
	s.Save("k", a)

	b := &Transcript{}
	b.Append(RoleUser, "second")
	if err := s.Save("k", b); err != nil {
		t.Fatal(err)
	}

	got, err := s.Load("k")
	if err != nil {
		t.Fatal(err)
	}
	if got.Len() != 1 || got.Turns[0].Content != "second" {
		t.Errorf("turns = %+v", got.Turns)
	}
}

func TestStore_ClearIdempotent(t *testing.T) {
	s := newTestStore(t)
	tr := &Transcript{}
	tr.Append(RoleUser, "x")
	s.Save("k", tr)

	if err := s.Clear("k"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if err := s.Clear("k"); err != nil {
		t.Fatalf("second Clear: %v", err)
	}
	got, _ := s.Load("k")
	if got.Len() != 0 {
		t.Errorf("Len after clear = %d", got.Len())
	}
}

func TestStore_KeySanitized(t *testing.T) {
	dir := t.TempDir()
	s, _ := NewStore(dir)
	tr := &Transcript{}
	tr.Append(RoleUser, "x")
	if err := s.Save("../escape/attempt", tr); err != nil {
		t.Fatalf("Save: %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1 inside store dir", len(entries))
	}
}
