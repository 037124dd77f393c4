package memory

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadMissingFileIsEmpty(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "nested", "memory.json"))
	doc, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !doc.IsEmpty() {
		t.Errorf("expected empty document, got %+v", doc)
	}
	if doc.DifficultWords == nil || doc.TranscriptionRules == nil || doc.StylePreferences == nil {
		t.Errorf("expected non-nil lists, got %+v", doc)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.json")
	s := NewStore(path)
	want := Document{
		DifficultWords:     []string{"Kubernetes", "zerolog"},
		StylePreferences:   []string{"Use Oxford commas"},
		TranscriptionRules: []string{"Spell out numbers below ten"},
		UserDomain:         "backend engineering",
	}
	if err := s.Save(want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.JSON() != want.JSON() {
		t.Errorf("round trip mismatch:\ngot  %s\nwant %s", got.JSON(), want.JSON())
	}

	// no temp files left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only memory.json, found %d entries", len(entries))
	}
}

func TestSaveUsesCamelCaseKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.json")
	if err := NewStore(path).Save(Document{UserDomain: "law"}); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"difficultWords", "stylePreferences", "transcriptionRules", "userDomain"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("stored document missing key %q: %s", key, data)
		}
	}
	if _, ok := raw["difficultWords"].([]any); !ok {
		t.Errorf("difficultWords should be an array, got %T", raw["difficultWords"])
	}
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewStore(path).Load(); err == nil {
		t.Fatal("expected error for corrupt file")
	}
}

func TestEstimateTokens(t *testing.T) {
	empty := EstimateTokens(Document{})
	if empty <= 0 {
		t.Fatalf("empty document should still count its keys, got %d", empty)
	}

	tests := []struct {
		name  string
		doc   Document
		extra int
	}{
		{"ascii words", Document{UserDomain: "site reliability"}, 2},
		{"alnum run is one word", Document{UserDomain: "k8s"}, 1},
		{"cjk counts one and a half", Document{UserDomain: "日本語"}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EstimateTokens(tt.doc) - empty
			if got != tt.extra {
				t.Errorf("extra tokens = %d, want %d", got, tt.extra)
			}
		})
	}
}

func TestNeedsCompaction(t *testing.T) {
	var doc Document
	if NeedsCompaction(doc) {
		t.Fatal("empty document should fit the budget")
	}
	for i := 0; i < TokenBudget; i++ {
		doc.DifficultWords = append(doc.DifficultWords, "word")
	}
	if !NeedsCompaction(doc) {
		t.Errorf("document with %d tokens should need compaction", EstimateTokens(doc))
	}
}

func TestCloneIsDeep(t *testing.T) {
	orig := Document{DifficultWords: []string{"a"}}
	c := orig.Clone()
	c.DifficultWords[0] = "b"
	if orig.DifficultWords[0] != "a" {
		t.Error("Clone shares backing array")
	}
}

func TestJSONHasArrays(t *testing.T) {
	if !strings.Contains(Document{}.JSON(), `"difficultWords": []`) {
		t.Errorf("JSON() = %s", Document{}.JSON())
	}
}

func TestPermitIsExclusive(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "memory.json"))

	var changes []bool
	s.OnUpdatingChange(func(u bool) { changes = append(changes, u) })

	if err := s.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !s.Updating() {
		t.Error("Updating() should be true while held")
	}
	if s.TryAcquire() {
		t.Fatal("TryAcquire succeeded while permit held")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Acquire(ctx); err == nil {
		t.Fatal("Acquire should time out while permit held")
	}

	s.Release()
	if s.Updating() {
		t.Error("Updating() should be false after release")
	}
	if !s.TryAcquire() {
		t.Fatal("TryAcquire failed after release")
	}
	s.Release()
	s.Release() // extra release is harmless

	want := []bool{true, false, true, false}
	if len(changes) != len(want) {
		t.Fatalf("changes = %v, want %v", changes, want)
	}
	for i := range want {
		if changes[i] != want[i] {
			t.Fatalf("changes = %v, want %v", changes, want)
		}
	}
}
