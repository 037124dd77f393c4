package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"murmur/learning"
	"murmur/memory"
	"murmur/transcriber"
)

func testStore(t *testing.T, doc memory.Document) *memory.Store {
	t.Helper()
	store := memory.NewStore(filepath.Join(t.TempDir(), "memory.json"))
	if err := store.Save(doc); err != nil {
		t.Fatal(err)
	}
	return store
}

func fakeAnalyzer(f *transcriber.Fake) func(context.Context) (learning.Analyzer, error) {
	return func(context.Context) (learning.Analyzer, error) { return f, nil }
}

func TestMemoryShow(t *testing.T) {
	store := testStore(t, memory.Document{DifficultWords: []string{"Kubernetes"}, UserDomain: "infra"})
	var out bytes.Buffer
	if err := memoryCommand(context.Background(), &out, store, nil, "show"); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"difficultWords"`, "Kubernetes", "tokens (budget 500)"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestMemoryCompact(t *testing.T) {
	store := testStore(t, memory.Document{
		DifficultWords:     []string{"Kubernetes"},
		TranscriptionRules: []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l"},
	})
	fake := transcriber.NewFake()
	var out bytes.Buffer
	if err := memoryCommand(context.Background(), &out, store, fakeAnalyzer(fake), "compact"); err != nil {
		t.Fatal(err)
	}
	if fake.Calls("CompactMemory") != 1 {
		t.Errorf("CompactMemory calls = %d", fake.Calls("CompactMemory"))
	}
	doc, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.TranscriptionRules) > memory.MaxTranscriptionRules {
		t.Errorf("rules = %d after compaction", len(doc.TranscriptionRules))
	}
	if len(doc.DifficultWords) != 1 {
		t.Errorf("difficult words lost: %v", doc.DifficultWords)
	}
	if store.Updating() {
		t.Error("permit still held")
	}
}

func TestMemoryCompactAnalyzerError(t *testing.T) {
	store := testStore(t, memory.Document{})
	noKey := func(context.Context) (learning.Analyzer, error) { return nil, errors.New("no key") }
	if err := memoryCommand(context.Background(), &bytes.Buffer{}, store, noKey, "compact"); err == nil {
		t.Fatal("expected error")
	}
}

func TestMemoryClear(t *testing.T) {
	store := testStore(t, memory.Document{StylePreferences: []string{"no emoji"}})
	if err := memoryCommand(context.Background(), &bytes.Buffer{}, store, nil, "clear"); err != nil {
		t.Fatal(err)
	}
	doc, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if !doc.IsEmpty() {
		t.Errorf("memory not cleared: %+v", doc)
	}
}

func TestMemoryUnknownCommand(t *testing.T) {
	store := testStore(t, memory.Document{})
	if err := memoryCommand(context.Background(), &bytes.Buffer{}, store, nil, "dump"); err == nil {
		t.Fatal("expected error")
	}
}
