package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
)

// Store reads and writes the memory document at a fixed path. Writers hold
// the store's update permit for the whole read-modify-write sequence.
type Store struct {
	path string

	permit   chan struct{}
	updating atomic.Bool

	hookMu   sync.Mutex
	onChange func(updating bool)
}

func NewStore(path string) *Store {
	return &Store{
		path:   path,
		permit: make(chan struct{}, 1),
	}
}

// DefaultPath is memory.json inside the user's config directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "murmur", "memory.json"), nil
}

func (s *Store) Path() string { return s.path }

// Load returns the stored document. A missing file is the empty document.
func (s *Store) Load() (Document, error) {
	var doc Document
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		doc.normalize()
		return doc, nil
	}
	if err != nil {
		return Document{}, fmt.Errorf("reading memory: %w", err)
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("parsing memory %s: %w", s.path, err)
	}
	doc.normalize()
	return doc, nil
}

// Save replaces the stored document. The new content is written to a temp
// file beside the target and renamed over it, so readers never see a
// partial document.
func (s *Store) Save(doc Document) error {
	doc.normalize()
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding memory: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating memory dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".memory-*.json")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing memory: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing memory: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing memory: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replacing memory: %w", err)
	}
	return nil
}

// Acquire takes the single update permit, waiting until it is free or ctx
// is done.
func (s *Store) Acquire(ctx context.Context) error {
	select {
	case s.permit <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.updating.Store(true)
	s.notify(true)
	return nil
}

// TryAcquire takes the permit only if nobody holds it.
func (s *Store) TryAcquire() bool {
	select {
	case s.permit <- struct{}{}:
	default:
		return false
	}
	s.updating.Store(true)
	s.notify(true)
	return true
}

// Release returns the permit taken by Acquire or TryAcquire.
func (s *Store) Release() {
	s.updating.Store(false)
	select {
	case <-s.permit:
	default:
		return
	}
	s.notify(false)
}

// Updating reports whether a writer currently holds the permit.
func (s *Store) Updating() bool {
	return s.updating.Load()
}

// OnUpdatingChange registers a hook called whenever the permit is taken or
// returned.
func (s *Store) OnUpdatingChange(fn func(updating bool)) {
	s.hookMu.Lock()
	s.onChange = fn
	s.hookMu.Unlock()
}

func (s *Store) notify(updating bool) {
	s.hookMu.Lock()
	fn := s.onChange
	s.hookMu.Unlock()
	if fn != nil {
		fn(updating)
	}
}
