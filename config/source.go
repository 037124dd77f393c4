package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"murmur/log"
)

const reloadDebounce = 150 * time.Millisecond

// Source holds the current settings and swaps them atomically on reload.
type Source struct {
	path string
	cur  atomic.Pointer[Settings]

	mu       sync.Mutex
	onChange func(Settings)
}

func NewSource(path string) (*Source, error) {
	s := &Source{path: filepath.Clean(path)}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// StaticSource serves fixed settings; used by tests and one-shot commands.
func StaticSource(settings Settings) *Source {
	s := &Source{}
	s.cur.Store(&settings)
	return s
}

func (s *Source) Path() string { return s.path }

func (s *Source) Current() Settings {
	return *s.cur.Load()
}

// OnChange registers fn to run after every successful reload.
func (s *Source) OnChange(fn func(Settings)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *Source) Reload() error {
	settings, err := Load(s.path)
	if err != nil {
		return err
	}
	s.cur.Store(&settings)

	s.mu.Lock()
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn(settings)
	}
	return nil
}

// Watch reloads the settings whenever the file changes, until ctx is done.
// Editors often replace the file instead of writing it, so the directory is
// watched rather than the file. Watch returns once the watcher is armed.
func (s *Source) Watch(ctx context.Context) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating settings dir: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("settings watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	go s.watchLoop(ctx, w)
	return nil
}

func (s *Source) watchLoop(ctx context.Context, w *fsnotify.Watcher) {
	defer w.Close()

	timer := time.NewTimer(reloadDebounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != s.path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) || ev.Has(fsnotify.Remove) {
				timer.Reset(reloadDebounce)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			log.Warnf("settings watcher: %v", err)
		case <-timer.C:
			if err := s.Reload(); err != nil {
				log.Warnf("settings reload: %v", err)
				continue
			}
			log.Info("settings reloaded")
		}
	}
}
