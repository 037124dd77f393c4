// Package learning turns user corrections of a transcription into updates
// of the memory document, off the interactive path.
package learning

import (
	"context"
	"fmt"
	"sync"
	"time"

	"murmur/log"
	"murmur/memory"
	"murmur/metrics"
)

// DefaultTimeout bounds one whole run including the optional compaction.
const DefaultTimeout = 2 * time.Minute

// Analyzer is the part of the transcription client the loop needs.
type Analyzer interface {
	AnalyzeCorrection(ctx context.Context, original, corrected string, mem memory.Document) (*memory.Document, error)
	CompactMemory(ctx context.Context, mem memory.Document) (memory.Document, error)
}

type Loop struct {
	store   *memory.Store
	timeout time.Duration

	wg sync.WaitGroup
}

func New(store *memory.Store) *Loop {
	return &Loop{store: store, timeout: DefaultTimeout}
}

func (l *Loop) Store() *memory.Store { return l.store }

// Enqueue runs the loop on its own goroutine. Errors are logged and
// counted, never returned.
func (l *Loop) Enqueue(a Analyzer, original, corrected string) {
	if original == corrected {
		metrics.RecordLearning(metrics.LearningSkipped)
		return
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
		defer cancel()
		if _, err := l.Run(ctx, a, original, corrected); err != nil {
			log.Warnf("learning: %v", err)
		}
	}()
}

// Wait blocks until enqueued runs finish or timeout passes. It reports
// whether everything finished.
func (l *Loop) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Run performs one learning pass while holding the store's update permit
// and returns the result label it recorded.
func (l *Loop) Run(ctx context.Context, a Analyzer, original, corrected string) (result string, err error) {
	start := time.Now()
	tokens := 0
	defer func() {
		if r := recover(); r != nil {
			result, err = metrics.LearningFailed, fmt.Errorf("panic: %v", r)
		}
		metrics.RecordLearning(result)
		log.LearningResult(result, tokens, time.Since(start))
	}()

	if original == corrected {
		return metrics.LearningSkipped, nil
	}

	if err := l.store.Acquire(ctx); err != nil {
		return metrics.LearningFailed, fmt.Errorf("waiting for memory: %w", err)
	}
	defer l.store.Release()

	current, err := l.store.Load()
	if err != nil {
		return metrics.LearningFailed, err
	}
	updated, err := a.AnalyzeCorrection(ctx, original, corrected, current)
	if err != nil {
		return metrics.LearningFailed, err
	}
	if updated == nil {
		return metrics.LearningNoUpdate, nil
	}
	if err := l.store.Save(*updated); err != nil {
		return metrics.LearningFailed, err
	}

	tokens = memory.EstimateTokens(*updated)
	if tokens <= memory.TokenBudget {
		return metrics.LearningUpdated, nil
	}
	compacted, err := Compact(ctx, l.store, a, *updated)
	if err != nil {
		// the update itself is saved
		return metrics.LearningUpdated, err
	}
	tokens = memory.EstimateTokens(compacted)
	return metrics.LearningCompacted, nil
}

// Compact shrinks doc with the analyzer and saves the result. The caller
// must hold the store's permit.
func Compact(ctx context.Context, store *memory.Store, a Analyzer, doc memory.Document) (memory.Document, error) {
	compacted, err := a.CompactMemory(ctx, doc)
	if err != nil {
		return doc, fmt.Errorf("compacting memory: %w", err)
	}
	if err := store.Save(compacted); err != nil {
		return doc, err
	}
	log.Infof("memory compacted: %d -> %d tokens", memory.EstimateTokens(doc), memory.EstimateTokens(compacted))
	return compacted, nil
}
