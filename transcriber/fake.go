package transcriber

import (
	"context"
	"iter"
	"sync"

	"murmur/memory"
)

// Fake is a scripted Client for tests. Set the fields before handing it to
// the code under test.
type Fake struct {
	Fragments []string
	Err       error

	InstructionFragments []string
	InstructionErr       error

	ReformatFragments []string
	ReformatErr       error

	ScreenTerms string
	ScreenErr   error

	Analysis    *memory.Document
	AnalysisErr error

	// Compacted replaces the input when set; the rule cap and difficult
	// word guarantees still apply.
	Compacted  *memory.Document
	CompactErr error

	// Gate, when non-nil, must receive once before each streamed fragment.
	Gate chan struct{}

	mu       sync.Mutex
	calls    map[string]int
	requests []Request
	analyzed [][2]string
}

func NewFake(fragments ...string) *Fake {
	return &Fake{Fragments: fragments}
}

func (f *Fake) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[name]++
}

// Calls reports how many times the named method reached the remote side.
func (f *Fake) Calls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *Fake) Requests() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Request(nil), f.requests...)
}

// Analyzed returns the (original, corrected) pairs sent for analysis.
func (f *Fake) Analyzed() [][2]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][2]string(nil), f.analyzed...)
}

func (f *Fake) TranscribeStream(ctx context.Context, req Request) iter.Seq2[string, error] {
	f.record("TranscribeStream")
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.stream(ctx, f.Fragments, f.Err)
}

func (f *Fake) TranscribeStyleInstruction(ctx context.Context, _ string) iter.Seq2[string, error] {
	f.record("TranscribeStyleInstruction")
	return f.stream(ctx, f.InstructionFragments, f.InstructionErr)
}

func (f *Fake) ReformatStream(ctx context.Context, _, _ string) iter.Seq2[string, error] {
	f.record("ReformatStream")
	return f.stream(ctx, f.ReformatFragments, f.ReformatErr)
}

func (f *Fake) stream(ctx context.Context, frags []string, err error) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, s := range frags {
			if f.Gate != nil {
				select {
				case <-f.Gate:
				case <-ctx.Done():
					yield("", ctx.Err())
					return
				}
			}
			if ctx.Err() != nil {
				yield("", ctx.Err())
				return
			}
			if s == "" {
				continue
			}
			if !yield(s, nil) {
				return
			}
		}
		if err != nil {
			yield("", err)
		}
	}
}

func (f *Fake) DescribeScreen(ctx context.Context, _ []byte) (string, error) {
	f.record("DescribeScreen")
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return f.ScreenTerms, f.ScreenErr
}

func (f *Fake) AnalyzeCorrection(_ context.Context, original, corrected string, mem memory.Document) (*memory.Document, error) {
	if original == corrected {
		return nil, nil
	}
	f.record("AnalyzeCorrection")
	f.mu.Lock()
	f.analyzed = append(f.analyzed, [2]string{original, corrected})
	f.mu.Unlock()
	if f.AnalysisErr != nil {
		return nil, f.AnalysisErr
	}
	if f.Analysis == nil {
		return nil, nil
	}
	doc := f.Analysis.Clone()
	return &doc, nil
}

func (f *Fake) CompactMemory(_ context.Context, mem memory.Document) (memory.Document, error) {
	f.record("CompactMemory")
	if f.CompactErr != nil {
		return mem, f.CompactErr
	}
	out := mem.Clone()
	if f.Compacted != nil {
		out = f.Compacted.Clone()
	}
	return enforceCompaction(mem, out), nil
}
