package session

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"murmur/metrics"
	"murmur/transcriber"
)

func styleClient() *transcriber.Fake {
	c := transcriber.NewFake("hello world")
	c.InstructionFragments = []string{"make it", " formal"}
	c.ReformatFragments = []string{"Hello, ", "world."}
	return c
}

// restyle runs a full style round trip from Preview and waits until the
// machine is back in Preview.
func (h *harness) restyle(t *testing.T) {
	t.Helper()
	h.o.StartStyleRecording()
	waitState(t, h.o, StyleRecording)
	h.o.HotkeyPressed()
	waitFor(t, "style result", func() bool {
		var done bool
		h.do(func() { done = h.o.cur != nil && h.o.cur.state == Preview })
		return done
	})
}

func TestStyleAppliesReformat(t *testing.T) {
	applied := testutil.ToFloat64(metrics.StyleOperations.WithLabelValues(metrics.StyleApplied))
	h := newHarness(t, styleClient(), options{})
	h.toPreview(t)
	h.restyle(t)

	if got := h.view.Text(); got != "Hello, world." {
		t.Fatalf("view text = %q", got)
	}
	if got := testutil.ToFloat64(metrics.StyleOperations.WithLabelValues(metrics.StyleApplied)); got != applied+1 {
		t.Errorf("applied = %v, want %v", got, applied+1)
	}
	if h.dev.Starts() != 2 {
		t.Errorf("capture started %d times, want 2", h.dev.Starts())
	}

	h.o.Confirm()
	waitFor(t, "paste", func() bool { return len(h.paster.Texts()) == 1 })
	if got := h.paster.Texts()[0]; got != "Hello, world." {
		t.Errorf("pasted %q", got)
	}
	if pairs := h.learner.Pairs(); len(pairs) != 0 {
		t.Errorf("reformat alone should not be learned: %v", pairs)
	}
}

func TestStyleEditAfterReformatLearnsAgainstReformat(t *testing.T) {
	h := newHarness(t, styleClient(), options{})
	h.toPreview(t)
	h.restyle(t)

	h.o.Edit("Hello, world!")
	h.o.Confirm()
	waitFor(t, "learning", func() bool { return len(h.learner.Pairs()) == 1 })
	if got := h.learner.Pairs()[0]; got != [2]string{"Hello, world.", "Hello, world!"} {
		t.Errorf("pair = %v", got)
	}
}

func TestUndoStyleRestoresTextAndBaseline(t *testing.T) {
	h := newHarness(t, styleClient(), options{})
	h.toPreview(t)
	h.restyle(t)

	h.o.UndoStyle()
	h.do(func() {})
	if got := h.view.Text(); got != "hello world" {
		t.Fatalf("view text after undo = %q", got)
	}
	// a second undo has nothing to restore
	h.o.UndoStyle()
	h.o.Edit("hello world!")
	h.o.Confirm()
	waitFor(t, "learning", func() bool { return len(h.learner.Pairs()) == 1 })
	if got := h.learner.Pairs()[0]; got != [2]string{"hello world", "hello world!"} {
		t.Errorf("pair = %v", got)
	}
}

func TestUndoStyleWithoutReformatIgnored(t *testing.T) {
	h := newHarness(t, styleClient(), options{})
	h.toPreview(t)
	h.o.Edit("edited")
	h.o.UndoStyle()
	h.o.Confirm()
	waitFor(t, "paste", func() bool { return len(h.paster.Texts()) == 1 })
	if got := h.paster.Texts()[0]; got != "edited" {
		t.Errorf("pasted %q", got)
	}
}

func TestStyleCancelDuringRecordingRestores(t *testing.T) {
	h := newHarness(t, styleClient(), options{})
	h.toPreview(t)
	h.o.Edit("hello  world, edited ✓")

	h.o.StartStyleRecording()
	waitState(t, h.o, StyleRecording)
	h.o.Cancel()
	h.do(func() {})

	if got := h.o.State(); got != Preview {
		t.Fatalf("state = %s", got)
	}
	if got := h.view.Text(); got != "hello  world, edited ✓" {
		t.Errorf("text not restored byte for byte: %q", got)
	}
	if h.rec.Active() || h.dev.Running() {
		t.Error("style capture still running")
	}
	if h.client.Calls("TranscribeStyleInstruction") != 0 {
		t.Error("cancelled style recording was transcribed")
	}
}

func TestStyleCancelDuringStreamingRestores(t *testing.T) {
	client := styleClient()
	h := newHarness(t, client, options{})
	h.toPreview(t)
	client.Gate = make(chan struct{})

	h.o.StartStyleRecording()
	waitState(t, h.o, StyleRecording)
	h.o.HotkeyPressed()
	waitState(t, h.o, StyleStreaming)
	// two instruction fragments, then the first reformat fragment
	for range 3 {
		client.Gate <- struct{}{}
	}
	waitFor(t, "reformat fragment", func() bool { return h.view.Text() == "Hello, " })

	h.o.HotkeyPressed()
	h.do(func() {})
	if got := h.o.State(); got != Preview {
		t.Fatalf("state = %s", got)
	}
	if got := h.view.Text(); got != "hello world" {
		t.Errorf("text = %q, want the pre-style text", got)
	}

	before := len(h.view.Events())
	time.Sleep(20 * time.Millisecond)
	h.do(func() {})
	if after := len(h.view.Events()); after != before {
		t.Errorf("view changed after style cancel: %s", joinEvents(h.view.Events()[before:]))
	}
}

func TestStaleStyleResultsIgnored(t *testing.T) {
	stale := testutil.ToFloat64(metrics.StyleOperations.WithLabelValues(metrics.StyleStale))
	client := styleClient()
	h := newHarness(t, client, options{})
	h.toPreview(t)
	client.Gate = make(chan struct{})

	h.o.StartStyleRecording()
	waitState(t, h.o, StyleRecording)
	var s *session
	var gen uint64
	h.do(func() { s, gen = h.o.cur, h.o.cur.styleGen })
	h.o.HotkeyPressed()
	waitState(t, h.o, StyleStreaming)
	h.o.Cancel()
	h.do(func() {})

	before := h.view.Events()
	h.do(func() {
		h.o.onStyleFragment(s, gen, "stale")
		h.o.styleFailed(s, gen, errors.New("late failure"))
		h.o.styleDone(s, gen)
	})
	if after := h.view.Events(); len(after) != len(before) {
		t.Errorf("stale results mutated the view: %s", joinEvents(after[len(before):]))
	}
	if got := h.view.Text(); got != "hello world" {
		t.Errorf("text = %q", got)
	}
	if got := h.o.State(); got != Preview {
		t.Errorf("state = %s", got)
	}
	if got := testutil.ToFloat64(metrics.StyleOperations.WithLabelValues(metrics.StyleStale)); got != stale+1 {
		t.Errorf("stale = %v, want %v", got, stale+1)
	}
}

func TestStaleStyleResultsIgnoredWhileNewerRuns(t *testing.T) {
	client := styleClient()
	h := newHarness(t, client, options{})
	h.toPreview(t)
	client.Gate = make(chan struct{})

	// first style operation, parked inside the instruction transcription
	h.o.StartStyleRecording()
	waitState(t, h.o, StyleRecording)
	var s *session
	var first uint64
	h.do(func() { s, first = h.o.cur, h.o.cur.styleGen })
	h.o.HotkeyPressed()
	waitFor(t, "first instruction call", func() bool { return client.Calls("TranscribeStyleInstruction") == 1 })
	h.o.Cancel()
	waitState(t, h.o, Preview)

	// second operation takes over
	h.o.StartStyleRecording()
	waitState(t, h.o, StyleRecording)
	h.o.HotkeyPressed()
	waitState(t, h.o, StyleStreaming)
	var second uint64
	h.do(func() { second = h.o.cur.styleGen })
	if second == first {
		t.Fatal("second operation reused the generation")
	}

	before := h.view.Events()
	var styled string
	h.do(func() {
		h.o.onStyleFragment(s, first, "stale")
		h.o.styleDone(s, first)
		styled = s.styled
	})
	if after := h.view.Events(); len(after) != len(before) {
		t.Errorf("older results mutated the view: %s", joinEvents(after[len(before):]))
	}
	if styled != "" {
		t.Errorf("styled = %q, want nothing from the older operation", styled)
	}
	if got := h.o.State(); got != StyleStreaming {
		t.Errorf("state = %s, want StyleStreaming", got)
	}

	close(client.Gate)
	waitFor(t, "second result", func() bool { return h.view.Text() == "Hello, world." })
	waitState(t, h.o, Preview)
}

func TestStyleBlankInstructionRestores(t *testing.T) {
	client := styleClient()
	client.InstructionFragments = []string{"  "}
	h := newHarness(t, client, options{})
	h.toPreview(t)
	h.restyle(t)

	if got := h.view.Text(); got != "hello world" {
		t.Errorf("text = %q", got)
	}
	if client.Calls("ReformatStream") != 0 {
		t.Error("reformat requested without an instruction")
	}
	if n := len(h.view.Notices()); n != 0 {
		t.Errorf("blank instruction raised %d notices", n)
	}
}

func TestStyleReformatErrorRestores(t *testing.T) {
	client := styleClient()
	client.ReformatErr = errors.New("model overloaded")
	h := newHarness(t, client, options{})
	h.toPreview(t)
	h.restyle(t)

	if got := h.view.Text(); got != "hello world" {
		t.Errorf("text = %q", got)
	}
	if notices := h.view.Notices(); len(notices) != 0 {
		t.Errorf("restyle failure reached the user: %+v", notices)
	}
	if got := h.o.State(); got != Preview {
		t.Errorf("state = %s, want Preview", got)
	}

	// the session is still usable
	h.o.Confirm()
	waitFor(t, "paste", func() bool { return len(h.paster.Texts()) == 1 })
	if got := h.paster.Texts()[0]; got != "hello world" {
		t.Errorf("pasted %q", got)
	}
}

func TestStyleBlankReformatRestores(t *testing.T) {
	client := styleClient()
	client.ReformatFragments = []string{" ", "\n"}
	h := newHarness(t, client, options{})
	h.toPreview(t)
	h.restyle(t)
	if got := h.view.Text(); got != "hello world" {
		t.Errorf("text = %q", got)
	}
}

func TestHotkeyCancelsSessionAfterStyle(t *testing.T) {
	h := newHarness(t, styleClient(), options{})
	h.toPreview(t)
	h.restyle(t)
	h.o.HotkeyPressed()
	h.do(func() {})
	if got := h.o.State(); got != Idle {
		t.Fatalf("state = %s", got)
	}
	waitFor(t, "audio cleanup", func() bool { return len(h.audioFiles(t)) == 0 })
}
