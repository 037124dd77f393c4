package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"murmur/audio"
	"murmur/config"
	"murmur/learning"
	"murmur/memory"
	"murmur/transcriber"
)

type fakeView struct {
	mu      sync.Mutex
	events  []string
	text    string
	notices []Notice
	panicOn string
}

func (v *fakeView) record(ev string) {
	v.mu.Lock()
	v.events = append(v.events, ev)
	panicking := v.panicOn != "" && v.panicOn == ev
	v.mu.Unlock()
	if panicking {
		panic("view failure on " + ev)
	}
}

func (v *fakeView) ShowRecording()      { v.record("recording") }
func (v *fakeView) ShowStyleRecording() { v.record("style_recording") }
func (v *fakeView) ShowProcessing()     { v.record("processing") }
func (v *fakeView) ShowStreaming()      { v.record("streaming") }
func (v *fakeView) ShowEditing()        { v.record("editing") }
func (v *fakeView) Close()              { v.record("close") }

func (v *fakeView) AppendText(fragment string) {
	v.mu.Lock()
	v.text += fragment
	v.mu.Unlock()
	v.record("append:" + fragment)
}

func (v *fakeView) SetText(text string) {
	v.mu.Lock()
	v.text = text
	v.mu.Unlock()
	v.record("set:" + text)
}

func (v *fakeView) HideWithAnimation(onDone func()) {
	v.record("hide")
	if onDone != nil {
		onDone()
	}
}

func (v *fakeView) Notify(n Notice) {
	v.mu.Lock()
	v.notices = append(v.notices, n)
	v.mu.Unlock()
}

func (v *fakeView) Text() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.text
}

func (v *fakeView) Events() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.events...)
}

func (v *fakeView) Notices() []Notice {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]Notice(nil), v.notices...)
}

func (v *fakeView) has(ev string) bool {
	for _, e := range v.Events() {
		if e == ev {
			return true
		}
	}
	return false
}

type fakePaster struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (p *fakePaster) SetClipboardAndPaste(_ context.Context, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.texts = append(p.texts, text)
	return p.err
}

func (p *fakePaster) Texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.texts...)
}

type fakeLearner struct {
	mu    sync.Mutex
	pairs [][2]string
}

func (l *fakeLearner) Enqueue(_ learning.Analyzer, original, corrected string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pairs = append(l.pairs, [2]string{original, corrected})
}

func (l *fakeLearner) Pairs() [][2]string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([][2]string(nil), l.pairs...)
}

type fakeScreen struct {
	err error
}

func (f fakeScreen) CaptureForegroundWindow(Window) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte{0xff, 0xd8, 0xff}, nil
}

type recordingForeground struct {
	mu       sync.Mutex
	restored int
}

func (f *recordingForeground) Current() Window { return "editor" }

func (f *recordingForeground) Restore(w Window) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if w == "editor" {
		f.restored++
	}
}

func (f *recordingForeground) Restored() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.restored
}

type harness struct {
	o        *Orchestrator
	rec      *audio.Recorder
	dev      *audio.FakeCapture
	audioDir string
	client   *transcriber.Fake
	view     *fakeView
	paster   *fakePaster
	learner  *fakeLearner
	store    *memory.Store
	fg       *recordingForeground
	stop     func()
}

type options struct {
	settings    func(*config.Settings)
	maxDuration time.Duration
	screen      ScreenCapturer
	clientErr   error
}

func newHarness(t *testing.T, client *transcriber.Fake, opts options) *harness {
	t.Helper()
	settings := config.Defaults()
	settings.APIKey = "test-key"
	settings.PasteDelay = 10 * time.Millisecond
	if opts.settings != nil {
		opts.settings(&settings)
	}

	h := &harness{
		audioDir: t.TempDir(),
		client:   client,
		view:     &fakeView{},
		paster:   &fakePaster{},
		learner:  &fakeLearner{},
		store:    memory.NewStore(filepath.Join(t.TempDir(), "memory.json")),
		fg:       &recordingForeground{},
	}
	// 200ms of silence at 16 kHz mono
	h.dev = audio.NewFakeCapture(make([]byte, 6400), audio.CaptureConfig{SampleRate: 16000, Channels: 1})
	h.rec = audio.NewRecorder(h.dev, audio.RecorderConfig{Dir: h.audioDir, MaxDuration: opts.maxDuration})
	t.Cleanup(h.rec.Close)

	h.o = New(Deps{
		Recorder: h.rec,
		Clients: func(config.Settings) (transcriber.Client, error) {
			if opts.clientErr != nil {
				return nil, opts.clientErr
			}
			return client, nil
		},
		Settings:     config.StaticSource(settings),
		SettingsPath: "/home/user/.config/murmur/settings.yaml",
		Memory:       h.store,
		Learner:      h.learner,
		Paster:       h.paster,
		View:         h.view,
		Foreground:   h.fg,
		Screen:       opts.screen,
	})
	ctx, cancel := context.WithCancel(context.Background())
	go h.o.Run(ctx)
	h.stop = func() {
		cancel()
		<-h.o.done
	}
	t.Cleanup(h.stop)
	return h
}

// do runs fn on the orchestrator goroutine and waits for it.
func (h *harness) do(fn func()) {
	done := make(chan struct{})
	h.o.post(func() {
		defer close(done)
		fn()
	})
	<-done
}

func (h *harness) audioFiles(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(h.audioDir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

// toPreview records and streams a dictation, stopping with the hotkey.
func (h *harness) toPreview(t *testing.T) {
	t.Helper()
	h.o.HotkeyPressed()
	waitState(t, h.o, Recording)
	h.o.HotkeyPressed()
	waitState(t, h.o, Preview)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func waitState(t *testing.T, o *Orchestrator, want State) {
	t.Helper()
	waitFor(t, "state "+want.String(), func() bool { return o.State() == want })
}

func joinEvents(evs []string) string {
	return strings.Join(evs, ", ")
}
