package session

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"murmur/log"
	"murmur/memory"
	"murmur/metrics"
	"murmur/transcriber"
)

const (
	eventQueue   = 64
	maxNoticeLen = 160
)

var lineBreaks = strings.NewReplacer("\r\n", "", "\n", "", "\r", "")

// Orchestrator owns the dictation state machine. Every input and every
// async result is a closure run on the Run goroutine, so session state
// needs no locking; results carry the session they belong to and are
// dropped when it is no longer current.
type Orchestrator struct {
	recorder     Recorder
	clients      ClientFactory
	settings     SettingsSource
	settingsPath string
	memory       MemoryLoader
	learner      Learner
	paster       Paster
	view         View
	foreground   Foreground
	screen       ScreenCapturer

	events chan func()
	done   chan struct{}
	ctx    context.Context

	state    atomic.Int32
	styleGen atomic.Uint64
	cur      *session
}

func New(d Deps) *Orchestrator {
	fg := d.Foreground
	if fg == nil {
		fg = NopForeground{}
	}
	return &Orchestrator{
		recorder:     d.Recorder,
		clients:      d.Clients,
		settings:     d.Settings,
		settingsPath: d.SettingsPath,
		memory:       d.Memory,
		learner:      d.Learner,
		paster:       d.Paster,
		view:         d.View,
		foreground:   fg,
		screen:       d.Screen,
		events:       make(chan func(), eventQueue),
		done:         make(chan struct{}),
		ctx:          context.Background(),
	}
}

// Run processes events until ctx is cancelled, then discards any session
// in flight. It must be called exactly once.
func (o *Orchestrator) Run(ctx context.Context) {
	o.ctx = ctx
	defer close(o.done)
	for {
		select {
		case fn := <-o.events:
			o.exec(fn)
		case <-ctx.Done():
			if s := o.cur; s != nil {
				o.exec(func() { o.end(s, metrics.OutcomeCancelled) })
			}
			return
		}
	}
}

// Done is closed once Run has returned.
func (o *Orchestrator) Done() <-chan struct{} { return o.done }

// State reports the current state. Safe from any goroutine.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

func (o *Orchestrator) HotkeyPressed()       { o.post(o.onHotkey) }
func (o *Orchestrator) StopRecording()       { o.post(o.onStop) }
func (o *Orchestrator) Confirm()             { o.post(o.onConfirm) }
func (o *Orchestrator) Cancel()              { o.post(o.onCancel) }
func (o *Orchestrator) StartStyleRecording() { o.post(o.onStartStyle) }
func (o *Orchestrator) UndoStyle()           { o.post(o.onUndoStyle) }
func (o *Orchestrator) Edit(text string)     { o.post(func() { o.onEdit(text) }) }

func (o *Orchestrator) post(fn func()) {
	select {
	case o.events <- fn:
	case <-o.done:
	}
}

func (o *Orchestrator) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("session handler panic: %v\n%s", r, debug.Stack())
			o.forceIdle()
		}
	}()
	fn()
}

// forceIdle drops the current session after a handler panic. Each cleanup
// step is isolated so one failing collaborator cannot wedge the machine.
func (o *Orchestrator) forceIdle() {
	s := o.cur
	if s == nil {
		o.state.Store(int32(Idle))
		return
	}
	o.cur = nil
	o.state.Store(int32(Idle))
	s.cancel()
	try(func() { o.discardCapture(s) })
	try(func() { removeAudio(s.audio) })
	try(o.view.Close)
	try(func() { o.view.Notify(Notice{Kind: NoticeFailure, Message: "Internal error, dictation discarded"}) })
	log.StateChange(s.id, s.state.String(), Idle.String())
	log.SessionEnd(s.id, metrics.OutcomeFailed, 0)
	metrics.RecordSession(metrics.OutcomeFailed)
}

func try(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("cleanup panic: %v", r)
		}
	}()
	fn()
}

func (o *Orchestrator) setState(s *session, to State) {
	from := s.state
	s.state = to
	o.state.Store(int32(to))
	log.StateChange(s.id, from.String(), to.String())
}

// current returns s if it is still the live session in one of the given
// states.
func (o *Orchestrator) current(s *session, states ...State) bool {
	if o.cur != s || s == nil {
		return false
	}
	for _, st := range states {
		if s.state == st {
			return true
		}
	}
	return false
}

func (o *Orchestrator) onHotkey() {
	s := o.cur
	if s == nil {
		o.begin()
		return
	}
	switch s.state {
	case Recording:
		o.stopRecording(s)
	case Streaming, Preview:
		o.cancelSession(s)
	case StyleRecording:
		o.stopStyleRecording(s)
	case StyleStreaming:
		o.cancelStyle(s)
	}
}

func (o *Orchestrator) onStop() {
	s := o.cur
	if s == nil {
		return
	}
	switch s.state {
	case Recording:
		o.stopRecording(s)
	case StyleRecording:
		o.stopStyleRecording(s)
	}
}

func (o *Orchestrator) onCancel() {
	s := o.cur
	if s == nil {
		return
	}
	switch s.state {
	case Recording, Streaming, Preview:
		o.cancelSession(s)
	case StyleRecording:
		o.discardCapture(s)
		o.restoreStyle(s, metrics.StyleCancelled)
	case StyleStreaming:
		o.cancelStyle(s)
	}
}

func (o *Orchestrator) onEdit(text string) {
	if s := o.cur; o.current(s, Preview) {
		s.text = text
	}
}

func (o *Orchestrator) begin() {
	settings := o.settings.Current()
	if !settings.HasCredentials() {
		log.Warn("hotkey ignored: no API key configured")
		o.view.Notify(Notice{
			Kind:    NoticeSettingsRequired,
			Message: "Add your Gemini API key to the settings file to start dictating",
			Path:    o.settingsPath,
		})
		return
	}
	client, err := o.clients(settings)
	if err != nil {
		log.Errorf("creating transcription client: %v", err)
		o.view.Notify(Notice{Kind: NoticeFailure, Message: oneLine(err)})
		return
	}

	window := o.foreground.Current()
	autoStop, err := o.recorder.Start()
	if err != nil {
		log.Errorf("starting capture: %v", err)
		metrics.RecordSession(metrics.OutcomeFailed)
		o.view.Notify(Notice{Kind: NoticeFailure, Message: oneLine(fmt.Errorf("could not start recording: %w", err))})
		return
	}

	ctx, cancel := context.WithCancel(o.ctx)
	s := &session{
		id:       uuid.NewString()[:8],
		ctx:      ctx,
		cancel:   cancel,
		settings: settings,
		client:   client,
		window:   window,
		capture:  1,
		started:  time.Now(),
	}
	o.cur = s
	log.SessionStart(s.id, settings.TranscriptionModel, settings.Language, settings.ScreenContext)
	o.setState(s, Recording)
	o.view.ShowRecording()

	if w, ok := client.(interface{ Warm(context.Context) }); ok {
		go w.Warm(ctx)
	}
	if settings.ScreenContext && o.screen != nil {
		s.screen = o.describeScreen(s)
	}
	o.watchAutoStop(s, autoStop, s.capture, Recording)
}

// describeScreen starts the best-effort screen context lookup. The result
// is always delivered, empty on any failure.
func (o *Orchestrator) describeScreen(s *session) <-chan string {
	ch := make(chan string, 1)
	go func() {
		hint := ""
		defer func() { ch <- hint }()
		img, err := o.screen.CaptureForegroundWindow(s.window)
		if err != nil {
			log.Warnf("screen capture: %v", err)
			return
		}
		terms, err := s.client.DescribeScreen(s.ctx, img)
		if err != nil {
			log.Warnf("describing screen: %v", err)
			return
		}
		hint = terms
	}()
	return ch
}

func awaitScreen(ctx context.Context, ch <-chan string) string {
	if ch == nil {
		return ""
	}
	select {
	case hint := <-ch:
		return hint
	case <-ctx.Done():
		return ""
	}
}

// watchAutoStop turns the capture's auto-stop channel into a stop event for
// that capture only.
func (o *Orchestrator) watchAutoStop(s *session, ch <-chan struct{}, capture int, expected State) {
	go func() {
		select {
		case <-ch:
			o.post(func() {
				if !o.current(s, expected) || s.capture != capture {
					return
				}
				log.Infof("session_autostop id=%s state=%s", s.id, expected)
				if expected == Recording {
					o.stopRecording(s)
				} else {
					o.stopStyleRecording(s)
				}
			})
		case <-s.ctx.Done():
		}
	}()
}

func (o *Orchestrator) stopRecording(s *session) {
	o.setState(s, Streaming)
	o.view.ShowProcessing()
	ctx, cancel := context.WithCancel(s.ctx)
	s.op = cancel
	go o.transcribe(ctx, s)
}

// transcribe runs on its own goroutine and posts every fragment in order.
func (o *Orchestrator) transcribe(ctx context.Context, s *session) {
	path, err := o.recorder.Stop()
	if err != nil {
		o.post(func() { o.streamFailed(s, fmt.Errorf("finishing capture: %w", err)) })
		return
	}
	o.post(func() { o.adoptAudio(s, path) })

	hint := awaitScreen(ctx, s.screen)
	mem, err := o.loadMemory()
	if err != nil {
		log.Warnf("loading memory, transcribing without it: %v", err)
	}
	req := transcriber.Request{
		AudioPath:  path,
		Memory:     mem,
		Language:   s.settings.Language,
		ScreenHint: hint,
	}

	start := time.Now()
	for frag, err := range s.client.TranscribeStream(ctx, req) {
		if err != nil {
			o.post(func() { o.streamFailed(s, err) })
			return
		}
		frag = lineBreaks.Replace(frag)
		if frag == "" {
			continue
		}
		o.post(func() { o.onFragment(s, frag) })
	}
	if ctx.Err() != nil {
		return
	}
	elapsed := time.Since(start)
	o.post(func() { o.streamDone(s, elapsed) })
}

func (o *Orchestrator) loadMemory() (memory.Document, error) {
	if o.memory == nil {
		return memory.Document{}, nil
	}
	mem, err := o.memory.Load()
	if err != nil {
		return memory.Document{}, err
	}
	return mem, nil
}

// adoptAudio takes ownership of a finished capture file, or deletes it if
// the session is already gone.
func (o *Orchestrator) adoptAudio(s *session, path string) {
	if o.cur != s {
		removeAudio(path)
		return
	}
	if s.audio != "" && s.audio != path {
		removeAudio(s.audio)
	}
	s.audio = path
}

func (o *Orchestrator) onFragment(s *session, frag string) {
	if !o.current(s, Streaming) {
		return
	}
	if s.fragments == 0 {
		o.view.ShowStreaming()
	}
	s.fragments++
	s.text += frag
	log.Debugf("session_fragment id=%s n=%d chars=%d", s.id, s.fragments, len(frag))
	o.view.AppendText(frag)
}

func (o *Orchestrator) streamDone(s *session, elapsed time.Duration) {
	if !o.current(s, Streaming) {
		return
	}
	metrics.ObserveTranscription(elapsed)
	text := strings.TrimSpace(s.text)
	if s.fragments == 0 || text == "" {
		log.Infof("session_empty id=%s", s.id)
		o.view.Notify(Notice{Kind: NoticeNoSpeech, Message: "No speech detected"})
		o.hide(s)
		o.end(s, metrics.OutcomeEmpty)
		return
	}
	s.op = nil
	s.text = text
	s.original = text
	o.view.SetText(text)
	o.view.ShowEditing()
	o.setState(s, Preview)
}

func (o *Orchestrator) streamFailed(s *session, err error) {
	if !o.current(s, Streaming) || errors.Is(err, context.Canceled) {
		return
	}
	log.Errorf("session %s transcription failed: %v", s.id, err)
	o.view.Notify(Notice{Kind: NoticeFailure, Message: oneLine(err)})
	o.hide(s)
	o.end(s, metrics.OutcomeFailed)
}

func (o *Orchestrator) onConfirm() {
	s := o.cur
	if !o.current(s, Preview) {
		return
	}
	text, original := s.text, s.original
	o.foreground.Restore(s.window)
	o.view.Close()
	delay := s.settings.PasteDelay
	client := s.client
	o.end(s, metrics.OutcomeConfirmed)

	log.TranscriptionText(text)
	if strings.TrimSpace(text) != "" {
		go o.paste(text, delay)
	}
	if o.learner != nil && strings.TrimSpace(original) != "" && text != original {
		o.learner.Enqueue(client, original, text)
	}
}

func (o *Orchestrator) paste(text string, delay time.Duration) {
	ctx := o.ctx
	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return
		}
	}
	if err := o.paster.SetClipboardAndPaste(ctx, text); err != nil && !errors.Is(err, context.Canceled) {
		log.Errorf("paste failed: %v", err)
		o.view.Notify(Notice{Kind: NoticeFailure, Message: oneLine(fmt.Errorf("paste failed: %w", err))})
	}
}

func (o *Orchestrator) cancelSession(s *session) {
	o.hide(s)
	o.end(s, metrics.OutcomeCancelled)
}

// hide closes the view and gives focus back once it is gone.
func (o *Orchestrator) hide(s *session) {
	fg, w := o.foreground, s.window
	o.view.HideWithAnimation(func() { fg.Restore(w) })
}

// end returns the machine to Idle and releases everything the session
// held. Safe to reach from any state.
func (o *Orchestrator) end(s *session, outcome string) {
	if o.cur != s {
		return
	}
	from := s.state
	o.cur = nil
	o.state.Store(int32(Idle))
	s.cancel()
	o.discardCapture(s)
	removeAudio(s.audio)
	s.audio = ""
	s.beforeStyle, s.beforeOrig, s.styled = "", "", ""
	s.canUndo = false

	log.StateChange(s.id, from.String(), Idle.String())
	log.SessionEnd(s.id, outcome, time.Since(s.started))
	metrics.RecordSession(outcome)
}

// discardCapture drops a capture that is still running.
func (o *Orchestrator) discardCapture(s *session) {
	if s.state == Recording || s.state == StyleRecording {
		o.recorder.Discard()
	}
}

func removeAudio(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warnf("removing %s: %v", path, err)
	}
}

// oneLine shortens an error for a notice.
func oneLine(err error) string {
	msg := err.Error()
	if i := strings.IndexAny(msg, "\r\n"); i >= 0 {
		msg = msg[:i]
	}
	if r := []rune(msg); len(r) > maxNoticeLen {
		msg = string(r[:maxNoticeLen-1]) + "…"
	}
	return msg
}
