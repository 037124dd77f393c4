// Package session drives one dictation at a time: capture, streaming
// transcription, editing, voice restyling and the hand-off to the paste
// and learning steps.
package session

import (
	"context"
	"time"

	"murmur/config"
	"murmur/learning"
	"murmur/memory"
	"murmur/transcriber"
)

type State int32

const (
	Idle State = iota
	Recording
	Streaming
	Preview
	StyleRecording
	StyleStreaming
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Streaming:
		return "streaming"
	case Preview:
		return "preview"
	case StyleRecording:
		return "style_recording"
	case StyleStreaming:
		return "style_streaming"
	}
	return "unknown"
}

type NoticeKind int

const (
	// NoticeSettingsRequired asks the user to configure an API key; Path
	// names the settings file.
	NoticeSettingsRequired NoticeKind = iota
	NoticeNoSpeech
	NoticeFailure
)

type Notice struct {
	Kind    NoticeKind
	Message string
	Path    string
}

// View is the presentation layer. Methods are called from the orchestrator
// goroutine and must not block.
type View interface {
	ShowRecording()
	ShowStyleRecording()
	ShowProcessing()
	ShowStreaming()
	AppendText(fragment string)
	SetText(text string)
	ShowEditing()
	Close()
	HideWithAnimation(onDone func())
	Notify(n Notice)
}

// Window is an opaque handle to the application that had focus when
// recording started.
type Window any

type Foreground interface {
	Current() Window
	Restore(w Window)
}

// NopForeground is used where focus never leaves the target application,
// as with the terminal UI.
type NopForeground struct{}

func (NopForeground) Current() Window { return nil }
func (NopForeground) Restore(Window)  {}

// ScreenCapturer grabs a JPEG of the given window for screen context.
type ScreenCapturer interface {
	CaptureForegroundWindow(w Window) ([]byte, error)
}

type Paster interface {
	SetClipboardAndPaste(ctx context.Context, text string) error
}

type SettingsSource interface {
	Current() config.Settings
}

// Recorder is the capture slot; audio.Recorder implements it.
type Recorder interface {
	Start() (<-chan struct{}, error)
	Stop() (string, error)
	Discard()
}

type MemoryLoader interface {
	Load() (memory.Document, error)
}

// Learner receives confirmed corrections; learning.Loop implements it.
type Learner interface {
	Enqueue(a learning.Analyzer, original, corrected string)
}

// ClientFactory builds a transcription client for the settings current at
// session start.
type ClientFactory func(config.Settings) (transcriber.Client, error)

// Deps wires the orchestrator to its collaborators. Foreground and Screen
// are optional.
type Deps struct {
	Recorder     Recorder
	Clients      ClientFactory
	Settings     SettingsSource
	SettingsPath string
	Memory       MemoryLoader
	Learner      Learner
	Paster       Paster
	View         View
	Foreground   Foreground
	Screen       ScreenCapturer
}

// session is the state of one dictation. It is only touched from the
// orchestrator goroutine, except for the fields fixed at creation.
type session struct {
	id       string
	ctx      context.Context
	cancel   context.CancelFunc
	settings config.Settings
	client   transcriber.Client
	window   Window
	screen   <-chan string
	started  time.Time

	state   State
	capture int
	op      context.CancelFunc
	audio   string

	text      string
	original  string
	fragments int

	styleGen     uint64
	beforeStyle  string
	beforeOrig   string
	styled       string
	styleStarted bool
	canUndo      bool
	undoText     string
	undoOrig     string
}
