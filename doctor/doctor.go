// Package doctor runs the startup checks behind "murmur doctor": settings,
// hotkey, microphone with a live transcription, and clipboard.
package doctor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"murmur/audio"
	"murmur/clipboard"
	"murmur/config"
	"murmur/hotkey"
	"murmur/memory"
	"murmur/transcriber"
)

const (
	defaultRecordFor  = 3 * time.Second
	defaultHotkeyWait = 10 * time.Second
	clipboardTimeout  = 3 * time.Second
)

var errNoSpeech = errors.New("no speech detected")

// Check is one diagnostic step. A nil error is a pass.
type Check struct {
	Name string
	Run  func(ctx context.Context, out io.Writer) error
}

// Env is what the checks exercise. Zero durations take the defaults.
type Env struct {
	Settings     config.Settings
	SettingsPath string
	Hotkey       hotkey.Hotkey
	Binding      hotkey.Binding
	Capture      audio.CaptureDevice
	Clients      func(config.Settings) (transcriber.Client, error)
	AudioDir     string

	RecordFor  time.Duration
	HotkeyWait time.Duration
}

// Checks returns the standard sequence.
func Checks(env Env) []Check {
	if env.RecordFor <= 0 {
		env.RecordFor = defaultRecordFor
	}
	if env.HotkeyWait <= 0 {
		env.HotkeyWait = defaultHotkeyWait
	}
	return []Check{
		{"Settings", env.checkSettings},
		{"Hotkey detection", env.checkHotkey},
		{"Microphone and transcription", env.checkTranscription},
		{"Clipboard", checkClipboard},
	}
}

// Run executes checks in order and stops at the first failure, since later
// checks depend on earlier ones. It returns the process exit code.
func Run(ctx context.Context, out io.Writer, checks []Check) int {
	fmt.Fprintln(out, "murmur doctor - system diagnostics")
	fmt.Fprintln(out, "==================================")
	for i, c := range checks {
		fmt.Fprintf(out, "\n[%d/%d] %s\n", i+1, len(checks), c.Name)
		if err := c.Run(ctx, out); err != nil {
			fmt.Fprintf(out, "  FAIL: %v\n", err)
			fmt.Fprintln(out, "\nSome checks failed. See details above.")
			return 1
		}
		fmt.Fprintln(out, "  PASS")
	}
	fmt.Fprintln(out, "\nAll checks passed!")
	return 0
}

func (e Env) checkSettings(_ context.Context, out io.Writer) error {
	fmt.Fprintf(out, "  settings: %s\n", e.SettingsPath)
	if err := e.Settings.RequireCredentials(); err != nil {
		return fmt.Errorf("%w; set api_key in the settings file or GEMINI_API_KEY", err)
	}
	fmt.Fprintf(out, "  model: %s, language: %s\n", e.Settings.TranscriptionModel, e.Settings.Language)
	return nil
}

func (e Env) checkHotkey(ctx context.Context, out io.Writer) error {
	if err := e.Hotkey.Register(); err != nil {
		if diag, derr := hotkey.Diagnose(); derr == nil && diag != "" {
			fmt.Fprintln(out, diag)
		}
		return fmt.Errorf("could not register %s: %w", e.Binding, err)
	}
	defer e.Hotkey.Unregister()

	fmt.Fprintf(out, "  Press %s...\n", e.Binding)
	select {
	case <-e.Hotkey.Pressed():
		return nil
	case <-time.After(e.HotkeyWait):
		return errors.New("timeout waiting for hotkey")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e Env) checkTranscription(ctx context.Context, out io.Writer) error {
	client, err := e.Clients(e.Settings)
	if err != nil {
		return fmt.Errorf("creating client: %w", err)
	}

	rec := audio.NewRecorder(e.Capture, audio.RecorderConfig{Dir: e.AudioDir, MaxDuration: e.RecordFor + time.Second})
	defer rec.Close()
	if _, err := rec.Start(); err != nil {
		return fmt.Errorf("recording: %w", err)
	}
	fmt.Fprintf(out, "  Speak for %s...\n", e.RecordFor)
	select {
	case <-time.After(e.RecordFor):
	case <-ctx.Done():
		rec.Discard()
		return ctx.Err()
	}
	path, err := rec.Stop()
	if err != nil {
		return fmt.Errorf("recording: %w", err)
	}
	defer os.Remove(path)
	if info, err := os.Stat(path); err == nil {
		fmt.Fprintf(out, "  Recorded %.1f KB, transcribing...\n", float64(info.Size())/1024)
	}

	text, err := transcriber.Collect(client.TranscribeStream(ctx, transcriber.Request{
		AudioPath: path,
		Memory:    memory.Document{}.Normalized(),
		Language:  e.Settings.Language,
	}))
	if err != nil {
		return fmt.Errorf("transcription: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return errNoSpeech
	}
	fmt.Fprintf(out, "  Transcribed text: %s\n", text)
	return nil
}

// checkClipboard round-trips a marker through the clipboard and creates
// the virtual keyboard used for pasting. The previous content is put back.
func checkClipboard(_ context.Context, out io.Writer) error {
	marker := fmt.Sprintf("murmur-doctor-%d", time.Now().UnixNano())
	previous, _ := clipboard.Read()

	type result struct {
		got string
		err error
	}
	ch := make(chan result, 1)
	go func() {
		if err := clipboard.Copy(marker); err != nil {
			ch <- result{err: fmt.Errorf("write: %w", err)}
			return
		}
		got, err := clipboard.Read()
		ch <- result{got: got, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return r.err
		}
		if r.got != marker {
			return fmt.Errorf("wrote %q, read back %q", marker, r.got)
		}
	case <-time.After(clipboardTimeout):
		return errors.New("clipboard timed out (clipboard tool hung, compositor not accessible?)")
	}
	if previous != "" {
		clipboard.Copy(previous)
	}

	if err := clipboard.Init(); err != nil {
		fmt.Fprintln(out, "  Fix with: sudo chmod 660 /dev/uinput && sudo chgrp input /dev/uinput")
		return fmt.Errorf("paste keystroke: %w", err)
	}
	return nil
}
