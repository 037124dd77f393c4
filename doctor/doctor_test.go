package doctor

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"murmur/audio"
	"murmur/config"
	"murmur/hotkey"
	"murmur/transcriber"
)

func TestRunStopsAtFirstFailure(t *testing.T) {
	var ran []string
	step := func(name string, err error) Check {
		return Check{Name: name, Run: func(context.Context, io.Writer) error {
			ran = append(ran, name)
			return err
		}}
	}
	var out bytes.Buffer
	code := Run(context.Background(), &out, []Check{
		step("first", nil),
		step("second", errors.New("broken mic")),
		step("third", nil),
	})
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if strings.Join(ran, ",") != "first,second" {
		t.Errorf("ran = %v", ran)
	}
	for _, want := range []string{"[1/3] first", "PASS", "FAIL: broken mic"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestRunAllPass(t *testing.T) {
	var out bytes.Buffer
	ok := Check{Name: "ok", Run: func(context.Context, io.Writer) error { return nil }}
	if code := Run(context.Background(), &out, []Check{ok, ok}); code != 0 {
		t.Errorf("exit code = %d", code)
	}
	if !strings.Contains(out.String(), "All checks passed") {
		t.Errorf("output:\n%s", out.String())
	}
}

func testEnv(t *testing.T, client *transcriber.Fake) Env {
	t.Helper()
	s := config.Defaults()
	s.APIKey = "key"
	return Env{
		Settings:     s,
		SettingsPath: "/tmp/settings.yaml",
		Hotkey:       hotkey.NewFake(),
		Binding:      hotkey.Binding{Mods: hotkey.ModAlt, Key: "P"},
		Capture:      audio.NewFakeCapture(make([]byte, 3200), audio.CaptureConfig{SampleRate: 16000, Channels: 1}),
		Clients:      func(config.Settings) (transcriber.Client, error) { return client, nil },
		AudioDir:     t.TempDir(),
		RecordFor:    20 * time.Millisecond,
		HotkeyWait:   time.Second,
	}
}

func TestCheckSettings(t *testing.T) {
	env := testEnv(t, transcriber.NewFake())
	var out bytes.Buffer
	if err := env.checkSettings(context.Background(), &out); err != nil {
		t.Fatalf("with key: %v", err)
	}
	env.Settings.APIKey = " "
	if err := env.checkSettings(context.Background(), &out); !errors.Is(err, config.ErrNoCredentials) {
		t.Errorf("without key: %v", err)
	}
}

func TestCheckHotkey(t *testing.T) {
	env := testEnv(t, transcriber.NewFake())
	fake := env.Hotkey.(*hotkey.FakeHotkey)
	fake.SimPress()
	if err := env.checkHotkey(context.Background(), &bytes.Buffer{}); err != nil {
		t.Fatal(err)
	}
	if fake.Registered() {
		t.Error("hotkey left registered")
	}

	env.HotkeyWait = 10 * time.Millisecond
	if err := env.checkHotkey(context.Background(), &bytes.Buffer{}); err == nil {
		t.Error("expected timeout without a press")
	}
}

func TestCheckTranscription(t *testing.T) {
	client := transcriber.NewFake("testing ", "one two")
	env := testEnv(t, client)
	var out bytes.Buffer
	if err := env.checkTranscription(context.Background(), &out); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "Transcribed text: testing one two") {
		t.Errorf("output:\n%s", out.String())
	}
	entries, _ := os.ReadDir(env.AudioDir)
	if len(entries) != 0 {
		t.Errorf("recording left behind: %d files", len(entries))
	}
	if reqs := client.Requests(); len(reqs) != 1 || reqs[0].Language != transcriber.LanguageAuto {
		t.Errorf("requests = %+v", reqs)
	}
}

func TestCheckTranscriptionNoSpeech(t *testing.T) {
	env := testEnv(t, transcriber.NewFake())
	if err := env.checkTranscription(context.Background(), &bytes.Buffer{}); !errors.Is(err, errNoSpeech) {
		t.Errorf("err = %v, want no speech", err)
	}
}

func TestCheckTranscriptionClientError(t *testing.T) {
	env := testEnv(t, nil)
	env.Clients = func(config.Settings) (transcriber.Client, error) { return nil, errors.New("bad key") }
	if err := env.checkTranscription(context.Background(), &bytes.Buffer{}); err == nil || !strings.Contains(err.Error(), "bad key") {
		t.Errorf("err = %v", err)
	}
}
