package log

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func setupLogDir(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	SetDir(tmp)
	t.Cleanup(func() { Close(); SetDir("") })
	return tmp
}

func TestResolveDir(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		flag string
		env  string
		want string
	}{
		{"flag absolute", "/tmp/mylog", "", "/tmp/mylog"},
		{"flag relative", "logs", "", filepath.Join(wd, "logs")},
		{"flag beats env", "/tmp/flag", "/tmp/env", "/tmp/flag"},
		{"env absolute", "", "/tmp/murmur-env-log", "/tmp/murmur-env-log"},
		{"env relative", "", "envlogs", filepath.Join(wd, "envlogs")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(envLogPath, tt.env)
			got, err := ResolveDir(tt.flag)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveDirDefault(t *testing.T) {
	t.Setenv(envLogPath, "")
	got, err := ResolveDir("")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "murmur") {
		t.Errorf("default dir %q does not mention murmur", got)
	}
}

func TestInitCreatesFiles(t *testing.T) {
	tmp := setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"diagnostics_log.txt", "transcribe_log.txt"} {
		path := filepath.Join(tmp, name)
		if _, err := os.Stat(path); err != nil {
			t.Errorf("%s not created: %v", name, err)
		}
	}
}

func TestTranscriptionText(t *testing.T) {
	tmp := setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}

	TranscriptionText("hello world")

	data, err := os.ReadFile(filepath.Join(tmp, "transcribe_log.txt"))
	if err != nil {
		t.Fatal(err)
	}
	line := string(data)
	if !strings.Contains(line, "hello world") {
		t.Errorf("transcribe_log.txt missing text, got: %q", line)
	}
	if strings.Count(line, "\t") != 2 {
		t.Errorf("expected tab-separated format, got: %q", line)
	}
}

func TestSessionEventsWritten(t *testing.T) {
	tmp := setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}

	SessionStart("abc123", "gemini-2.5-flash-lite", "Auto", false)
	StateChange("abc123", "Idle", "Recording")
	SessionEnd("abc123", "confirmed", 2*time.Second)
	LearningResult("updated", 120, time.Second)
	Close()

	data, err := os.ReadFile(filepath.Join(tmp, "diagnostics_log.txt"))
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	for _, want := range []string{"session_start", "session=abc123", "to=Recording", "outcome=confirmed", "result=updated"} {
		if !strings.Contains(out, want) {
			t.Errorf("diagnostics log missing %q:\n%s", want, out)
		}
	}
}

func TestNoopBeforeInit(t *testing.T) {
	setupLogDir(t)
	// must not panic with nil files
	Info("x")
	Warnf("y %d", 1)
	TranscriptionText("z")
	SessionEnd("id", "cancelled", 0)
}

func TestCloseIdempotent(t *testing.T) {
	setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}
	Close()
	Close()
}

func TestDebugGatedByLevel(t *testing.T) {
	tmp := setupLogDir(t)
	t.Cleanup(func() { SetDebug(false) })
	if err := Init(); err != nil {
		t.Fatal(err)
	}

	SetDebug(false)
	Debugf("hidden %d", 1)
	SetDebug(true)
	Debugf("shown %d", 2)
	Close()

	data, err := os.ReadFile(filepath.Join(tmp, "diagnostics_log.txt"))
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	if strings.Contains(out, "hidden 1") {
		t.Error("debug line written at info level")
	}
	if !strings.Contains(out, "shown 2") {
		t.Errorf("debug line missing:\n%s", out)
	}
}

func TestInitRotatesLargeDiagnostics(t *testing.T) {
	tmp := setupLogDir(t)
	big := make([]byte, maxDiagSize+1)
	if err := os.WriteFile(filepath.Join(tmp, diagName), big, 0644); err != nil {
		t.Fatal(err)
	}
	if err := Init(); err != nil {
		t.Fatal(err)
	}
	Info("fresh start")
	Close()

	prev, err := os.Stat(filepath.Join(tmp, diagPrevName))
	if err != nil || prev.Size() != int64(len(big)) {
		t.Fatalf("previous generation: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(tmp, diagName))
	if err != nil {
		t.Fatal(err)
	}
	if len(data) > 1024 || !strings.Contains(string(data), "fresh start") {
		t.Errorf("new log has %d bytes", len(data))
	}
}
