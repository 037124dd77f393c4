// Package log writes the diagnostics log (zerolog console format, one line
// per event) and the plain transcription log. Every function is a no-op
// until Init succeeds and after Close.
package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const (
	envLogPath = "MURMUR_LOG_PATH"

	diagName       = "diagnostics_log.txt"
	diagPrevName   = "diagnostics_log.1.txt"
	transcriptName = "transcribe_log.txt"

	// maxDiagSize triggers a single-generation rotation at Init.
	maxDiagSize = 4 << 20

	stampLayout = "2006-01-02 15:04:05"
)

type sink struct {
	diag       zerolog.Logger
	diagFile   *os.File
	transcript *os.File
	mu         sync.Mutex // serializes transcript lines
}

var (
	initMu sync.Mutex
	active atomic.Pointer[sink]
	dir    string
	pid    = os.Getpid()
)

// ResolveDir picks the log directory: the -logpath flag, then
// MURMUR_LOG_PATH, then the per-OS default.
func ResolveDir(flagPath string) (string, error) {
	for _, p := range []string{flagPath, os.Getenv(envLogPath)} {
		if p != "" {
			return filepath.Abs(p)
		}
	}
	return getDefaultDir()
}

func SetDir(d string) { dir = d }

func Dir() string { return dir }

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}
	return nil
}

func appendFile(name string) (*os.File, error) {
	return os.OpenFile(filepath.Join(dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
}

// rotate keeps one previous generation of an oversized diagnostics log.
func rotate() {
	path := filepath.Join(dir, diagName)
	if info, err := os.Stat(path); err == nil && info.Size() > maxDiagSize {
		prev := filepath.Join(dir, diagPrevName)
		os.Remove(prev)
		os.Rename(path, prev)
	}
}

func Init() error {
	initMu.Lock()
	defer initMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}
	rotate()

	diagFile, err := appendFile(diagName)
	if err != nil {
		return err
	}
	transcript, err := appendFile(transcriptName)
	if err != nil {
		diagFile.Close()
		return err
	}

	out := zerolog.ConsoleWriter{Out: diagFile, TimeFormat: stampLayout, NoColor: true}
	s := &sink{
		diag:       zerolog.New(out).With().Timestamp().Int("pid", pid).Logger(),
		diagFile:   diagFile,
		transcript: transcript,
	}
	if old := active.Swap(s); old != nil {
		old.close()
	}
	return nil
}

func (s *sink) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.diagFile.Close()
	s.transcript.Close()
}

func Close() {
	initMu.Lock()
	defer initMu.Unlock()
	if s := active.Swap(nil); s != nil {
		s.close()
	}
}

// at starts an event, or returns nil (on which zerolog calls are no-ops)
// when logging is not set up.
func at(level zerolog.Level) *zerolog.Event {
	s := active.Load()
	if s == nil {
		return nil
	}
	return s.diag.WithLevel(level)
}

func Info(msg string)                   { at(zerolog.InfoLevel).Msg(msg) }
func Infof(format string, args ...any)  { at(zerolog.InfoLevel).Msgf(format, args...) }
func Warn(msg string)                   { at(zerolog.WarnLevel).Msg(msg) }
func Warnf(format string, args ...any)  { at(zerolog.WarnLevel).Msgf(format, args...) }
func Error(msg string)                  { at(zerolog.ErrorLevel).Msg(msg) }
func Errorf(format string, args ...any) { at(zerolog.ErrorLevel).Msgf(format, args...) }
func Debugf(format string, args ...any) { at(zerolog.DebugLevel).Msgf(format, args...) }

// SetDebug enables debug-level lines; they are dropped otherwise.
func SetDebug(on bool) {
	level := zerolog.InfoLevel
	if on {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
}

// TranscriptionText appends confirmed text to transcribe_log.txt as
// "time<TAB>[pid]<TAB>text".
func TranscriptionText(text string) {
	s := active.Load()
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.transcript, "%s\t[%d]\t%s\n", time.Now().Format(stampLayout), pid, text)
}

func SessionStart(id, model, language string, screenContext bool) {
	at(zerolog.InfoLevel).
		Str("session", id).
		Str("model", model).
		Str("lang", language).
		Bool("screen", screenContext).
		Msg("session_start")
}

func StateChange(id, from, to string) {
	at(zerolog.InfoLevel).Str("session", id).Str("from", from).Str("to", to).Msg("state")
}

func SessionEnd(id, outcome string, dur time.Duration) {
	at(zerolog.InfoLevel).
		Str("session", id).
		Str("outcome", outcome).
		Float64("total_s", dur.Seconds()).
		Msg("session_end")
}

// StreamMetricsData summarizes one model stream.
type StreamMetricsData struct {
	Kind      string
	Model     string
	FirstMs   float64
	TotalMs   float64
	Fragments int
	Chars     int
	AudioKB   float64
}

func StreamMetrics(m StreamMetricsData) {
	at(zerolog.InfoLevel).
		Str("kind", m.Kind).
		Str("model", m.Model).
		Float64("first_ms", m.FirstMs).
		Float64("total_ms", m.TotalMs).
		Int("fragments", m.Fragments).
		Int("chars", m.Chars).
		Float64("audio_kb", m.AudioKB).
		Msg("stream")
}

func LearningResult(result string, tokens int, dur time.Duration) {
	at(zerolog.InfoLevel).
		Str("result", result).
		Int("tokens", tokens).
		Dur("took", dur).
		Msg("learning")
}

func Warm(host string, tls time.Duration) {
	at(zerolog.InfoLevel).Str("host", host).Dur("tls", tls).Msg("warm")
}
