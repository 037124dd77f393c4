// Package config loads user settings from settings.yaml, .env files and
// MURMUR_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"murmur/log"
	"murmur/transcriber"
)

const (
	envPrefix    = "MURMUR"
	fileName     = "settings.yaml"
	dotEnvName   = ".env"
	appDirName   = "murmur"
	defaultDelay = 200 * time.Millisecond
)

var ErrNoCredentials = errors.New("no Gemini API key configured")

type Settings struct {
	APIKey             string `yaml:"api_key" envconfig:"GEMINI_API_KEY"`
	TranscriptionModel string `yaml:"transcription_model" split_words:"true"`
	AnalysisModel      string `yaml:"analysis_model" split_words:"true"`
	// Language is "Auto" or a language name.
	Language      string `yaml:"language"`
	ScreenContext bool   `yaml:"screen_context" split_words:"true"`

	HotkeyKey      string `yaml:"hotkey_key" split_words:"true"`
	HotkeyModifier string `yaml:"hotkey_modifier" split_words:"true"`
	// StyleKey starts a voice restyle from the edit view.
	StyleKey string `yaml:"style_key" split_words:"true"`

	Device     string `yaml:"device"`
	MemoryPath string `yaml:"memory_path" split_words:"true"`

	// AudioFormat is "wav" or "flac"; flac uploads are smaller.
	AudioFormat string        `yaml:"audio_format" split_words:"true"`
	MaxDuration time.Duration `yaml:"max_duration" split_words:"true"`
	// SilenceStop ends a recording after this much quiet. Zero disables it.
	SilenceStop time.Duration `yaml:"silence_stop" split_words:"true"`

	PasteDelay       time.Duration `yaml:"paste_delay" split_words:"true"`
	RestoreClipboard bool          `yaml:"restore_clipboard" split_words:"true"`

	// Sounds plays a cue when recording starts, stops or fails.
	Sounds bool `yaml:"sounds"`
}

func Defaults() Settings {
	return Settings{
		TranscriptionModel: transcriber.DefaultTranscriptionModel,
		AnalysisModel:      transcriber.DefaultAnalysisModel,
		Language:           transcriber.LanguageAuto,
		HotkeyKey:          "P",
		HotkeyModifier:     "Alt",
		StyleKey:           "tab",
		AudioFormat:        transcriber.FormatWAV,
		MaxDuration:        5 * time.Minute,
		PasteDelay:         defaultDelay,
		Sounds:             true,
	}
}

// HasCredentials reports whether a session can reach the model.
func (s Settings) HasCredentials() bool {
	return strings.TrimSpace(s.APIKey) != ""
}

func (s Settings) RequireCredentials() error {
	if !s.HasCredentials() {
		return ErrNoCredentials
	}
	return nil
}

// TranscriberConfig selects the models a client is built with.
func (s Settings) TranscriberConfig() transcriber.Config {
	return transcriber.Config{
		APIKey:             strings.TrimSpace(s.APIKey),
		TranscriptionModel: s.TranscriptionModel,
		AnalysisModel:      s.AnalysisModel,
		AudioFormat:        s.AudioFormat,
	}
}

// fill restores defaults for values left blank.
func (s *Settings) fill() {
	d := Defaults()
	s.TranscriptionModel = strings.TrimSpace(s.TranscriptionModel)
	s.AnalysisModel = strings.TrimSpace(s.AnalysisModel)
	s.Language = strings.TrimSpace(s.Language)
	if s.TranscriptionModel == "" {
		s.TranscriptionModel = d.TranscriptionModel
	}
	if s.AnalysisModel == "" {
		s.AnalysisModel = d.AnalysisModel
	}
	if s.Language == "" {
		s.Language = d.Language
	}
	if s.HotkeyKey == "" {
		s.HotkeyKey = d.HotkeyKey
	}
	if s.StyleKey == "" {
		s.StyleKey = d.StyleKey
	}
	switch f := strings.ToLower(strings.TrimSpace(s.AudioFormat)); f {
	case transcriber.FormatWAV, transcriber.FormatFLAC:
		s.AudioFormat = f
	default:
		s.AudioFormat = d.AudioFormat
	}
	if s.MaxDuration <= 0 {
		s.MaxDuration = d.MaxDuration
	}
	if s.PasteDelay < 0 {
		s.PasteDelay = 0
	}
	if s.SilenceStop < 0 {
		s.SilenceStop = 0
	}
}

// Dir is the per-user settings directory.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, appDirName), nil
}

func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, fileName), nil
}

// Load reads settings from path. A missing file yields the defaults with
// environment overrides applied.
func Load(path string) (Settings, error) {
	loadDotEnv(filepath.Join(filepath.Dir(path), dotEnvName))
	loadDotEnv(dotEnvName)

	s := Defaults()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return s, fmt.Errorf("reading settings: %w", err)
	default:
		if err := yaml.Unmarshal(data, &s); err != nil {
			return s, fmt.Errorf("parsing settings %s: %w", path, err)
		}
	}

	if err := envconfig.Process(envPrefix, &s); err != nil {
		return s, fmt.Errorf("environment overrides: %w", err)
	}
	s.fill()
	return s, nil
}

// godotenv never overrides variables that are already set.
func loadDotEnv(path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	if err := godotenv.Load(path); err != nil {
		log.Warnf("ignoring %s: %v", path, err)
	}
}

// Save writes s to path, creating the directory. The file holds the API
// key, so it is private to the user.
func Save(path string, s Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating settings dir: %w", err)
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
