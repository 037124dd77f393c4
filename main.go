package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"murmur/audio"
	"murmur/beep"
	"murmur/clipboard"
	"murmur/config"
	"murmur/hotkey"
	"murmur/learning"
	"murmur/log"
	"murmur/memory"
	"murmur/metrics"
	"murmur/session"
	"murmur/shutdown"
	"murmur/transcriber"
)

var version = "dev"

const learningDrain = 5 * time.Second

func run() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "memory":
			os.Exit(runMemory(os.Args[2:]))
		case "doctor":
			os.Exit(runDoctor(os.Args[2:]))
		}
	}

	configFlag := flag.String("config", "", "settings file (default: settings.yaml in the user config dir)")
	initFlag := flag.Bool("init", false, "Write a default settings file and exit")
	logPathFlag := flag.String("logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	deviceFlag := flag.String("device", "", "Use named microphone device")
	setupFlag := flag.Bool("setup", false, "Select microphone device (otherwise uses settings or system default)")
	metricsFlag := flag.String("metrics", "", "Serve Prometheus metrics on this address (e.g., localhost:9464)")
	profileFlag := flag.String("profile", "", "Enable pprof profiling server (e.g., :6060 or localhost:6060)")
	modelsFlag := flag.Bool("models", false, "List known models and languages and exit")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	debugFlag := flag.Bool("debug", false, "Write debug lines to the diagnostics log")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("murmur %s\n", version)
		os.Exit(0)
	}
	if *modelsFlag {
		printModels()
		os.Exit(0)
	}

	logPath, err := log.ResolveDir(*logPathFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		os.Exit(1)
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}
	initCrashLog()

	settingsPath, err := resolveSettingsPath(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *initFlag {
		if err := writeDefaultSettings(settingsPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Settings written to %s\n", settingsPath)
		os.Exit(0)
	}

	source, err := config.NewSource(settingsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	settings := source.Current()

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	log.SetDebug(*debugFlag)
	log.Infof("murmur %s starting, settings %s", version, settingsPath)

	if *profileFlag != "" {
		go func() {
			fmt.Fprintf(os.Stderr, "pprof server listening on http://%s/debug/pprof/\n", *profileFlag)
			if err := http.ListenAndServe(*profileFlag, nil); err != nil {
				log.Errorf("pprof server: %v", err)
			}
		}()
	}

	var metricsSrv *http.Server
	if *metricsFlag != "" {
		metricsSrv, err = metrics.Serve(*metricsFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: metrics server: %v\n", err)
			os.Exit(1)
		}
		log.Infof("metrics listening on %s", *metricsFlag)
	}

	binding, err := hotkey.ParseBinding(settings.HotkeyKey, settings.HotkeyModifier)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: hotkey setting: %v\n", err)
		os.Exit(1)
	}

	actx, err := audio.NewContext()
	if err != nil {
		log.Errorf("audio context init error: %v", err)
		fmt.Fprintf(os.Stderr, "Error initializing audio: %v\n", err)
		os.Exit(1)
	}
	defer actx.Close()

	device, err := chooseDevice(actx, *deviceFlag, settings.Device, *setupFlag)
	if err != nil {
		if errors.Is(err, audio.ErrSelectionAborted) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Warning: %v, using the default device\n", err)
		log.Warnf("device selection: %v", err)
	}

	capture, err := actx.NewCapture(device, audio.CaptureConfig{SampleRate: audio.SampleRate, Channels: audio.Channels})
	if err != nil {
		log.Errorf("capture device init error: %v", err)
		fmt.Fprintf(os.Stderr, "Error initializing capture device: %v\n", err)
		os.Exit(1)
	}
	defer capture.Close()
	log.Info("recording_device: " + capture.DeviceName())

	recorder := audio.NewRecorder(capture, audio.RecorderConfig{
		Dir:         filepath.Join(os.TempDir(), "murmur"),
		MaxDuration: settings.MaxDuration,
		SilenceStop: settings.SilenceStop,
	})
	defer recorder.Close()

	store, err := openMemory(settings)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	loop := learning.New(store)

	if err := clipboard.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: paste init failed: %v\n", err)
		fmt.Fprintln(os.Stderr, "Fix with: sudo chmod 660 /dev/uinput && sudo chgrp input /dev/uinput")
	}

	clients := &clientCache{}
	cues := beep.New(settings.Sounds)
	view := newTUIView()
	orch := session.New(session.Deps{
		Recorder:     recorder,
		Clients:      clients.get,
		Settings:     source,
		SettingsPath: settingsPath,
		Memory:       store,
		Learner:      loop,
		Paster:       settingsPaster{source},
		View:         soundView{View: view, cues: cues},
	})

	p := tea.NewProgram(newTUIModel(orch, binding.String(), settings), tea.WithAltScreen())
	view.attach(p)
	view.send(deviceLineMsg{deviceLineText(device)})

	store.OnUpdatingChange(func(updating bool) {
		metrics.SetLearning(updating)
		view.send(learningMsg{updating})
	})
	source.OnChange(func(s config.Settings) {
		log.Infof("settings reloaded")
		if b, err := hotkey.ParseBinding(s.HotkeyKey, s.HotkeyModifier); err == nil && b != binding {
			log.Warnf("hotkey changed to %s, restart to apply", b)
		}
		cues.SetEnabled(s.Sounds)
		view.send(settingsMsg{s})
	})

	hk := hotkey.New(binding)
	if err := hk.Register(); err != nil {
		log.Errorf("hotkey register error: %v", err)
		fmt.Fprintf(os.Stderr, "Error registering hotkey %s: %v\n", binding, err)
		if diag, derr := hotkey.Diagnose(); derr == nil && diag != "" {
			fmt.Fprintln(os.Stderr, diag)
		}
		os.Exit(1)
	}
	defer hk.Unregister()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go orch.Run(ctx)
	go func() {
		if err := source.Watch(ctx); err != nil {
			log.Warnf("settings watch: %v", err)
		}
	}()
	if settings.HasCredentials() {
		go func() {
			if c, err := clients.get(settings); err == nil {
				if w, ok := c.(interface{ Warm(context.Context) }); ok {
					w.Warm(ctx)
				}
			}
		}()
	}

	go func() {
		for {
			select {
			case <-hk.Pressed():
				log.Debugf("hotkey_pressed")
				orch.HotkeyPressed()
			case <-ctx.Done():
				return
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	shutdown.Notify(sigChan)
	go func() {
		select {
		case <-sigChan:
			log.Info("signal received")
			p.Quit()
		case <-ctx.Done():
		}
	}()

	if _, err := p.Run(); err != nil {
		log.Errorf("TUI error: %v", err)
	}

	cancel()
	<-orch.Done()
	if !loop.Wait(learningDrain) {
		log.Warn("learning still running at exit")
	}
	if metricsSrv != nil {
		sctx, scancel := context.WithTimeout(context.Background(), time.Second)
		metricsSrv.Shutdown(sctx)
		scancel()
	}
	log.Info("murmur stopped")
	log.Close()
}

// initCrashLog sends runtime crash output next to the diagnostics log.
func initCrashLog() {
	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
	debug.SetCrashOutput(crashFile, debug.CrashOptions{})
}

func printModels() {
	fmt.Println("Models:")
	for _, m := range transcriber.Models {
		tag := ""
		switch m {
		case transcriber.DefaultTranscriptionModel:
			tag = " (default transcription)"
		case transcriber.DefaultAnalysisModel:
			tag = " (default analysis)"
		}
		fmt.Printf("  %s%s\n", m, tag)
	}
	fmt.Println("Languages:")
	fmt.Printf("  %s\n", strings.Join(transcriber.Languages, ", "))
}

func resolveSettingsPath(flagPath string) (string, error) {
	if flagPath != "" {
		return filepath.Abs(flagPath)
	}
	return config.DefaultPath()
}

func writeDefaultSettings(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	return config.Save(path, config.Defaults())
}

// chooseDevice resolves the capture device: the -device flag, then the
// settings file, then the interactive picker when -setup is given. A nil
// device means the system default.
func chooseDevice(ctx audio.Context, flagName, settingsName string, setup bool) (*audio.DeviceInfo, error) {
	switch {
	case flagName != "":
		return audio.FindDevice(ctx, flagName)
	case setup:
		return audio.SelectDevice(ctx)
	case settingsName != "":
		return audio.FindDevice(ctx, settingsName)
	}
	return nil, nil
}

func openMemory(s config.Settings) (*memory.Store, error) {
	path := s.MemoryPath
	if path == "" {
		var err error
		if path, err = memory.DefaultPath(); err != nil {
			return nil, fmt.Errorf("memory path: %w", err)
		}
	}
	return memory.NewStore(path), nil
}

// clientCache reuses the Gemini client until the settings that shape it
// change.
type clientCache struct {
	mu     sync.Mutex
	cfg    transcriber.Config
	client *transcriber.Gemini
}

func (c *clientCache) get(s config.Settings) (transcriber.Client, error) {
	cfg := s.TranscriberConfig()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil && c.cfg == cfg {
		return c.client, nil
	}
	g, err := transcriber.NewGemini(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	c.cfg, c.client = cfg, g
	return g, nil
}

// settingsPaster reads the clipboard restore preference at paste time so
// reloads apply to the next paste.
type settingsPaster struct {
	src *config.Source
}

func (p settingsPaster) SetClipboardAndPaste(ctx context.Context, text string) error {
	return clipboard.NewPaster(p.src.Current().RestoreClipboard).SetClipboardAndPaste(ctx, text)
}
