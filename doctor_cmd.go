package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"murmur/audio"
	"murmur/config"
	"murmur/doctor"
	"murmur/hotkey"
)

// runDoctor implements "murmur doctor". It returns the exit code.
func runDoctor(args []string) int {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	configFlag := fs.String("config", "", "settings file")
	deviceFlag := fs.String("device", "", "Use named microphone device")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	path, err := resolveSettingsPath(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	settings, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	binding, err := hotkey.ParseBinding(settings.HotkeyKey, settings.HotkeyModifier)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: hotkey setting: %v\n", err)
		return 1
	}

	actx, err := audio.NewContext()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot connect to audio: %v\n", err)
		return 1
	}
	defer actx.Close()
	device, err := chooseDevice(actx, *deviceFlag, settings.Device, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v, using the default device\n", err)
	}
	capture, err := actx.NewCapture(device, audio.CaptureConfig{SampleRate: audio.SampleRate, Channels: audio.Channels})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: capture device: %v\n", err)
		return 1
	}
	defer capture.Close()
	fmt.Println(deviceLineText(device))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	clients := &clientCache{}
	return doctor.Run(ctx, os.Stdout, doctor.Checks(doctor.Env{
		Settings:     settings,
		SettingsPath: path,
		Hotkey:       hotkey.New(binding),
		Binding:      binding,
		Capture:      capture,
		Clients:      clients.get,
		AudioDir:     filepath.Join(os.TempDir(), "murmur-doctor"),
	}))
}
