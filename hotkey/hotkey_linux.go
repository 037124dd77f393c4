//go:build linux

package hotkey

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	inputDir = "/dev/input"
	sysInput = "/sys/class/input"
)

var errNoKeyboard = errors.New("no input device can send the hotkey (is the user in the 'input' group?)")

// evdevHotkey reads raw key events from every input device able to produce
// the bound key. It works on X11 and Wayland alike but needs read access to
// /dev/input.
type evdevHotkey struct {
	binding Binding
	pressed chan struct{}

	mu      sync.Mutex
	devices []*os.File
}

func New(b Binding) Hotkey {
	return &evdevHotkey{binding: b, pressed: make(chan struct{}, 1)}
}

func (h *evdevHotkey) Register() error {
	paths, err := keyboardsFor(evdevKeys[h.binding.Key])
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	var openErr error
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			openErr = err
			continue
		}
		h.devices = append(h.devices, f)
		go h.watch(f)
	}
	if len(h.devices) == 0 {
		return fmt.Errorf("opening %d keyboard(s): %w (run: sudo usermod -aG input $USER, then log in again)", len(paths), openErr)
	}
	return nil
}

// watch runs until the device file is closed.
func (h *evdevHotkey) watch(f *os.File) {
	m := newChordMatcher(h.binding)
	buf := make([]byte, inputEventSize*32)
	for {
		n, err := f.Read(buf)
		if err != nil {
			return
		}
		forEachKeyEvent(buf[:n], func(code uint16, value int32) {
			if !m.event(code, value) {
				return
			}
			select {
			case h.pressed <- struct{}{}:
			default:
			}
		})
	}
}

func (h *evdevHotkey) Unregister() {
	h.mu.Lock()
	devices := h.devices
	h.devices = nil
	h.mu.Unlock()
	for _, f := range devices {
		f.Close()
	}
}

func (h *evdevHotkey) Pressed() <-chan struct{} { return h.pressed }

// keyboardsFor lists event devices whose key capability bitmap includes
// code. Mice, lid switches and power buttons drop out here.
func keyboardsFor(code uint16) ([]string, error) {
	entries, err := os.ReadDir(inputDir)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", inputDir, err)
	}
	var paths []string
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "event") {
			continue
		}
		caps, err := os.ReadFile(filepath.Join(sysInput, name, "device", "capabilities", "key"))
		if err != nil || !hasKeyBit(string(caps), code) {
			continue
		}
		paths = append(paths, filepath.Join(inputDir, name))
	}
	if len(paths) == 0 {
		return nil, errNoKeyboard
	}
	return paths, nil
}

// Diagnose explains why Register would fail, for the startup error message.
func Diagnose() (string, error) {
	paths, err := keyboardsFor(evdevKeys["P"])
	if err != nil {
		return "", err
	}
	for _, p := range paths {
		if f, err := os.Open(p); err == nil {
			f.Close()
			return fmt.Sprintf("%d keyboard(s) found, %s is readable", len(paths), p), nil
		}
	}
	return "", fmt.Errorf("found %d keyboard(s) but none is readable (run: sudo usermod -aG input $USER)", len(paths))
}
