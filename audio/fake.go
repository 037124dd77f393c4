package audio

import (
	"errors"
	"sync"
)

const fakeFrameSize = 1024

// FakeContext hands out captures that replay a fixed PCM buffer.
type FakeContext struct {
	PCM    []byte
	Config CaptureConfig
}

func NewFakeContext(pcm []byte, config CaptureConfig) *FakeContext {
	return &FakeContext{PCM: pcm, Config: config}
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "fake", Name: "fake"}}, nil
}

func (f *FakeContext) Close() {}

func (f *FakeContext) NewCapture(_ *DeviceInfo, _ CaptureConfig) (CaptureDevice, error) {
	return NewFakeCapture(f.PCM, f.Config), nil
}

// FakeCapture delivers its whole PCM buffer to the callback synchronously
// inside Start, then stays silent until stopped.
type FakeCapture struct {
	pcm    []byte
	config CaptureConfig

	// StartErr, when set, is returned by Start.
	StartErr error

	mu      sync.Mutex
	cb      DataCallback
	running bool
	starts  int
	stops   int
}

func NewFakeCapture(pcm []byte, config CaptureConfig) *FakeCapture {
	if config.SampleRate == 0 {
		config.SampleRate = SampleRate
	}
	if config.Channels == 0 {
		config.Channels = Channels
	}
	return &FakeCapture{pcm: pcm, config: config}
}

func (f *FakeCapture) SetCallback(cb DataCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeCapture) ClearCallback() {
	f.mu.Lock()
	f.cb = nil
	f.mu.Unlock()
}

func (f *FakeCapture) Start() error {
	f.mu.Lock()
	if f.StartErr != nil {
		f.mu.Unlock()
		return f.StartErr
	}
	if f.running {
		f.mu.Unlock()
		return errors.New("fake capture already running")
	}
	f.running = true
	f.starts++
	cb := f.cb
	f.mu.Unlock()

	if cb == nil {
		return nil
	}
	frameBytes := int(f.config.Channels) * 2
	chunk := fakeFrameSize * frameBytes
	for pos := 0; pos < len(f.pcm); pos += chunk {
		end := min(pos+chunk, len(f.pcm))
		data := make([]byte, end-pos)
		copy(data, f.pcm[pos:end])
		cb(data, uint32(len(data)/frameBytes))
	}
	return nil
}

func (f *FakeCapture) Stop() {
	f.mu.Lock()
	if f.running {
		f.stops++
	}
	f.running = false
	f.mu.Unlock()
}

func (f *FakeCapture) Close() { f.Stop() }

func (f *FakeCapture) Config() CaptureConfig { return f.config }

func (f *FakeCapture) DeviceName() string { return "fake" }

// Running reports whether the capture was started and not yet stopped.
func (f *FakeCapture) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *FakeCapture) Starts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

func (f *FakeCapture) Stops() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}
