//go:build linux

package audio

import (
	"encoding/binary"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jfreymuth/pulse"
)

// pulseNativeRate is what the server usually runs at; asking for it avoids
// a server-side resample and the recorder brings it down to 16 kHz.
const pulseNativeRate = 48000

type pulseBackend struct {
	client *pulse.Client
}

// NewContext connects to the PulseAudio (or PipeWire-pulse) server.
func NewContext() (Context, error) {
	c, err := pulse.NewClient()
	if err != nil {
		return nil, fmt.Errorf("connecting to pulse server: %w", err)
	}
	return &pulseBackend{client: c}, nil
}

// Devices lists input sources. Monitor sources mirror an output and are
// never a microphone, so they are left out.
func (b *pulseBackend) Devices() ([]DeviceInfo, error) {
	sources, err := b.client.ListSources()
	if err != nil {
		return nil, fmt.Errorf("listing pulse sources: %w", err)
	}
	devices := make([]DeviceInfo, 0, len(sources))
	for _, s := range sources {
		if strings.HasSuffix(s.ID(), ".monitor") {
			continue
		}
		devices = append(devices, DeviceInfo{ID: s.ID(), Name: s.Name()})
	}
	return devices, nil
}

func (b *pulseBackend) NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error) {
	if config.SampleRate == 0 {
		config.SampleRate = pulseNativeRate
	}
	if config.Channels != 2 {
		config.Channels = 1
	}
	return &pulseCapture{client: b.client, device: device, config: config}, nil
}

func (b *pulseBackend) Close() { b.client.Close() }

// pulseCapture opens a fresh record stream per Start. The running stream
// lives in run so Stop never races a later Start.
type pulseCapture struct {
	client *pulse.Client
	device *DeviceInfo
	config CaptureConfig
	sink   atomic.Pointer[DataCallback]

	mu  sync.Mutex
	run *pulseRun
}

type pulseRun struct {
	stream *pulse.RecordStream
	once   sync.Once
}

func (r *pulseRun) halt() {
	r.once.Do(func() {
		r.stream.Stop()
		r.stream.Close()
	})
}

func (c *pulseCapture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.run != nil {
		return nil
	}

	channels := int(c.config.Channels)
	var scratch []byte
	writer := pulse.Int16Writer(func(buf []int16) (int, error) {
		cb := c.sink.Load()
		if cb == nil || len(buf) == 0 {
			return len(buf), nil
		}
		if cap(scratch) < len(buf)*2 {
			scratch = make([]byte, len(buf)*2)
		}
		out := scratch[:len(buf)*2]
		for i, s := range buf {
			binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
		}
		(*cb)(out, uint32(len(buf)/channels))
		return len(buf), nil
	})

	opts := []pulse.RecordOption{
		pulse.RecordSampleRate(int(c.config.SampleRate)),
		pulse.RecordLatency(0.05),
		pulse.RecordMono,
	}
	if channels == 2 {
		opts[2] = pulse.RecordStereo
	}
	if c.device != nil {
		if src, err := c.client.SourceByID(c.device.ID); err == nil && src != nil {
			opts = append(opts, pulse.RecordSource(src))
		}
	}

	stream, err := c.client.NewRecord(writer, opts...)
	if err != nil {
		return fmt.Errorf("opening pulse record stream: %w", err)
	}
	stream.Start()
	c.run = &pulseRun{stream: stream}
	return nil
}

func (c *pulseCapture) Stop() {
	c.mu.Lock()
	run := c.run
	c.run = nil
	c.mu.Unlock()
	if run != nil {
		run.halt()
	}
}

func (c *pulseCapture) Close() { c.Stop() }

func (c *pulseCapture) SetCallback(cb DataCallback) { c.sink.Store(&cb) }

func (c *pulseCapture) ClearCallback() { c.sink.Store(nil) }

func (c *pulseCapture) Config() CaptureConfig { return c.config }

func (c *pulseCapture) DeviceName() string {
	if c.device != nil {
		return c.device.Name
	}
	return "system default"
}
