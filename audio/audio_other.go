//go:build !linux

package audio

import (
	"encoding/hex"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

// miniBackend captures through miniaudio (CoreAudio, WASAPI).
type miniBackend struct {
	ctx *malgo.AllocatedContext
}

func NewContext() (Context, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("initializing miniaudio: %w", err)
	}
	return &miniBackend{ctx: ctx}, nil
}

// Devices lists capture devices with the system default first. IDs are the
// hex form of the miniaudio device id.
func (b *miniBackend) Devices() ([]DeviceInfo, error) {
	infos, err := b.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("listing capture devices: %w", err)
	}
	sort.SliceStable(infos, func(i, j int) bool {
		return infos[i].IsDefault != 0 && infos[j].IsDefault == 0
	})
	out := make([]DeviceInfo, 0, len(infos))
	for _, d := range infos {
		out = append(out, DeviceInfo{ID: hex.EncodeToString(d.ID[:]), Name: d.Name()})
	}
	return out, nil
}

// NewCapture opens the device as int16. A zero rate or channel count lets
// miniaudio pick the device's native value; Config reports the outcome.
func (b *miniBackend) NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error) {
	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = config.Channels
	cfg.SampleRate = config.SampleRate

	c := &miniCapture{name: "system default"}
	if device != nil {
		raw, err := hex.DecodeString(device.ID)
		if err != nil {
			return nil, fmt.Errorf("device id %q: %w", device.ID, err)
		}
		var id malgo.DeviceID
		copy(id[:], raw)
		cfg.Capture.DeviceID = id.Pointer()
		c.name = device.Name
	}

	dev, err := malgo.InitDevice(b.ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(_, input []byte, frames uint32) {
			if cb := c.sink.Load(); cb != nil {
				(*cb)(input, frames)
			}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", c.name, err)
	}
	c.dev = dev
	c.config = CaptureConfig{SampleRate: dev.SampleRate(), Channels: dev.CaptureChannels()}
	return c, nil
}

func (b *miniBackend) Close() {
	b.ctx.Uninit()
	b.ctx.Free()
}

type miniCapture struct {
	dev    *malgo.Device
	name   string
	config CaptureConfig
	sink   atomic.Pointer[DataCallback]
}

func (c *miniCapture) Start() error                { return c.dev.Start() }
func (c *miniCapture) Stop()                       { c.dev.Stop() }
func (c *miniCapture) Close()                      { c.dev.Uninit() }
func (c *miniCapture) SetCallback(cb DataCallback) { c.sink.Store(&cb) }
func (c *miniCapture) ClearCallback()              { c.sink.Store(nil) }
func (c *miniCapture) Config() CaptureConfig       { return c.config }
func (c *miniCapture) DeviceName() string          { return c.name }
