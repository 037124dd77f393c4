//go:build darwin

package beep

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
)

var (
	malgoCtx  *malgo.AllocatedContext
	ctxOnce   sync.Once
	playMu    sync.Mutex
	tailDelay = 50 * time.Millisecond
)

func platformPlay() func([]int16) {
	return playMalgo
}

// playMalgo opens a playback device for the length of one cue. Cues do not
// overlap; a second cue waits for the first.
func playMalgo(samples []int16) {
	ctxOnce.Do(func() {
		ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
		if err == nil {
			malgoCtx = ctx
		}
	})
	if malgoCtx == nil {
		return
	}

	playMu.Lock()
	defer playMu.Unlock()

	pcm := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(pcm[2*i:], uint16(s))
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = 1
	cfg.SampleRate = sampleRate

	var mu sync.Mutex
	pos := 0
	device, err := malgo.InitDevice(malgoCtx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(out, _ []byte, _ uint32) {
			mu.Lock()
			n := copy(out, pcm[pos:])
			pos += n
			mu.Unlock()
			clear(out[n:])
		},
	})
	if err != nil {
		return
	}
	defer device.Uninit()
	if err := device.Start(); err != nil {
		return
	}
	time.Sleep(time.Duration(len(samples))*time.Second/sampleRate + tailDelay)
	device.Stop()
}
