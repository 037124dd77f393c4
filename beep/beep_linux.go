//go:build linux

package beep

import (
	"sync"

	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"
)

// pulseOut shares one server connection between cues and plays them one at
// a time. A failed connection leaves cues silent for the process lifetime.
type pulseOut struct {
	once   sync.Once
	client *pulse.Client
	mu     sync.Mutex
}

func platformPlay() func([]int16) {
	return (&pulseOut{}).play
}

func (o *pulseOut) play(samples []int16) {
	o.once.Do(func() {
		if c, err := pulse.NewClient(); err == nil {
			o.client = c
		}
	})
	if o.client == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	rest := samples
	src := pulse.Int16Reader(func(buf []int16) (int, error) {
		if len(rest) == 0 {
			return 0, pulse.EndOfData
		}
		n := copy(buf, rest)
		rest = rest[n:]
		return n, nil
	})
	stream, err := o.client.NewPlayback(src,
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(sampleRate),
		pulse.PlaybackLatency(0.1),
		pulse.PlaybackRawOption(func(p *proto.CreatePlaybackStream) {
			p.ChannelVolumes = proto.ChannelVolumes{uint32(proto.VolumeNorm)}
		}),
	)
	if err != nil {
		return
	}
	defer stream.Close()
	stream.Start()
	stream.Drain()
}
