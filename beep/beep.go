// Package beep plays short audible cues for dictation state changes.
package beep

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

type Cue int

const (
	Start Cue = iota
	Stop
	Failure
)

const sampleRate = 44100

type tone struct {
	freq   float64
	volume float64
	decay  float64
	dur    time.Duration
	// repeat plays the tone twice with gap between.
	repeat bool
	gap    time.Duration
}

var tones = map[Cue]tone{
	Start:   {freq: 1200, volume: 0.5, decay: 60, dur: 200 * time.Millisecond},
	Stop:    {freq: 900, volume: 0.5, decay: 40, dur: 200 * time.Millisecond},
	Failure: {freq: 350, volume: 0.6, decay: 30, dur: 80 * time.Millisecond, repeat: true, gap: 50 * time.Millisecond},
}

var (
	rendered   map[Cue][]int16
	renderOnce sync.Once
)

// Samples returns c as mono 16-bit PCM at 44.1 kHz. The slice is shared;
// callers must not modify it.
func Samples(c Cue) []int16 {
	renderOnce.Do(func() {
		rendered = make(map[Cue][]int16, len(tones))
		for cue, t := range tones {
			rendered[cue] = render(t)
		}
	})
	return rendered[c]
}

func render(t tone) []int16 {
	n := int(t.dur.Seconds() * sampleRate)
	out := make([]int16, n)
	for i := range out {
		x := float64(i) / sampleRate
		env := math.Exp(-x * t.decay)
		out[i] = int16(math.Sin(2*math.Pi*t.freq*x) * 32767 * t.volume * env)
	}
	if !t.repeat {
		return out
	}
	gap := make([]int16, int(t.gap.Seconds()*sampleRate))
	twice := make([]int16, 0, 2*n+len(gap))
	twice = append(twice, out...)
	twice = append(twice, gap...)
	return append(twice, out...)
}

// Player plays cues in the background. The zero value is silent.
type Player struct {
	play    func(samples []int16)
	enabled atomic.Bool
}

// New returns a player on the platform's default output. On platforms
// without playback support it is silent.
func New(enabled bool) *Player {
	return NewFunc(enabled, platformPlay())
}

// NewFunc returns a player that hands rendered samples to play.
func NewFunc(enabled bool, play func(samples []int16)) *Player {
	p := &Player{play: play}
	p.enabled.Store(enabled)
	return p
}

func (p *Player) SetEnabled(on bool) { p.enabled.Store(on) }

func (p *Player) Play(c Cue) {
	if p == nil || p.play == nil || !p.enabled.Load() {
		return
	}
	samples := Samples(c)
	if len(samples) == 0 {
		return
	}
	go p.play(samples)
}
