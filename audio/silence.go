package audio

import (
	"math"
	"time"
)

const (
	tickInterval    = 100 * time.Millisecond
	speechMinRatio  = 0.10
	energyThreshold = 500.0 // RMS on the int16 scale
)

// silenceMonitor watches 100 ms ticks of audio and reports when the speaker
// has gone quiet for a whole window after having spoken at least once.
type silenceMonitor struct {
	windowSz    int
	ticks       int
	window      []bool
	speechCount int
	heard       bool

	tickFrames int
	frames     int
	sumSq      float64
}

func newSilenceMonitor(stopAfter time.Duration, sampleRate int) *silenceMonitor {
	windowSz := max(int(stopAfter/tickInterval), 1)
	return &silenceMonitor{
		windowSz:   windowSz,
		window:     make([]bool, windowSz),
		tickFrames: max(sampleRate*int(tickInterval/time.Millisecond)/1000, 1),
	}
}

// Feed consumes interleaved int16 samples and returns true once the
// silence window has elapsed.
func (m *silenceMonitor) Feed(samples []int, channels int) bool {
	stop := false
	for i := 0; i+channels <= len(samples); i += channels {
		v := 0
		for c := range channels {
			v += samples[i+c]
		}
		f := float64(v / channels)
		m.sumSq += f * f
		m.frames++
		if m.frames == m.tickFrames {
			rms := math.Sqrt(m.sumSq / float64(m.frames))
			m.frames, m.sumSq = 0, 0
			if m.Tick(rms > energyThreshold) {
				stop = true
			}
		}
	}
	return stop
}

func (m *silenceMonitor) Tick(hasSpeech bool) bool {
	idx := m.ticks % m.windowSz
	if m.ticks >= m.windowSz && m.window[idx] {
		m.speechCount--
	}
	m.window[idx] = hasSpeech
	if hasSpeech {
		m.speechCount++
		m.heard = true
	}
	m.ticks++

	if !m.heard || m.ticks < m.windowSz {
		return false
	}
	return float64(m.speechCount)/float64(m.windowSz) < speechMinRatio
}
