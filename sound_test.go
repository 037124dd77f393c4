package main

import (
	"sync"
	"testing"
	"time"

	"murmur/beep"
	"murmur/session"
)

type countingView struct {
	session.View
	mu    sync.Mutex
	calls []string
}

func (v *countingView) add(s string) {
	v.mu.Lock()
	v.calls = append(v.calls, s)
	v.mu.Unlock()
}

func (v *countingView) ShowRecording()          { v.add("recording") }
func (v *countingView) ShowProcessing()         { v.add("processing") }
func (v *countingView) Notify(n session.Notice) { v.add("notify") }

func TestSoundViewCues(t *testing.T) {
	var mu sync.Mutex
	var cues []int
	player := beep.NewFunc(true, func(s []int16) {
		mu.Lock()
		cues = append(cues, len(s))
		mu.Unlock()
	})
	inner := &countingView{}
	v := soundView{View: inner, cues: player}

	v.ShowRecording()
	v.ShowProcessing()
	v.Notify(session.Notice{Kind: session.NoticeNoSpeech})
	v.Notify(session.Notice{Kind: session.NoticeFailure})

	deadline := time.Now().Add(time.Second)
	for {
		mu.Lock()
		n := len(cues)
		mu.Unlock()
		if n >= 3 || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}
	time.Sleep(10 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(cues) != 3 {
		t.Fatalf("played %d cues, want 3 (no cue for a no-speech notice)", len(cues))
	}
	if len(inner.calls) != 4 {
		t.Errorf("inner view calls = %v", inner.calls)
	}
}
