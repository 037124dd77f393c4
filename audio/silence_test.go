package audio

import (
	"testing"
	"time"
)

func feedTicks(m *silenceMonitor, speech bool, n int) bool {
	stop := false
	for range n {
		if m.Tick(speech) {
			stop = true
		}
	}
	return stop
}

func TestSilenceMonitorNeedsSpeechFirst(t *testing.T) {
	m := newSilenceMonitor(time.Second, 16000)
	if feedTicks(m, false, 100) {
		t.Fatal("stopped without any speech")
	}
}

func TestSilenceMonitorStopsAfterWindow(t *testing.T) {
	m := newSilenceMonitor(time.Second, 16000) // 10 ticks
	if feedTicks(m, true, 20) {
		t.Fatal("stopped during speech")
	}
	for i := range 9 {
		if m.Tick(false) {
			t.Fatalf("stopped early at silent tick %d", i)
		}
	}
	if !m.Tick(false) {
		t.Fatal("expected stop after a full silent window")
	}
}

func TestSilenceMonitorSparseSpeechKeepsGoing(t *testing.T) {
	m := newSilenceMonitor(time.Second, 16000)
	feedTicks(m, true, 10)
	for range 5 {
		// 2 of every 10 ticks have speech, above the stop ratio
		if feedTicks(m, false, 4) || m.Tick(true) {
			t.Fatal("stopped while speaker was still talking")
		}
	}
}

func TestSilenceMonitorFeedComputesEnergy(t *testing.T) {
	m := newSilenceMonitor(200*time.Millisecond, 1000) // 100 frames per tick, 2 tick window
	loud := make([]int, 100)
	for i := range loud {
		loud[i] = 4000
	}
	quiet := make([]int, 200)

	if m.Feed(loud, 1) {
		t.Fatal("stopped on loud audio")
	}
	if !m.Feed(quiet, 1) {
		t.Fatal("expected stop after two quiet ticks")
	}
}
