package main

import (
	"murmur/beep"
	"murmur/session"
)

// soundView plays a cue alongside the view changes that mark the start and
// end of a capture, and on failures.
type soundView struct {
	session.View
	cues *beep.Player
}

func (v soundView) ShowRecording() {
	v.cues.Play(beep.Start)
	v.View.ShowRecording()
}

func (v soundView) ShowStyleRecording() {
	v.cues.Play(beep.Start)
	v.View.ShowStyleRecording()
}

func (v soundView) ShowProcessing() {
	v.cues.Play(beep.Stop)
	v.View.ShowProcessing()
}

func (v soundView) Notify(n session.Notice) {
	if n.Kind == session.NoticeFailure {
		v.cues.Play(beep.Failure)
	}
	v.View.Notify(n)
}
