package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"murmur/log"
	"murmur/metrics"
	"murmur/transcriber"
)

var errBlankInstruction = errors.New("no style instruction heard")

func (o *Orchestrator) onStartStyle() {
	s := o.cur
	if !o.current(s, Preview) {
		return
	}
	s.beforeStyle, s.beforeOrig = s.text, s.original
	s.styleGen = o.styleGen.Add(1)
	autoStop, err := o.recorder.Start()
	if err != nil {
		log.Errorf("session %s style capture: %v", s.id, err)
		o.view.Notify(Notice{Kind: NoticeFailure, Message: oneLine(fmt.Errorf("could not start recording: %w", err))})
		return
	}
	s.capture++
	o.setState(s, StyleRecording)
	o.view.ShowStyleRecording()
	o.watchAutoStop(s, autoStop, s.capture, StyleRecording)
}

func (o *Orchestrator) stopStyleRecording(s *session) {
	o.setState(s, StyleStreaming)
	o.view.ShowProcessing()
	ctx, cancel := context.WithCancel(s.ctx)
	s.op = cancel
	s.styled = ""
	s.styleStarted = false
	go o.restyle(ctx, s, s.styleGen, s.text)
}

// restyle transcribes the spoken instruction, then streams the reformatted
// text. Every result carries gen and is dropped once it is stale.
func (o *Orchestrator) restyle(ctx context.Context, s *session, gen uint64, text string) {
	path, err := o.recorder.Stop()
	if err != nil {
		o.post(func() { o.styleFailed(s, gen, fmt.Errorf("finishing capture: %w", err)) })
		return
	}
	defer removeAudio(path)

	instruction, err := transcriber.Collect(s.client.TranscribeStyleInstruction(ctx, path))
	if err != nil {
		o.post(func() { o.styleFailed(s, gen, err) })
		return
	}
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		o.post(func() { o.styleFailed(s, gen, errBlankInstruction) })
		return
	}
	log.Infof("session_style id=%s instruction=%q", s.id, instruction)

	for frag, err := range s.client.ReformatStream(ctx, text, instruction) {
		if err != nil {
			o.post(func() { o.styleFailed(s, gen, err) })
			return
		}
		if frag == "" {
			continue
		}
		o.post(func() { o.onStyleFragment(s, gen, frag) })
	}
	if ctx.Err() != nil {
		return
	}
	o.post(func() { o.styleDone(s, gen) })
}

func (o *Orchestrator) styleCurrent(s *session, gen uint64) bool {
	return o.current(s, StyleStreaming) && s.styleGen == gen && o.styleGen.Load() == gen
}

func (o *Orchestrator) onStyleFragment(s *session, gen uint64, frag string) {
	if !o.styleCurrent(s, gen) {
		return
	}
	if !s.styleStarted {
		s.styleStarted = true
		o.view.SetText("")
		o.view.ShowStreaming()
	}
	s.styled += frag
	o.view.AppendText(frag)
}

func (o *Orchestrator) styleDone(s *session, gen uint64) {
	if !o.styleCurrent(s, gen) {
		if o.cur == s {
			metrics.RecordStyle(metrics.StyleStale)
		}
		return
	}
	result := strings.TrimSpace(s.styled)
	if result == "" {
		o.restoreStyle(s, metrics.StyleEmpty)
		return
	}
	s.undoText, s.undoOrig = s.beforeStyle, s.beforeOrig
	s.canUndo = true
	// later edits are learned against the reformatted text
	s.text, s.original = result, result
	s.op = nil
	s.styled = ""
	o.view.SetText(result)
	o.view.ShowEditing()
	o.setState(s, Preview)
	metrics.RecordStyle(metrics.StyleApplied)
}

func (o *Orchestrator) styleFailed(s *session, gen uint64, err error) {
	if !o.styleCurrent(s, gen) || errors.Is(err, context.Canceled) {
		return
	}
	if errors.Is(err, errBlankInstruction) {
		log.Infof("session_style_empty id=%s", s.id)
		o.restoreStyle(s, metrics.StyleEmpty)
		return
	}
	log.Errorf("session %s restyle failed: %v", s.id, err)
	o.restoreStyle(s, metrics.StyleFailed)
}

// cancelStyle abandons the style operation in flight. Bumping the
// generation makes any result already queued a no-op.
func (o *Orchestrator) cancelStyle(s *session) {
	o.styleGen.Add(1)
	o.restoreStyle(s, metrics.StyleCancelled)
}

// restoreStyle puts back the text from before the style recording and
// returns to editing.
func (o *Orchestrator) restoreStyle(s *session, outcome string) {
	if s.op != nil {
		s.op()
		s.op = nil
	}
	s.text, s.original = s.beforeStyle, s.beforeOrig
	s.styled = ""
	o.view.SetText(s.text)
	o.view.ShowEditing()
	o.setState(s, Preview)
	metrics.RecordStyle(outcome)
}

func (o *Orchestrator) onUndoStyle() {
	s := o.cur
	if !o.current(s, Preview) || !s.canUndo {
		return
	}
	s.text, s.original = s.undoText, s.undoOrig
	s.canUndo = false
	o.view.SetText(s.text)
	log.Infof("session_style_undo id=%s", s.id)
}
