package main

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"murmur/audio"
	"murmur/config"
	"murmur/session"
)

type viewMode int

const (
	modeIdle viewMode = iota
	modeRecording
	modeStyleRecording
	modeProcessing
	modeStreaming
	modeEditing
)

// Messages sent by the orchestrator through tuiView.
type modeMsg struct{ mode viewMode }
type appendMsg struct{ text string }
type setTextMsg struct{ text string }
type closeMsg struct{}
type hideMsg struct{ onDone func() }
type hiddenMsg struct{ onDone func() }
type noticeMsg struct{ notice session.Notice }
type learningMsg struct{ active bool }
type settingsMsg struct{ settings config.Settings }
type deviceLineMsg struct{ text string }
type tickMsg time.Time

const hideDelay = 150 * time.Millisecond

// actions are the user inputs the TUI forwards to the orchestrator.
type actions interface {
	StopRecording()
	Confirm()
	Cancel()
	StartStyleRecording()
	UndoStyle()
	Edit(text string)
}

type tuiModel struct {
	act actions

	mode   viewMode
	text   []rune
	cursor int
	since  time.Time
	now    time.Time
	frame  int
	hiding bool

	notice   *session.Notice
	learning bool
	lastText string

	binding      string
	styleKey     string
	settingsLine string
	deviceLine   string

	width, height int
}

var (
	titleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("4")).Bold(true)
	recStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	styleRecStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("135")).Bold(true)
	busyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	editStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	textStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	warnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	errStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("160"))
)

var spinner = []rune("⠋⠙⠹⠸⠼⠴⠦⠧⠇⠏")

func newTUIModel(act actions, binding string, s config.Settings) tuiModel {
	return tuiModel{
		act:          act,
		binding:      binding,
		styleKey:     strings.ToLower(strings.TrimSpace(s.StyleKey)),
		settingsLine: settingsLineText(s),
		now:          time.Now(),
	}
}

func settingsLineText(s config.Settings) string {
	line := fmt.Sprintf("[%s | %s", s.TranscriptionModel, s.Language)
	if s.ScreenContext {
		line += " | screen"
	}
	return line + "]"
}

func deviceLineText(dev *audio.DeviceInfo) string {
	name := "system default"
	suffix := ""
	if dev != nil {
		name = dev.Name
		if audio.IsBluetooth(dev.Name) {
			suffix = " (BT!)"
		}
	}
	return "mic: " + name + suffix
}

func tuiTick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	return tuiTick()
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		return m.key(msg)

	case tickMsg:
		m.frame++
		m.now = time.Time(msg)
		return m, tuiTick()

	case modeMsg:
		if msg.mode == modeRecording || msg.mode == modeStyleRecording {
			m.since = time.Now()
			m.now = m.since
		}
		if msg.mode == modeRecording {
			m.notice = nil
			m.text, m.cursor = nil, 0
		}
		m.mode = msg.mode

	case appendMsg:
		m.text = append(m.text, []rune(msg.text)...)
		m.cursor = len(m.text)

	case setTextMsg:
		m.text = []rune(msg.text)
		m.cursor = len(m.text)

	case closeMsg:
		m.lastText = string(m.text)
		m.mode = modeIdle
		m.text, m.cursor = nil, 0

	case hideMsg:
		m.mode = modeIdle
		m.text, m.cursor = nil, 0
		m.hiding = true
		return m, tea.Tick(hideDelay, func(time.Time) tea.Msg { return hiddenMsg(msg) })

	case hiddenMsg:
		m.hiding = false
		if msg.onDone != nil {
			msg.onDone()
		}

	case noticeMsg:
		n := msg.notice
		m.notice = &n

	case learningMsg:
		m.learning = msg.active

	case settingsMsg:
		m.settingsLine = settingsLineText(msg.settings)
		m.styleKey = strings.ToLower(strings.TrimSpace(msg.settings.StyleKey))

	case deviceLineMsg:
		m.deviceLine = msg.text
	}
	return m, nil
}

func (m tuiModel) key(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	k := msg.String()
	if k == "ctrl+c" {
		return m, tea.Quit
	}

	switch m.mode {
	case modeIdle:
		if k == "q" {
			return m, tea.Quit
		}

	case modeRecording, modeStyleRecording:
		switch k {
		case "enter", " ":
			m.act.StopRecording()
		case "esc":
			m.act.Cancel()
		}

	case modeProcessing, modeStreaming:
		if k == "esc" {
			m.act.Cancel()
		}

	case modeEditing:
		return m.editKey(msg), nil
	}
	return m, nil
}

func (m tuiModel) editKey(msg tea.KeyMsg) tuiModel {
	k := msg.String()
	if m.styleKey != "" && k == m.styleKey {
		m.act.StartStyleRecording()
		return m
	}
	switch k {
	case "enter":
		m.act.Confirm()
		return m
	case "esc":
		m.act.Cancel()
		return m
	case "ctrl+z":
		m.act.UndoStyle()
		return m
	case "left":
		m.cursor = max(m.cursor-1, 0)
		return m
	case "right":
		m.cursor = min(m.cursor+1, len(m.text))
		return m
	case "home", "ctrl+a":
		m.cursor = 0
		return m
	case "end", "ctrl+e":
		m.cursor = len(m.text)
		return m
	case "backspace":
		if m.cursor == 0 {
			return m
		}
		m.text = append(m.text[:m.cursor-1:m.cursor-1], m.text[m.cursor:]...)
		m.cursor--
	case "delete":
		if m.cursor >= len(m.text) {
			return m
		}
		m.text = append(m.text[:m.cursor:m.cursor], m.text[m.cursor+1:]...)
	default:
		var ins []rune
		switch msg.Type {
		case tea.KeyRunes:
			ins = msg.Runes
		case tea.KeySpace:
			ins = []rune{' '}
		default:
			return m
		}
		next := make([]rune, 0, len(m.text)+len(ins))
		next = append(next, m.text[:m.cursor]...)
		next = append(next, ins...)
		next = append(next, m.text[m.cursor:]...)
		m.text = next
		m.cursor += len(ins)
	}
	m.act.Edit(string(m.text))
	return m
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}
	wrap := max(m.width-2, 10)

	var lines []string
	lines = append(lines, titleStyle.Render("murmur")+" "+helpStyle.Render(version))
	if m.settingsLine != "" {
		lines = append(lines, dimStyle.Render(m.settingsLine))
	}
	if m.deviceLine != "" {
		lines = append(lines, dimStyle.Render(m.deviceLine))
	}
	lines = append(lines, "", m.statusLine(), "")

	switch {
	case m.mode == modeEditing:
		withCursor := string(m.text[:m.cursor]) + "▏" + string(m.text[m.cursor:])
		for _, l := range wrapText(withCursor, wrap) {
			lines = append(lines, textStyle.Render(l))
		}
	case m.mode == modeStreaming || len(m.text) > 0:
		for _, l := range wrapText(string(m.text), wrap) {
			lines = append(lines, textStyle.Render(l))
		}
	case m.mode == modeIdle && m.lastText != "":
		lines = append(lines, dimStyle.Render("Last dictation"))
		for _, l := range wrapText(m.lastText, wrap) {
			lines = append(lines, dimStyle.Render(l))
		}
	}

	lines = append(lines, "")
	if m.notice != nil {
		lines = append(lines, m.noticeLines(wrap)...)
	}
	if m.learning {
		lines = append(lines, busyStyle.Render("learning from your last correction..."))
	}
	lines = append(lines, helpStyle.Render(m.helpLine()))

	return lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		PaddingLeft(1).
		Render(strings.Join(lines, "\n"))
}

func (m tuiModel) elapsed() float64 {
	if m.since.IsZero() || m.now.Before(m.since) {
		return 0
	}
	return m.now.Sub(m.since).Seconds()
}

func (m tuiModel) statusLine() string {
	spin := string(spinner[m.frame%len(spinner)])
	switch m.mode {
	case modeRecording:
		return recStyle.Render(fmt.Sprintf("● REC %.1fs", m.elapsed()))
	case modeStyleRecording:
		return styleRecStyle.Render(fmt.Sprintf("● STYLE %.1fs", m.elapsed())) +
			dimStyle.Render("  say how the text should change")
	case modeProcessing:
		return busyStyle.Render(spin + " transcribing")
	case modeStreaming:
		return busyStyle.Render(spin + " streaming")
	case modeEditing:
		return editStyle.Render("✎ EDIT")
	}
	if m.hiding {
		return dimStyle.Render("○ discarded")
	}
	return dimStyle.Render("○ READY")
}

func (m tuiModel) noticeLines(wrap int) []string {
	n := m.notice
	var out []string
	switch n.Kind {
	case session.NoticeSettingsRequired:
		out = append(out, warnStyle.Render(n.Message))
		if n.Path != "" {
			out = append(out, dimStyle.Render("settings: "+n.Path))
		}
	case session.NoticeNoSpeech:
		out = append(out, warnStyle.Render(n.Message))
	default:
		for _, l := range wrapText("Error: "+n.Message, wrap) {
			out = append(out, errStyle.Render(l))
		}
	}
	return out
}

func (m tuiModel) helpLine() string {
	switch m.mode {
	case modeRecording:
		return m.binding + " or enter to stop · esc cancel"
	case modeStyleRecording:
		return m.binding + " or enter to stop · esc keep text"
	case modeProcessing, modeStreaming:
		return "esc cancel"
	case modeEditing:
		help := "enter paste · esc discard · ctrl+z undo style"
		if m.styleKey != "" {
			help = "enter paste · " + m.styleKey + " restyle by voice · esc discard · ctrl+z undo style"
		}
		return help
	}
	return m.binding + " to dictate · q quit"
}

// wrapText breaks text at spaces so no line exceeds width runes. Existing
// line breaks are kept.
func wrapText(text string, width int) []string {
	if text == "" {
		return []string{""}
	}
	width = max(width, 1)

	var lines []string
	for _, para := range strings.Split(text, "\n") {
		r := []rune(para)
		for len(r) > width {
			splitAt := width
			for i := width; i > 0; i-- {
				if r[i] == ' ' {
					splitAt = i
					break
				}
			}
			lines = append(lines, string(r[:splitAt]))
			r = []rune(strings.TrimLeft(string(r[splitAt:]), " "))
		}
		lines = append(lines, string(r))
	}
	return lines
}

// tuiView adapts the Bubble Tea program to session.View. Messages are
// queued and forwarded in order by a single goroutine so the orchestrator
// never waits on a render.
type tuiView struct {
	queue chan tea.Msg
}

func newTUIView() *tuiView {
	return &tuiView{queue: make(chan tea.Msg, 256)}
}

func (v *tuiView) attach(p *tea.Program) {
	go func() {
		for msg := range v.queue {
			p.Send(msg)
		}
	}()
}

func (v *tuiView) send(msg tea.Msg) { v.queue <- msg }

func (v *tuiView) ShowRecording()             { v.send(modeMsg{modeRecording}) }
func (v *tuiView) ShowStyleRecording()        { v.send(modeMsg{modeStyleRecording}) }
func (v *tuiView) ShowProcessing()            { v.send(modeMsg{modeProcessing}) }
func (v *tuiView) ShowStreaming()             { v.send(modeMsg{modeStreaming}) }
func (v *tuiView) ShowEditing()               { v.send(modeMsg{modeEditing}) }
func (v *tuiView) AppendText(fragment string) { v.send(appendMsg{fragment}) }
func (v *tuiView) SetText(text string)        { v.send(setTextMsg{text}) }
func (v *tuiView) Close()                     { v.send(closeMsg{}) }
func (v *tuiView) HideWithAnimation(onDone func()) {
	v.send(hideMsg{onDone})
}
func (v *tuiView) Notify(n session.Notice) { v.send(noticeMsg{n}) }
