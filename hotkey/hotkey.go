package hotkey

import (
	"fmt"
	"strings"
)

// Hotkey is a global key chord. Pressed fires once per press of the chord;
// holding the key does not repeat.
type Hotkey interface {
	Register() error
	Unregister()
	Pressed() <-chan struct{}
}

type Modifier uint8

const (
	ModCtrl Modifier = 1 << iota
	ModAlt
	ModShift
	ModSuper
)

var modifierOrder = []struct {
	mod   Modifier
	label string
}{
	{ModCtrl, "Ctrl"},
	{ModAlt, "Alt"},
	{ModShift, "Shift"},
	{ModSuper, "Win"},
}

var modifierNames = map[string]Modifier{
	"ctrl":    ModCtrl,
	"control": ModCtrl,
	"alt":     ModAlt,
	"option":  ModAlt,
	"opt":     ModAlt,
	"shift":   ModShift,
	"win":     ModSuper,
	"super":   ModSuper,
	"meta":    ModSuper,
	"cmd":     ModSuper,
	"command": ModSuper,
}

// Binding is a parsed chord. Key is the canonical key name, e.g. "P",
// "F9" or "Space".
type Binding struct {
	Mods Modifier
	Key  string
}

// ParseBinding validates a key name and a modifier list such as
// "Ctrl+Shift" or "alt, win".
func ParseBinding(key, modifiers string) (Binding, error) {
	name, ok := canonicalKey(key)
	if !ok {
		return Binding{}, fmt.Errorf("unknown hotkey key %q", key)
	}
	b := Binding{Key: name}
	for _, part := range strings.FieldsFunc(modifiers, func(r rune) bool {
		return r == '+' || r == ',' || r == ' '
	}) {
		m, ok := modifierNames[strings.ToLower(part)]
		if !ok {
			return Binding{}, fmt.Errorf("unknown hotkey modifier %q", part)
		}
		b.Mods |= m
	}
	return b, nil
}

// String formats the chord for display, e.g. "Ctrl + Shift + P".
func (b Binding) String() string {
	var parts []string
	for _, m := range modifierOrder {
		if b.Mods&m.mod != 0 {
			parts = append(parts, m.label)
		}
	}
	return strings.Join(append(parts, b.Key), " + ")
}

// canonicalKey maps user input to a name in the key tables.
func canonicalKey(key string) (string, bool) {
	k := strings.TrimSpace(key)
	if k == "" {
		return "", false
	}
	switch strings.ToLower(k) {
	case "space":
		return "Space", true
	case "tab":
		return "Tab", true
	case "enter", "return":
		return "Enter", true
	case "esc", "escape":
		return "Escape", true
	}
	k = strings.ToUpper(k)
	if _, ok := evdevKeys[k]; ok {
		return k, true
	}
	return "", false
}
