package hotkey

import (
	"encoding/binary"
	"strconv"
	"strings"
)

// Linux input event codes from linux/input-event-codes.h.
const (
	evKey = 1

	keyRelease = 0
	keyPress   = 1

	inputEventSize = 24
)

var evdevModifiers = map[uint16]Modifier{
	29:  ModCtrl,  // KEY_LEFTCTRL
	97:  ModCtrl,  // KEY_RIGHTCTRL
	56:  ModAlt,   // KEY_LEFTALT
	100: ModAlt,   // KEY_RIGHTALT
	42:  ModShift, // KEY_LEFTSHIFT
	54:  ModShift, // KEY_RIGHTSHIFT
	125: ModSuper, // KEY_LEFTMETA
	126: ModSuper, // KEY_RIGHTMETA
}

var evdevKeys = map[string]uint16{
	"1": 2, "2": 3, "3": 4, "4": 5, "5": 6, "6": 7, "7": 8, "8": 9, "9": 10, "0": 11,
	"Q": 16, "W": 17, "E": 18, "R": 19, "T": 20, "Y": 21, "U": 22, "I": 23, "O": 24, "P": 25,
	"A": 30, "S": 31, "D": 32, "F": 33, "G": 34, "H": 35, "J": 36, "K": 37, "L": 38,
	"Z": 44, "X": 45, "C": 46, "V": 47, "B": 48, "N": 49, "M": 50,
	"F1": 59, "F2": 60, "F3": 61, "F4": 62, "F5": 63, "F6": 64,
	"F7": 65, "F8": 66, "F9": 67, "F10": 68, "F11": 87, "F12": 88,
	"Space": 57, "Tab": 15, "Enter": 28, "Escape": 1,
}

// chordMatcher follows key events from one keyboard and reports when the
// bound chord goes down with exactly its modifiers held.
type chordMatcher struct {
	mods Modifier
	key  uint16

	down    map[uint16]bool
	keyHeld bool
}

func newChordMatcher(b Binding) *chordMatcher {
	return &chordMatcher{
		mods: b.Mods,
		key:  evdevKeys[b.Key],
		down: make(map[uint16]bool),
	}
}

func (m *chordMatcher) held() Modifier {
	var mods Modifier
	for code := range m.down {
		mods |= evdevModifiers[code]
	}
	return mods
}

// event feeds one EV_KEY event. Auto-repeat (value 2) is ignored.
func (m *chordMatcher) event(code uint16, value int32) bool {
	if _, isMod := evdevModifiers[code]; isMod {
		switch value {
		case keyPress:
			m.down[code] = true
		case keyRelease:
			delete(m.down, code)
		}
		return false
	}
	if code != m.key {
		return false
	}
	switch value {
	case keyPress:
		if !m.keyHeld && m.held() == m.mods {
			m.keyHeld = true
			return true
		}
	case keyRelease:
		m.keyHeld = false
	}
	return false
}

// forEachKeyEvent decodes 64-bit struct input_event records and calls fn
// for every EV_KEY among them. A trailing partial record is dropped.
func forEachKeyEvent(buf []byte, fn func(code uint16, value int32)) {
	for i := 0; i+inputEventSize <= len(buf); i += inputEventSize {
		if binary.LittleEndian.Uint16(buf[i+16:]) != evKey {
			continue
		}
		fn(binary.LittleEndian.Uint16(buf[i+18:]), int32(binary.LittleEndian.Uint32(buf[i+20:])))
	}
}

// hasKeyBit reports whether a sysfs capability bitmap ("120013 0 ...",
// hex words of the platform long size, most significant first) has code set.
func hasKeyBit(bitmap string, code uint16) bool {
	words := strings.Fields(bitmap)
	idx := int(code) / strconv.IntSize
	if idx >= len(words) {
		return false
	}
	w, err := strconv.ParseUint(words[len(words)-1-idx], 16, 64)
	if err != nil {
		return false
	}
	return w&(1<<(uint(code)%strconv.IntSize)) != 0
}
