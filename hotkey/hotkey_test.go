package hotkey

import (
	"encoding/binary"
	"testing"
)

func TestParseBinding(t *testing.T) {
	for _, tt := range []struct {
		key, mods string
		want      Binding
		display   string
	}{
		{"P", "Alt", Binding{Mods: ModAlt, Key: "P"}, "Alt + P"},
		{"p", "ctrl+shift", Binding{Mods: ModCtrl | ModShift, Key: "P"}, "Ctrl + Shift + P"},
		{"space", "Shift, Ctrl", Binding{Mods: ModCtrl | ModShift, Key: "Space"}, "Ctrl + Shift + Space"},
		{"f9", "", Binding{Key: "F9"}, "F9"},
		{"Return", "cmd + option", Binding{Mods: ModAlt | ModSuper, Key: "Enter"}, "Alt + Win + Enter"},
		{"1", "Win Alt Shift Ctrl", Binding{Mods: ModCtrl | ModAlt | ModShift | ModSuper, Key: "1"}, "Ctrl + Alt + Shift + Win + 1"},
	} {
		t.Run(tt.display, func(t *testing.T) {
			got, err := ParseBinding(tt.key, tt.mods)
			if err != nil {
				t.Fatalf("ParseBinding(%q, %q) error = %v", tt.key, tt.mods, err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
			if s := got.String(); s != tt.display {
				t.Errorf("String() = %q, want %q", s, tt.display)
			}
		})
	}
}

func TestParseBindingErrors(t *testing.T) {
	for _, tt := range []struct{ key, mods string }{
		{"", "Alt"},
		{"PageUp", "Alt"},
		{"P", "Hyper"},
	} {
		if _, err := ParseBinding(tt.key, tt.mods); err == nil {
			t.Errorf("ParseBinding(%q, %q) should fail", tt.key, tt.mods)
		}
	}
}

func TestChordMatcher(t *testing.T) {
	const (
		lalt   = 56
		lctrl  = 29
		keyP   = 25
		repeat = 2
	)
	b, _ := ParseBinding("P", "Alt")

	type ev struct {
		code  uint16
		value int32
	}
	for _, tt := range []struct {
		name   string
		events []ev
		fires  int
	}{
		{"chord", []ev{{lalt, keyPress}, {keyP, keyPress}, {keyP, keyRelease}, {lalt, keyRelease}}, 1},
		{"key without modifier", []ev{{keyP, keyPress}, {keyP, keyRelease}}, 0},
		{"extra modifier", []ev{{lctrl, keyPress}, {lalt, keyPress}, {keyP, keyPress}}, 0},
		{"auto repeat fires once", []ev{{lalt, keyPress}, {keyP, keyPress}, {keyP, repeat}, {keyP, repeat}}, 1},
		{"press twice", []ev{{lalt, keyPress}, {keyP, keyPress}, {keyP, keyRelease}, {keyP, keyPress}}, 2},
		{"modifier released", []ev{{lalt, keyPress}, {lalt, keyRelease}, {keyP, keyPress}}, 0},
	} {
		t.Run(tt.name, func(t *testing.T) {
			m := newChordMatcher(b)
			fires := 0
			for _, e := range tt.events {
				if m.event(e.code, e.value) {
					fires++
				}
			}
			if fires != tt.fires {
				t.Errorf("fired %d times, want %d", fires, tt.fires)
			}
		})
	}
}

func TestEveryKeyHasEvdevCode(t *testing.T) {
	for name := range evdevKeys {
		if got, ok := canonicalKey(name); !ok || got != name {
			t.Errorf("canonicalKey(%q) = %q, %v", name, got, ok)
		}
	}
}

func TestFake(t *testing.T) {
	f := NewFake()
	if err := f.Register(); err != nil || !f.Registered() {
		t.Fatal("fake did not register")
	}
	f.SimPress()
	select {
	case <-f.Pressed():
	default:
		t.Fatal("press not delivered")
	}
	f.Unregister()
	if f.Registered() {
		t.Error("still registered")
	}
}

func inputEvent(typ, code uint16, value int32) []byte {
	b := make([]byte, inputEventSize)
	binary.LittleEndian.PutUint16(b[16:], typ)
	binary.LittleEndian.PutUint16(b[18:], code)
	binary.LittleEndian.PutUint32(b[20:], uint32(value))
	return b
}

func TestForEachKeyEvent(t *testing.T) {
	var buf []byte
	buf = append(buf, inputEvent(0, 0, 0)...)
	buf = append(buf, inputEvent(evKey, 25, keyPress)...)
	buf = append(buf, inputEvent(evKey, 25, keyRelease)...)
	buf = append(buf, 1, 2, 3)

	var got [][2]int32
	forEachKeyEvent(buf, func(code uint16, value int32) {
		got = append(got, [2]int32{int32(code), value})
	})
	if len(got) != 2 || got[0] != [2]int32{25, 1} || got[1] != [2]int32{25, 0} {
		t.Errorf("events = %v", got)
	}
}

func TestHasKeyBit(t *testing.T) {
	tests := []struct {
		bitmap string
		code   uint16
		want   bool
	}{
		{"2000000", 25, true},
		{"0 2000000", 25, true},
		{"2000000 0", 25, false},
		{"1000000", 25, false},
		{"", 25, false},
		{"zz", 1, false},
		{"2", 1, true},
	}
	for _, tt := range tests {
		if got := hasKeyBit(tt.bitmap, tt.code); got != tt.want {
			t.Errorf("hasKeyBit(%q, %d) = %v, want %v", tt.bitmap, tt.code, got, tt.want)
		}
	}
}
