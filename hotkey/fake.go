package hotkey

import "sync/atomic"

type FakeHotkey struct {
	pressed    chan struct{}
	registered atomic.Bool
}

func NewFake() *FakeHotkey {
	return &FakeHotkey{pressed: make(chan struct{}, 1)}
}

func (f *FakeHotkey) Register() error {
	f.registered.Store(true)
	return nil
}

func (f *FakeHotkey) Unregister()              { f.registered.Store(false) }
func (f *FakeHotkey) Pressed() <-chan struct{} { return f.pressed }
func (f *FakeHotkey) Registered() bool         { return f.registered.Load() }

func (f *FakeHotkey) SimPress() { f.pressed <- struct{}{} }
