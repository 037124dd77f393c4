//go:build !linux && !darwin && !windows

package hotkey

import (
	"errors"
	"runtime"
)

var errUnsupported = errors.New("global hotkeys are not supported on " + runtime.GOOS)

type unsupported struct{ pressed chan struct{} }

func New(Binding) Hotkey { return &unsupported{pressed: make(chan struct{})} }

func (u *unsupported) Register() error          { return errUnsupported }
func (u *unsupported) Unregister()              {}
func (u *unsupported) Pressed() <-chan struct{} { return u.pressed }

func Diagnose() (string, error) { return "", errUnsupported }
