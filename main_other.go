//go:build !linux

package main

import (
	"runtime"

	"golang.design/x/hotkey/mainthread"
)

func init() {
	runtime.LockOSThread()
}

// x/hotkey dispatches registration on the OS main thread.
func main() {
	mainthread.Init(run)
}
