//go:build linux

package main

// The evdev hotkey reader needs no main thread, so run directly.
func main() {
	run()
}
