//go:build windows

// Package shutdown selects the signals that end the program cleanly.
package shutdown

import (
	"os"
	"os/signal"
	"syscall"
)

// Notify relays Ctrl+C and console close to ch.
func Notify(ch chan<- os.Signal) {
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
}
