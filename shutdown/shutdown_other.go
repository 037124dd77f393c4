//go:build !windows

// Package shutdown selects the signals that end the program cleanly.
package shutdown

import (
	"os"
	"os/signal"
	"syscall"
)

// Notify relays the stop signals to ch. A closed terminal sends SIGHUP,
// which must also discard an in-flight dictation.
func Notify(ch chan<- os.Signal) {
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
}
