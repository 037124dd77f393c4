package clipboard

import (
	"context"
	"fmt"
	"time"

	cb "github.com/atotto/clipboard"

	"murmur/log"
)

const (
	writeAttempts = 5
	writeRetry    = 50 * time.Millisecond
	settle        = 100 * time.Millisecond
	restoreAfter  = 300 * time.Millisecond
)

func Read() (string, error) {
	return cb.ReadAll()
}

func Copy(text string) error {
	return cb.WriteAll(text)
}

// Paster puts text on the clipboard and sends the paste keystroke to the
// focused application.
type Paster struct {
	// Restore puts the previous clipboard content back after pasting.
	Restore bool

	read  func() (string, error)
	write func(string) error
	paste func() error
	sleep func(context.Context, time.Duration) error
}

func NewPaster(restore bool) *Paster {
	return &Paster{
		Restore: restore,
		read:    Read,
		write:   Copy,
		paste:   Paste,
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetClipboardAndPaste writes text, retrying while another program holds
// the clipboard, then pastes it.
func (p *Paster) SetClipboardAndPaste(ctx context.Context, text string) error {
	var previous string
	havePrevious := false
	if p.Restore {
		if s, err := p.read(); err == nil {
			previous, havePrevious = s, true
		}
	}

	var err error
	for attempt := 1; attempt <= writeAttempts; attempt++ {
		if err = p.write(text); err == nil {
			break
		}
		log.Warnf("clipboard write attempt %d: %v", attempt, err)
		if attempt < writeAttempts {
			if serr := p.sleep(ctx, writeRetry); serr != nil {
				return serr
			}
		}
	}
	if err != nil {
		return fmt.Errorf("clipboard busy: %w", err)
	}

	if err := p.sleep(ctx, settle); err != nil {
		return err
	}
	if err := p.paste(); err != nil {
		return fmt.Errorf("paste keystroke: %w", err)
	}

	if havePrevious {
		if err := p.sleep(ctx, restoreAfter); err != nil {
			return err
		}
		if err := p.write(previous); err != nil {
			log.Warnf("clipboard restore: %v", err)
		}
	}
	return nil
}
