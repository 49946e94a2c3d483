// Package delivery hands finished text to the user: the clipboard always,
// and a paste keystroke into the focused application when requested.
package delivery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/mattn/go-shellwords"
)

var (
	ErrDelivery = errors.New("delivery failed")
	// ErrPasteUnavailable is returned for auto-paste when no paste injector
	// is configured. The text is still on the clipboard.
	ErrPasteUnavailable = fmt.Errorf("%w: paste injector unavailable", ErrDelivery)
)

// Clipboard is the system pasteboard.
type Clipboard interface {
	WriteAll(text string) error
}

type systemClipboard struct{}

// SystemClipboard uses the platform clipboard tools (pbcopy, xclip, xsel,
// wl-copy or the Windows API).
func SystemClipboard() Clipboard { return systemClipboard{} }

func (systemClipboard) WriteAll(text string) error {
	if clipboard.Unsupported {
		return errors.New("no clipboard utility found")
	}
	return clipboard.WriteAll(text)
}

// Result reports whether the paste keystroke was sent.
type Result struct {
	Pasted bool
}

type Dispatcher struct {
	clipboard  Clipboard
	paste      []string
	pasteDelay time.Duration
	logger     *slog.Logger
}

// NewDispatcher builds a dispatcher. pasteCommand is run after the clipboard
// write to synthesize the paste shortcut (for example "xdotool key ctrl+v");
// empty disables auto-paste.
func NewDispatcher(clip Clipboard, pasteCommand string, pasteDelay time.Duration, logger *slog.Logger) (*Dispatcher, error) {
	var paste []string
	if strings.TrimSpace(pasteCommand) != "" {
		args, err := shellwords.Parse(pasteCommand)
		if err != nil {
			return nil, fmt.Errorf("parse paste command: %w", err)
		}
		paste = args
	}
	return &Dispatcher{
		clipboard:  clip,
		paste:      paste,
		pasteDelay: pasteDelay,
		logger:     logger.With(slog.String("component", "delivery")),
	}, nil
}

// CanPaste reports whether auto-paste can work at all.
func (d *Dispatcher) CanPaste() bool { return len(d.paste) > 0 }

// Dispatch copies text to the clipboard and, if autoPaste is set, pastes it.
func (d *Dispatcher) Dispatch(ctx context.Context, text string, autoPaste bool) (Result, error) {
	if err := d.clipboard.WriteAll(text); err != nil {
		return Result{}, fmt.Errorf("%w: clipboard: %v", ErrDelivery, err)
	}
	if !autoPaste {
		return Result{}, nil
	}
	if !d.CanPaste() {
		return Result{}, ErrPasteUnavailable
	}

	if d.pasteDelay > 0 {
		select {
		case <-ctx.Done():
			return Result{}, fmt.Errorf("%w: %v", ErrDelivery, ctx.Err())
		case <-time.After(d.pasteDelay):
		}
	}

	cmd := exec.CommandContext(ctx, d.paste[0], d.paste[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return Result{}, fmt.Errorf("%w: paste command: %v: %s", ErrDelivery, err, strings.TrimSpace(stderr.String()))
	}
	d.logger.Debug("pasted into active application", slog.Int("chars", len([]rune(text))))
	return Result{Pasted: true}, nil
}
