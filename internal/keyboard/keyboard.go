// Package keyboard polls stdin for the ESC/'q' quit keys that autorecord's
// main loop checks between ticks, per the capture loop's cancellation
// contract. It is a no-op when stdin isn't a terminal (piped input,
// systemd unit) or when the caller disables it.
package keyboard

import (
	"os"

	"golang.org/x/term"
)

// Listener watches stdin in raw mode for a quit keypress.
type Listener struct {
	fd       int
	oldState *term.State
	quit     chan struct{}
	disabled bool
}

// Start puts stdin into raw mode and begins watching for ESC or 'q' on a
// background goroutine. disabled skips the terminal switch entirely and
// returns a Listener whose Quit channel never fires, matching the
// disable-keyboard config flag.
func Start(disabled bool) *Listener {
	l := &Listener{quit: make(chan struct{}), disabled: disabled}
	if disabled {
		return l
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		l.disabled = true
		return l
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		l.disabled = true
		return l
	}
	l.fd = fd
	l.oldState = oldState

	go l.watch()
	return l
}

func (l *Listener) watch() {
	buf := make([]byte, 1)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil || n == 0 {
			return
		}
		if buf[0] == 0x1b || buf[0] == 'q' {
			close(l.quit)
			return
		}
	}
}

// Quit is closed once ESC or 'q' is pressed. Never fires when the
// listener is disabled.
func (l *Listener) Quit() <-chan struct{} {
	return l.quit
}

// Stop restores the terminal's prior mode, if it was changed.
func (l *Listener) Stop() {
	if l.oldState != nil {
		term.Restore(l.fd, l.oldState)
	}
}
