package vu

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// barWidth is the number of characters the ANSI bar occupies between its
// brackets.
const barWidth = 40

// Display renders one Tick either as an ANSI level bar (when out is a
// terminal) or as a structured log line (when it isn't, or when disabled),
// so a box running headless under systemd gets the same information a
// developer watching a terminal does, just shaped differently.
type Display struct {
	out      io.Writer
	logger   *slog.Logger
	isTTY    bool
	disabled bool
	floor    float64
	maxDB    float64
}

// NewDisplay builds a Display for out. disabled forces plain logging
// regardless of terminal detection, matching the disable-VU-meter config
// flag.
func NewDisplay(out *os.File, logger *slog.Logger, floor, maxDB float64, disabled bool) *Display {
	return &Display{
		out:      out,
		logger:   logger,
		isTTY:    isatty.IsTerminal(out.Fd()) || isatty.IsCygwinTerminal(out.Fd()),
		disabled: disabled,
		floor:    floor,
		maxDB:    maxDB,
	}
}

// Show renders tick. On a TTY it overwrites the previous line with a
// carriage return; otherwise, or when disabled, it emits one slog line
// per channel.
func (d *Display) Show(tick Tick) {
	if d.disabled || !d.isTTY {
		for ch, r := range tick.Channels {
			d.logger.Debug("level", "channel", ch, "rms_db", r.RMSDB, "peak_db", r.PeakDB, "on", r.IsOn, "clipped", r.HasClipped)
		}
		return
	}
	fmt.Fprint(d.out, "\r"+d.render(tick))
}

func (d *Display) render(tick Tick) string {
	var b strings.Builder
	for ch, r := range tick.Channels {
		if ch > 0 {
			b.WriteString(" ")
		}
		b.WriteString(d.bar(r))
	}
	return b.String()
}

func (d *Display) bar(r ChannelReading) string {
	frac := (r.RMSDB - d.floor) / (d.maxDB - d.floor)
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	filled := int(frac * float64(barWidth))
	bar := strings.Repeat("#", filled) + strings.Repeat(".", barWidth-filled)
	state := " "
	if r.IsOn {
		state = "*"
	}
	if r.HasClipped {
		state = "!"
	}
	return fmt.Sprintf("[%s]%s%6.1fdB", bar, state, r.RMSDB)
}
