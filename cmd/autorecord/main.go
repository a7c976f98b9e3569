// Command autorecord watches an audio source's level and automatically
// splits whatever passes through it into one WAV file per loud section,
// the way a vinyl side gets split into tracks by the silence between them.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hifiberry/autorec/internal/applog"
	"github.com/hifiberry/autorec/internal/audiofmt"
	"github.com/hifiberry/autorec/internal/config"
	"github.com/hifiberry/autorec/internal/keyboard"
	"github.com/hifiberry/autorec/internal/recorder"
	"github.com/hifiberry/autorec/internal/source"
	"github.com/hifiberry/autorec/internal/vu"
)

func main() {
	cfgDefaults, _ := config.Load("")

	addr := flag.String("source", cfgDefaults.Source, "audio source address (pipewire:, alsa:, file:, or bare device)")
	stem := flag.String("stem", "recording", "output filename stem; files are named <stem>.<N>.wav")
	dir := flag.String("dir", ".", "output directory")
	sampleRate := flag.Int("rate", cfgDefaults.SampleRate, "sample rate")
	channels := flag.Int("channels", cfgDefaults.Channels, "channel count")
	formatFlag := flag.String("format", cfgDefaults.SampleFormat, "sample format (s16 or s32)")
	updateMs := flag.Int("update-interval-ms", cfgDefaults.UpdateIntervalMs, "level update interval in milliseconds")
	dbRange := flag.Float64("db-range", cfgDefaults.DBRange, "dB range below max-db treated as the meter's floor")
	offThreshold := flag.Float64("off-threshold-db", cfgDefaults.OffThresholdDB, "level below which a tick counts as silence")
	silenceSec := flag.Float64("silence-duration-s", cfgDefaults.SilenceDurationSec, "how long the signal must stay quiet before a recording stops")
	minLengthSec := flag.Float64("min-length-s", cfgDefaults.MinLengthSec, "recordings shorter than this are discarded")
	startOrdinal := flag.Int("start-ordinal", 1, "first output file number")
	disableVU := flag.Bool("disable-vu-meter", cfgDefaults.DisableVUMeter, "suppress the live level display")
	disableKeyboard := flag.Bool("disable-keyboard", cfgDefaults.DisableKeyboard, "don't watch stdin for the ESC/q quit key")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	logger := applog.Init(applog.Options{Debug: *debug})

	format, err := audiofmt.ParseFormat(*formatFlag)
	if err != nil {
		logger.Error("invalid sample format", "format", *formatFlag, "err", err)
		os.Exit(1)
	}

	src, err := source.Open(*addr, source.Options{
		SampleRate:   *sampleRate,
		Channels:     *channels,
		SampleFormat: format,
	})
	if err != nil {
		logger.Error("failed to open source", "source", *addr, "err", err)
		os.Exit(1)
	}
	if err := src.Start(); err != nil {
		logger.Error("failed to start source", "err", err)
		os.Exit(1)
	}
	defer src.Stop()

	windowSize := int(*silenceSec * 1000 / float64(*updateMs))
	if windowSize < 1 {
		windowSize = 1
	}
	meter := vu.New(src.Channels(), vu.Options{
		SampleFormat:   format,
		MaxDB:          0,
		DBRange:        *dbRange,
		OffThresholdDB: *offThreshold,
		WindowSize:     windowSize,
	})

	rec := recorder.New(recorder.Options{
		Stem:         *stem,
		Dir:          *dir,
		SampleRate:   src.SampleRate(),
		Channels:     src.Channels(),
		SampleFormat: format,
		MinLength:    time.Duration(*minLengthSec * float64(time.Second)),
	}, *startOrdinal)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	keys := keyboard.Start(*disableKeyboard)
	defer keys.Stop()

	display := vu.NewDisplay(os.Stdout, logger, -*dbRange, 0, *disableVU)

	frames := *sampleRate * *updateMs / 1000
	logger.Info("autorecord started", "source", *addr, "sample_rate", src.SampleRate(), "channels", src.Channels())

	runCaptureLoop(ctx, logger, src, meter, rec, display, keys, frames, format)

	rec.Close()
	logger.Info("autorecord stopped", "next_ordinal", rec.NextOrdinal())
}

func runCaptureLoop(ctx context.Context, logger *slog.Logger, src source.Source, meter *vu.Meter, rec *recorder.Recorder, display *vu.Display, keys *keyboard.Listener, frames int, format audiofmt.Format) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-keys.Quit():
			logger.Info("quit key pressed")
			return
		default:
		}

		chunk, ok := src.ReadChunk(frames)
		if !ok {
			logger.Info("source ended")
			return
		}
		if len(chunk) == 0 {
			continue
		}

		tick := meter.Process(chunk)
		display.Show(tick)
		interleaved, err := audiofmt.Narrow(chunk, format)
		if err != nil {
			logger.Warn("failed to narrow chunk", "err", err)
			continue
		}
		rec.Tick(tick.AnyOn, interleaved, time.Now())

		for ch, reading := range tick.Channels {
			if reading.HasClipped {
				logger.Warn("clipping detected", "channel", ch)
			}
		}
	}
}
