// Package vu computes per-chunk RMS/peak levels and a hysteretic on/off
// decision for each audio channel, and republishes the raw chunk alongside
// the metrics so recorder and boundary code never need to re-read the
// source.
package vu

import (
	"math"
	"sync"

	"github.com/hifiberry/autorec/internal/audiofmt"
)

// ChannelReading is one update-tick's result for a single channel.
type ChannelReading struct {
	RMSDB      float64
	PeakDB     float64
	IsOn       bool
	HasClipped bool
}

// Tick is one update-tick's result across every channel, plus the raw
// audio that produced it.
type Tick struct {
	Channels []ChannelReading
	Raw      [][]int32
	AnyOn    bool
}

// Options configures level computation and hysteresis window sizing.
type Options struct {
	SampleFormat   audiofmt.Format
	MaxDB          float64 // default 0
	DBRange        float64 // default 90; floor = MaxDB - DBRange
	OffThresholdDB float64 // default -40; below this a chunk counts as "off"
	// WindowSize is the number of ticks held in each ring buffer —
	// silence_duration / update_interval in the spec's terms.
	WindowSize int
}

// clipThreshold is the fraction of full scale at or above which a sample
// counts as clipped.
const clipThreshold = 0.999

// Meter tracks hysteresis state across ticks for a fixed channel count.
type Meter struct {
	opts     Options
	channels int

	mu      sync.Mutex
	windows []*ringWindow
}

// New creates a Meter for the given channel count.
func New(channels int, opts Options) *Meter {
	if opts.WindowSize < 1 {
		opts.WindowSize = 1
	}
	windows := make([]*ringWindow, channels)
	for i := range windows {
		windows[i] = newRingWindow(opts.WindowSize)
	}
	return &Meter{opts: opts, channels: channels, windows: windows}
}

// Process computes one Tick from a chunk of per-channel samples.
func (m *Meter) Process(chunk [][]int32) Tick {
	m.mu.Lock()
	defer m.mu.Unlock()

	fullScale := m.opts.SampleFormat.FullScale()
	floor := m.opts.MaxDB - m.opts.DBRange

	readings := make([]ChannelReading, len(chunk))
	anyOn := false

	for ch, samples := range chunk {
		rmsDB := computeRMSDB(samples, fullScale, m.opts.MaxDB, floor)
		peakDB := computePeakDB(samples, fullScale, m.opts.MaxDB, floor)
		clipped := hasClipped(samples, fullScale)

		isOnNow := rmsDB >= m.opts.OffThresholdDB

		var win *ringWindow
		if ch < len(m.windows) {
			win = m.windows[ch]
		} else {
			win = newRingWindow(m.opts.WindowSize)
		}
		win.push(rmsDB, peakDB, isOnNow, clipped)

		reading := ChannelReading{
			RMSDB:      win.maxRMS(),
			PeakDB:     win.maxPeak(),
			IsOn:       win.anyOn(),
			HasClipped: win.anyClipped(),
		}
		readings[ch] = reading
		if reading.IsOn {
			anyOn = true
		}
	}

	return Tick{Channels: readings, Raw: chunk, AnyOn: anyOn}
}

func computeRMSDB(samples []int32, fullScale, maxDB, floor float64) float64 {
	if len(samples) == 0 {
		return floor
	}
	var sumSq float64
	for _, s := range samples {
		v := float64(s)
		sumSq += v * v
	}
	rms := math.Sqrt(sumSq / float64(len(samples)))
	return clampDB(dbFromAmplitude(rms, fullScale), maxDB, floor)
}

func computePeakDB(samples []int32, fullScale, maxDB, floor float64) float64 {
	var peak float64
	for _, s := range samples {
		v := math.Abs(float64(s))
		if v > peak {
			peak = v
		}
	}
	return clampDB(dbFromAmplitude(peak, fullScale), maxDB, floor)
}

func dbFromAmplitude(amplitude, fullScale float64) float64 {
	if amplitude <= 0 || fullScale <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(amplitude/fullScale)
}

func clampDB(db, maxDB, floor float64) float64 {
	if math.IsInf(db, -1) || db < floor {
		return floor
	}
	if db > maxDB {
		return maxDB
	}
	return db
}

func hasClipped(samples []int32, fullScale float64) bool {
	threshold := clipThreshold * fullScale
	for _, s := range samples {
		if math.Abs(float64(s)) >= threshold {
			return true
		}
	}
	return false
}
