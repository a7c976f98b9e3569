// Package recorder implements AutoRec's auto-recorder: it watches the
// any-channel-on flag coming out of the VU meter and opens/closes WAV
// files across silence boundaries, writing on its own goroutine behind a
// command queue so a slow disk never stalls the capture loop.
package recorder

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/hifiberry/autorec/internal/audiofmt"
	"github.com/hifiberry/autorec/internal/wavfile"
)

// commandKind identifies an entry on the writer's queue.
type commandKind int

const (
	cmdStart commandKind = iota
	cmdWrite
	cmdStop
)

type command struct {
	kind        commandKind
	interleaved []byte
	sampleTime  time.Time
}

// Options configures recording geometry and the min-length rule.
type Options struct {
	Stem         string // output files are named {stem}.{N}.wav
	Dir          string
	SampleRate   int
	Channels     int
	SampleFormat audiofmt.Format
	MinLength    time.Duration
}

// Recorder drives an off/on edge-triggered sequence of WAV files. Feed it
// ticks via Tick; it owns a single background goroutine that performs
// all file I/O.
type Recorder struct {
	opts Options
	cmds chan command
	done chan struct{}
	edge *edgeState

	nextOrdinal atomic.Int64
}

// New creates a Recorder and starts its writer goroutine. startOrdinal is
// the lowest ordinal to consider; any ordinal at or above it whose file
// already exists in opts.Dir at this moment is skipped, per the filename
// convention's "N starting at 1, skipping existing files" rule. Call
// Close when finished.
func New(opts Options, startOrdinal int) *Recorder {
	r := &Recorder{
		opts: opts,
		cmds: make(chan command, 64),
		done: make(chan struct{}),
		edge: &edgeState{},
	}
	r.nextOrdinal.Store(int64(nextFreeOrdinal(opts.Dir, opts.Stem, startOrdinal)))
	go r.writerLoop()
	return r
}

// nextFreeOrdinal walks ordinals upward from start and returns the first
// one with no {stem}.{N}.wav file already on disk.
func nextFreeOrdinal(dir, stem string, start int) int {
	ordinal := start
	for {
		path := filepath.Join(dir, fmt.Sprintf("%s.%d.wav", stem, ordinal))
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return ordinal
		}
		ordinal++
	}
}

// writerState is owned exclusively by writerLoop; no other goroutine
// touches it.
type writerState struct {
	writer        *wavfile.Writer
	path          string
	sessionID     string
	firstSample   time.Time
	lastSample    time.Time
	hasFirstFrame bool
}

func (r *Recorder) writerLoop() {
	var st writerState
	for cmd := range r.cmds {
		switch cmd.kind {
		case cmdStart:
			if err := r.openFile(&st); err != nil {
				slog.Error("recorder: failed to open file", "err", err)
				continue
			}
		case cmdWrite:
			r.handleWrite(&st, cmd)
		case cmdStop:
			r.closeFile(&st)
		}
	}
	close(r.done)
}

func (r *Recorder) openFile(st *writerState) error {
	ordinal := r.nextOrdinal.Load()
	path := filepath.Join(r.opts.Dir, fmt.Sprintf("%s.%d.wav", r.opts.Stem, ordinal))
	w, err := wavfile.Create(path, r.opts.SampleRate, r.opts.Channels, r.opts.SampleFormat)
	if err != nil {
		return err
	}
	st.writer = w
	st.path = path
	st.sessionID = uuid.NewString()
	st.hasFirstFrame = false
	slog.Info("recorder: opened file", "path", path, "ordinal", ordinal, "session_id", st.sessionID)
	return nil
}

func (r *Recorder) handleWrite(st *writerState, cmd command) {
	if st.writer == nil || len(cmd.interleaved) == 0 {
		return
	}
	if err := st.writer.WriteFrames(cmd.interleaved); err != nil {
		slog.Error("recorder: write failed", "path", st.path, "err", err)
		return
	}
	if !st.hasFirstFrame {
		st.firstSample = cmd.sampleTime
		st.hasFirstFrame = true
	}
	st.lastSample = cmd.sampleTime
}

func (r *Recorder) closeFile(st *writerState) {
	if st.writer == nil {
		return
	}
	elapsed := st.lastSample.Sub(st.firstSample)
	path := st.path
	sessionID := st.sessionID

	if err := st.writer.Close(); err != nil {
		slog.Error("recorder: close failed", "path", path, "err", err)
	}

	if elapsed < r.opts.MinLength {
		if err := removeFile(path); err != nil {
			slog.Error("recorder: failed to delete short recording", "path", path, "session_id", sessionID, "err", err)
		} else {
			slog.Info("recorder: discarded short recording", "path", path, "session_id", sessionID, "elapsed", elapsed)
		}
		// ordinal is not advanced — the next recording reuses it
	} else {
		slog.Info("recorder: finalized recording", "path", path, "session_id", sessionID, "elapsed", elapsed, "size", humanize.Bytes(fileSize(path)))
		r.nextOrdinal.Add(1)
	}

	*st = writerState{}
}

// Tick submits one VU-meter tick: whether any channel is currently on,
// the interleaved PCM for this chunk, and the wall-clock time it was
// captured at. Call once per update interval from the capture loop.
//
// Edge detection happens here, on the caller's goroutine, rather than in
// the writer goroutine, so the writer only ever sees well-formed
// Start/Write/Stop commands — the capture loop is the single producer,
// same as the spec's shared-buffer model.
func (r *Recorder) Tick(anyOn bool, interleaved []byte, at time.Time) {
	r.edge.apply(r, anyOn, interleaved, at)
}

// edgeState tracks the previous tick's on state. Tick is only ever called
// from the single capture-loop goroutine, so this needs no lock.
type edgeState struct {
	wasOn bool
}

func (e *edgeState) apply(r *Recorder, anyOn bool, interleaved []byte, at time.Time) {
	switch {
	case anyOn && !e.wasOn:
		r.cmds <- command{kind: cmdStart}
		r.cmds <- command{kind: cmdWrite, interleaved: interleaved, sampleTime: at}
	case anyOn && e.wasOn:
		r.cmds <- command{kind: cmdWrite, interleaved: interleaved, sampleTime: at}
	case !anyOn && e.wasOn:
		r.cmds <- command{kind: cmdStop}
	}
	e.wasOn = anyOn
}

// Close stops the writer goroutine after draining pending commands,
// closing any file still open (subject to the same min-length rule).
func (r *Recorder) Close() {
	if r.edge.wasOn {
		r.cmds <- command{kind: cmdStop}
	}
	close(r.cmds)
	<-r.done
}

// NextOrdinal returns the ordinal the next opened file will use — for
// callers that persist it across restarts.
func (r *Recorder) NextOrdinal() int {
	return int(r.nextOrdinal.Load())
}

func removeFile(path string) error {
	return os.Remove(path)
}

func fileSize(path string) uint64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return uint64(info.Size())
}
