package source

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/hifiberry/autorec/internal/audiofmt"
)

// readChunkTimeout bounds how long ReadChunk waits for the capture thread
// to accumulate enough frames before returning whatever it has.
const readChunkTimeout = 500 * time.Millisecond

// pipeWireSource captures PCM from a PipeWire target via a spawned
// pw-cat process. The process's stdout is read on a dedicated goroutine
// that appends decoded frames to a shared buffer; ReadChunk drains that
// buffer under a mutex, a single-producer/single-consumer arrangement per
// the spec's shared-buffer model.
type pipeWireSource struct {
	device       string
	sampleRate   int
	channels     int
	sampleFormat audiofmt.Format

	cmd    *exec.Cmd
	stdout io.ReadCloser

	mu       sync.Mutex
	buf      [][]int32 // per channel, unbounded
	active   bool
	newData  chan struct{} // non-blocking signal, capacity 1
	readErr  error
	doneChan chan struct{}
}

func newPipeWireSource(device string, opts Options) *pipeWireSource {
	if device == "" {
		device = "default"
	}
	return &pipeWireSource{
		device:       device,
		sampleRate:   opts.SampleRate,
		channels:     opts.Channels,
		sampleFormat: opts.SampleFormat,
		newData:      make(chan struct{}, 1),
	}
}

func (s *pipeWireSource) Start() error {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return fmt.Errorf("source: pipewire source already active")
	}
	s.mu.Unlock()

	args := []string{
		"--record",
		"--target", s.device,
		"--rate", fmt.Sprint(s.sampleRate),
		"--channels", fmt.Sprint(s.channels),
		"--format", pwCatFormat(s.sampleFormat),
		"--raw",
		"-",
	}
	cmd := exec.Command("pw-cat", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("source: pipewire stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("source: start pw-cat: %w", err)
	}

	s.mu.Lock()
	s.cmd = cmd
	s.stdout = stdout
	s.buf = make([][]int32, s.channels)
	s.active = true
	s.doneChan = make(chan struct{})
	s.mu.Unlock()

	go s.captureLoop()

	slog.Info("pipewire source started", "device", s.device, "rate", s.sampleRate, "channels", s.channels)
	return nil
}

func pwCatFormat(f audiofmt.Format) string {
	if f == audiofmt.S32 {
		return "s32"
	}
	return "s16"
}

// captureLoop runs on a dedicated goroutine, mirroring the spec's
// capture-thread-writes/main-thread-drains model.
func (s *pipeWireSource) captureLoop() {
	defer close(s.doneChan)

	bps := s.sampleFormat.BytesPerSample()
	frameSize := bps * s.channels
	reader := bufio.NewReaderSize(s.stdout, 64*1024)
	chunk := make([]byte, frameSize*512)

	for {
		n, err := io.ReadFull(reader, chunk)
		if n > 0 {
			full := (n / frameSize) * frameSize
			if full > 0 {
				widened, werr := audiofmt.Widen(chunk[:full], s.sampleFormat, s.channels)
				if werr == nil {
					s.appendFrames(widened)
				}
			}
		}
		if err != nil {
			s.mu.Lock()
			if err != io.EOF && err != io.ErrUnexpectedEOF {
				s.readErr = err
			}
			s.active = false
			s.mu.Unlock()
			s.signal()
			return
		}
	}
}

func (s *pipeWireSource) appendFrames(widened [][]int32) {
	s.mu.Lock()
	for ch := range s.buf {
		if ch < len(widened) {
			s.buf[ch] = append(s.buf[ch], widened[ch]...)
		}
	}
	s.mu.Unlock()
	s.signal()
}

func (s *pipeWireSource) signal() {
	select {
	case s.newData <- struct{}{}:
	default:
	}
}

func (s *pipeWireSource) ReadChunk(frames int) ([][]int32, bool) {
	deadline := time.Now().Add(readChunkTimeout)
	for {
		s.mu.Lock()
		available := 0
		if len(s.buf) > 0 {
			available = len(s.buf[0])
		}
		stillActive := s.active
		s.mu.Unlock()

		if available >= frames || (!stillActive && available > 0) {
			return s.drain(frames), true
		}
		if !stillActive && available == 0 {
			return nil, false
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return s.drain(frames), available > 0
		}
		select {
		case <-s.newData:
		case <-time.After(remaining):
			return s.drain(frames), s.hasBuffered()
		}
	}
}

func (s *pipeWireSource) hasBuffered() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf) > 0 && len(s.buf[0]) > 0
}

func (s *pipeWireSource) drain(frames int) [][]int32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	if len(s.buf) > 0 {
		n = len(s.buf[0])
	}
	if n > frames {
		n = frames
	}
	if n == 0 {
		return nil
	}

	out := make([][]int32, len(s.buf))
	for ch := range s.buf {
		out[ch] = append([]int32(nil), s.buf[ch][:n]...)
		s.buf[ch] = s.buf[ch][n:]
	}
	return out
}

func (s *pipeWireSource) Stop() error {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return nil
	}
	cmd := s.cmd
	s.active = false
	s.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}
	return nil
}

func (s *pipeWireSource) SampleRate() int               { return s.sampleRate }
func (s *pipeWireSource) Channels() int                 { return s.channels }
func (s *pipeWireSource) SampleFormat() audiofmt.Format { return s.sampleFormat }
func (s *pipeWireSource) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}
