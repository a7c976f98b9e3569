package source

import (
	"fmt"
	"log/slog"
	"os/exec"

	"github.com/hifiberry/autorec/internal/audiofmt"
)

// alsaSource captures PCM via a spawned arecord helper. It reuses
// pipeWireSource's buffering and ReadChunk logic since both variants
// reduce to "read raw PCM from a child process's stdout on a dedicated
// goroutine, drain it from a shared buffer" — only the spawn arguments
// differ.
type alsaSource struct {
	*pipeWireSource
}

func newALSASource(device string, opts Options) *alsaSource {
	if device == "" {
		device = "default"
	}
	return &alsaSource{pipeWireSource: newPipeWireSource(device, opts)}
}

func (s *alsaSource) Start() error {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return fmt.Errorf("source: alsa source already active")
	}
	s.mu.Unlock()

	args := []string{
		"-D", s.device,
		"-r", fmt.Sprint(s.sampleRate),
		"-c", fmt.Sprint(s.channels),
		"-f", arecordFormat(s.sampleFormat),
		"-t", "raw",
		"-q",
		"-",
	}
	cmd := exec.Command("arecord", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("source: alsa stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("source: start arecord: %w", err)
	}

	s.mu.Lock()
	s.cmd = cmd
	s.stdout = stdout
	s.buf = make([][]int32, s.channels)
	s.active = true
	s.doneChan = make(chan struct{})
	s.mu.Unlock()

	go s.captureLoop()

	slog.Info("alsa source started", "device", s.device, "rate", s.sampleRate, "channels", s.channels)
	return nil
}

func arecordFormat(f audiofmt.Format) string {
	if f == audiofmt.S32 {
		return "S32_LE"
	}
	return "S16_LE"
}
