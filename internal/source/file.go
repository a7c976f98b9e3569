package source

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hajimehoshi/go-mp3"
	"github.com/mewkiz/flac"

	"github.com/hifiberry/autorec/internal/audiofmt"
	"github.com/hifiberry/autorec/internal/wavfile"
)

// frameDecoder is the minimal shape every format-specific decoder exposes:
// read the next batch of frames, already widened to per-channel int32.
type frameDecoder interface {
	readFrames(n int) ([][]int32, error) // err == io.EOF at end
	sampleRate() int
	channels() int
	format() audiofmt.Format
	close() error
}

// fileSource decodes a WAV/MP3/FLAC file and paces reads to wall-clock, so
// that N frames at sample_rate R take approximately N/R seconds — letting
// offline runs over recorded material behave like a live capture.
type fileSource struct {
	path string
	dec  frameDecoder

	mu         sync.Mutex
	active     bool
	eof        bool
	framesRead int64
	startTime  time.Time
}

func newFileSource(path string, _ Options) (*fileSource, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("source: file %s: %w", path, err)
	}
	return &fileSource{path: path}, nil
}

func (s *fileSource) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return fmt.Errorf("source: file source already active")
	}

	dec, err := openFrameDecoder(s.path)
	if err != nil {
		return err
	}

	s.dec = dec
	s.active = true
	s.eof = false
	s.framesRead = 0
	s.startTime = time.Now()
	return nil
}

func openFrameDecoder(path string) (frameDecoder, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return newWAVFrameDecoder(path)
	case ".mp3":
		return newMP3FrameDecoder(path)
	case ".flac":
		return newFLACFrameDecoder(path)
	case ".mp4", ".m4a":
		return newMP4FrameDecoder(path)
	default:
		return nil, fmt.Errorf("source: unsupported file extension for %s", path)
	}
}

func (s *fileSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return nil
	}
	s.active = false
	if s.dec != nil {
		return s.dec.close()
	}
	return nil
}

// ReadChunk decodes the next `frames` frames and sleeps off the remainder
// of the wall-clock time those frames represent, so callers see
// file-source playback pace itself like a live source.
func (s *fileSource) ReadChunk(frames int) ([][]int32, bool) {
	s.mu.Lock()
	if !s.active || s.eof {
		s.mu.Unlock()
		return nil, false
	}
	dec := s.dec
	rate := dec.sampleRate()
	startTime := s.startTime
	framesRead := s.framesRead
	s.mu.Unlock()

	channels, err := dec.readFrames(frames)
	if err != nil {
		s.mu.Lock()
		s.eof = true
		s.active = false
		s.mu.Unlock()
		if len(channels) == 0 {
			return nil, false
		}
	}

	got := 0
	if len(channels) > 0 {
		got = len(channels[0])
	}

	s.mu.Lock()
	s.framesRead = framesRead + int64(got)
	newTotal := s.framesRead
	s.mu.Unlock()

	if rate > 0 {
		expected := time.Duration(float64(newTotal) / float64(rate) * float64(time.Second))
		elapsed := time.Since(startTime)
		if wait := expected - elapsed; wait > 0 {
			time.Sleep(wait)
		}
	}

	return channels, got > 0
}

func (s *fileSource) SampleRate() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dec == nil {
		return 0
	}
	return s.dec.sampleRate()
}

func (s *fileSource) Channels() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dec == nil {
		return 0
	}
	return s.dec.channels()
}

func (s *fileSource) SampleFormat() audiofmt.Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dec == nil {
		return audiofmt.S16
	}
	return s.dec.format()
}

// DecodeSegment decodes lengthSeconds of audio starting at startSeconds
// from any file: source format (WAV/MP3/FLAC/MP4/M4A), without the
// wall-clock pacing ReadChunk applies for live-playback emulation — for
// batch callers like the fingerprint sampler that just want the samples
// as fast as the decoder can produce them.
func DecodeSegment(path string, startSeconds, lengthSeconds float64) (channels [][]int32, sampleRate int, err error) {
	dec, err := openFrameDecoder(path)
	if err != nil {
		return nil, 0, err
	}
	defer dec.close()

	rate := dec.sampleRate()
	if skip := int(startSeconds * float64(rate)); skip > 0 {
		if _, err := dec.readFrames(skip); err != nil && err != io.EOF {
			return nil, 0, err
		}
	}

	want := int(lengthSeconds * float64(rate))
	out, err := dec.readFrames(want)
	if err != nil && err != io.EOF {
		return nil, 0, err
	}
	if totalLen(out) == 0 {
		return nil, 0, fmt.Errorf("source: no audio at %.1fs in %s", startSeconds, path)
	}
	return out, rate, nil
}

func (s *fileSource) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// --- WAV ---

type wavFrameDecoder struct {
	r *wavfile.Reader
}

func newWAVFrameDecoder(path string) (*wavFrameDecoder, error) {
	r, err := wavfile.Open(path)
	if err != nil {
		return nil, err
	}
	return &wavFrameDecoder{r: r}, nil
}

func (d *wavFrameDecoder) readFrames(n int) ([][]int32, error) {
	raw, err := d.r.ReadFrames(n)
	if err != nil {
		return nil, err
	}
	return audiofmt.Widen(raw, d.r.Header.Format, int(d.r.Header.Channels))
}

func (d *wavFrameDecoder) sampleRate() int         { return int(d.r.Header.SampleRate) }
func (d *wavFrameDecoder) channels() int           { return int(d.r.Header.Channels) }
func (d *wavFrameDecoder) format() audiofmt.Format { return d.r.Header.Format }
func (d *wavFrameDecoder) close() error            { return d.r.Close() }

// --- MP3 ---
// go-mp3 always decodes to 16-bit little-endian stereo PCM, regardless of
// the source file's own channel count.

type mp3FrameDecoder struct {
	f   *os.File
	dec *mp3.Decoder
}

func newMP3FrameDecoder(path string) (*mp3FrameDecoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("source: open %s: %w", path, err)
	}
	dec, err := mp3.NewDecoder(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("source: decode mp3 %s: %w", path, err)
	}
	return &mp3FrameDecoder{f: f, dec: dec}, nil
}

func (d *mp3FrameDecoder) readFrames(n int) ([][]int32, error) {
	const channels = 2
	buf := make([]byte, n*channels*2)
	read, err := io.ReadFull(d.dec, buf)
	if read == 0 {
		return nil, ioErrToEOF(err)
	}
	full := (read / (channels * 2)) * channels * 2
	widened, werr := audiofmt.Widen(buf[:full], audiofmt.S16, channels)
	if werr != nil {
		return nil, werr
	}
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		return widened, io.EOF
	}
	return widened, nil
}

func ioErrToEOF(err error) error {
	if err == io.ErrUnexpectedEOF {
		return io.EOF
	}
	return err
}

func (d *mp3FrameDecoder) sampleRate() int         { return d.dec.SampleRate() }
func (d *mp3FrameDecoder) channels() int           { return 2 }
func (d *mp3FrameDecoder) format() audiofmt.Format { return audiofmt.S16 }
func (d *mp3FrameDecoder) close() error            { return d.f.Close() }

// --- FLAC ---
// mewkiz/flac decodes per-frame, one subframe per channel, at the
// stream's native bit depth; we rescale samples to 16-bit so every file
// decoder speaks the same internal currency.

type flacFrameDecoder struct {
	f         *os.File
	stream    *flac.Stream
	bps       int
	nChannels int
	rate      int
	pending   [][]int32 // leftover widened samples from a frame larger than requested
}

func newFLACFrameDecoder(path string) (*flacFrameDecoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("source: open %s: %w", path, err)
	}
	stream, err := flac.NewSeek(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("source: decode flac %s: %w", path, err)
	}
	return &flacFrameDecoder{
		f:         f,
		stream:    stream,
		bps:       int(stream.Info.BitsPerSample),
		nChannels: int(stream.Info.NChannels),
		rate:      int(stream.Info.SampleRate),
	}, nil
}

func (d *flacFrameDecoder) readFrames(n int) ([][]int32, error) {
	out := make([][]int32, d.nChannels)
	prependPending(out, d.pending)
	d.pending = nil

	for totalLen(out) < n {
		frame, err := d.stream.ParseNext()
		if err != nil {
			if totalLen(out) > 0 {
				return out, io.EOF
			}
			return nil, err
		}
		nSamples := int(frame.Subframes[0].NSamples)
		for i := 0; i < nSamples; i++ {
			for ch := 0; ch < d.nChannels; ch++ {
				out[ch] = append(out[ch], rescaleTo16(int32(frame.Subframes[ch].Samples[i]), d.bps))
			}
		}
	}

	if totalLen(out) > n {
		rest := make([][]int32, d.nChannels)
		for ch := range out {
			rest[ch] = append([]int32(nil), out[ch][n:]...)
			out[ch] = out[ch][:n]
		}
		d.pending = rest
	}
	return out, nil
}

// prependPending splices any leftover samples held from a previous
// readFrames call onto the front of freshly allocated output. Safe to
// call with a nil or empty pending slice, which is always the case on a
// decoder's first read.
func prependPending(out, pending [][]int32) {
	if len(pending) == 0 {
		return
	}
	for ch := range out {
		out[ch] = append(out[ch], pending[ch]...)
	}
}

func safeIdx(i, n int) int {
	if i < n {
		return i
	}
	return 0
}

func totalLen(channels [][]int32) int {
	if len(channels) == 0 {
		return 0
	}
	return len(channels[0])
}

func rescaleTo16(sample int32, bps int) int32 {
	switch {
	case bps > 16:
		sample >>= uint(bps - 16)
	case bps < 16:
		sample <<= uint(16 - bps)
	}
	if sample > 32767 {
		sample = 32767
	} else if sample < -32768 {
		sample = -32768
	}
	return sample
}

func (d *flacFrameDecoder) sampleRate() int         { return d.rate }
func (d *flacFrameDecoder) channels() int           { return d.nChannels }
func (d *flacFrameDecoder) format() audiofmt.Format { return audiofmt.S16 }
func (d *flacFrameDecoder) close() error            { return d.f.Close() }
