package source

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hifiberry/autorec/internal/audiofmt"
	"github.com/hifiberry/autorec/internal/wavfile"
)

func writeTestWAV(t *testing.T, path string, frames int, rate, channels int) {
	t.Helper()
	w, err := wavfile.Create(path, rate, channels, audiofmt.S16)
	require.NoError(t, err)

	buf := make([]byte, frames*channels*2)
	for i := range buf {
		buf[i] = byte(i)
	}
	require.NoError(t, w.WriteFrames(buf))
	require.NoError(t, w.Close())
}

func TestFileSourceReadsAllFramesThenStops(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.wav")
	writeTestWAV(t, path, 1000, 48000, 2)

	src, err := Open(path, Options{})
	require.NoError(t, err)
	require.NoError(t, src.Start())
	defer src.Stop()

	require.Equal(t, 48000, src.SampleRate())
	require.Equal(t, 2, src.Channels())
	require.Equal(t, audiofmt.S16, src.SampleFormat())

	total := 0
	for {
		chunk, ok := src.ReadChunk(200)
		if !ok {
			break
		}
		total += len(chunk[0])
	}
	require.Equal(t, 1000, total)
	require.False(t, src.IsActive())
}

func TestFileSourceOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.wav"), Options{})
	require.Error(t, err)
}

func TestIoErrToEOF(t *testing.T) {
	require.Equal(t, io.EOF, ioErrToEOF(io.ErrUnexpectedEOF))
	require.Equal(t, io.EOF, ioErrToEOF(io.EOF))
}

func TestDecodeSegmentSkipsAndReadsWithoutPacing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.wav")
	writeTestWAV(t, path, 1000, 1000, 2) // 1000 frames at 1000Hz = 1s total

	channels, rate, err := DecodeSegment(path, 0.2, 0.3)
	require.NoError(t, err)
	require.Equal(t, 1000, rate)
	require.Len(t, channels, 2)
	require.Equal(t, 300, len(channels[0]))
}

func TestDecodeSegmentPastEndOfFileErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.wav")
	writeTestWAV(t, path, 1000, 1000, 2)

	_, _, err := DecodeSegment(path, 5, 1)
	require.Error(t, err)
}

func TestPrependPendingNilOnFirstReadDoesNotPanic(t *testing.T) {
	out := make([][]int32, 2)
	require.NotPanics(t, func() {
		prependPending(out, nil)
	})
	require.Equal(t, [][]int32{nil, nil}, out)
}

func TestPrependPendingSplicesLeftoverSamples(t *testing.T) {
	out := [][]int32{{10, 11}, {20, 21}}
	pending := [][]int32{{1}, {2}}
	prependPending(out, pending)
	require.Equal(t, []int32{10, 11, 1}, out[0])
	require.Equal(t, []int32{20, 21, 2}, out[1])
}

// writeMinimalFLAC writes a FLAC stream consisting of only the mandatory
// "fLaC" marker and a STREAMINFO metadata block (stereo, 16-bit, 44100Hz),
// with no audio frames. It is enough for flac.NewSeek to open the stream
// and report its format, exercising the decoder's first readFrames call
// (and its previously-panicking pending-splice) without needing a real
// encoded frame.
func writeMinimalFLAC(t *testing.T, path string) {
	t.Helper()
	streamInfo := []byte{
		0x10, 0x00, 0x10, 0x00, // min/max block size = 4096
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // min/max frame size = unknown
		0x0A, 0xC4, 0x42, 0xF0, 0x00, 0x00, 0x00, 0x00, // sample rate=44100, channels=2, bps=16, total samples=0
	}
	streamInfo = append(streamInfo, make([]byte, 16)...) // MD5 signature, unset

	data := []byte("fLaC")
	data = append(data, 0x80, 0x00, 0x00, byte(len(streamInfo))) // last-block flag set, type STREAMINFO
	data = append(data, streamInfo...)

	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestFLACSourceFirstReadDoesNotPanic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.flac")
	writeMinimalFLAC(t, path)

	src, err := Open(path, Options{})
	require.NoError(t, err)
	require.NoError(t, src.Start())
	defer src.Stop()

	require.Equal(t, 44100, src.SampleRate())
	require.Equal(t, 2, src.Channels())

	// The fixture has no audio frames; the first ReadChunk must reach the
	// pending-splice in readFrames (pending is nil) without panicking and
	// report end of stream.
	require.NotPanics(t, func() {
		_, ok := src.ReadChunk(64)
		require.False(t, ok)
	})
}
