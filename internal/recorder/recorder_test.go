package recorder

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hifiberry/autorec/internal/audiofmt"
)

func testOptions(t *testing.T, minLength time.Duration) Options {
	return Options{
		Stem:         "capture",
		Dir:          t.TempDir(),
		SampleRate:   1000, // 1000 frames/sec, 1 byte-per-frame-tick math stays simple
		Channels:     1,
		SampleFormat: audiofmt.S16,
		MinLength:    minLength,
	}
}

func glob(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "*.wav"))
	require.NoError(t, err)
	return matches
}

func TestShortRecordingIsDeletedAndOrdinalHeld(t *testing.T) {
	opts := testOptions(t, 10*time.Second)
	r := New(opts, 1)

	base := time.Unix(1000, 0)
	frame := make([]byte, 2) // one s16 mono sample

	r.Tick(true, frame, base)
	r.Tick(true, frame, base.Add(5*time.Second))
	r.Tick(false, nil, base.Add(5*time.Second))
	r.Close()

	require.Empty(t, glob(t, opts.Dir))
	require.Equal(t, 1, r.NextOrdinal())
}

func TestLongRecordingIsFinalizedAndOrdinalAdvances(t *testing.T) {
	opts := testOptions(t, 10*time.Second)
	r := New(opts, 1)

	base := time.Unix(2000, 0)
	frame := make([]byte, 2)

	r.Tick(true, frame, base)
	r.Tick(true, frame, base.Add(15*time.Second))
	r.Tick(false, nil, base.Add(15*time.Second))
	r.Close()

	files := glob(t, opts.Dir)
	require.Len(t, files, 1)
	require.Equal(t, "capture.1.wav", filepath.Base(files[0]))
	require.Equal(t, 2, r.NextOrdinal())

	info, err := os.Stat(files[0])
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
}

func TestSecondRecordingReusesHeldOrdinal(t *testing.T) {
	opts := testOptions(t, 10*time.Second)
	r := New(opts, 1)
	base := time.Unix(3000, 0)
	frame := make([]byte, 2)

	r.Tick(true, frame, base)
	r.Tick(false, nil, base.Add(1*time.Second))

	r.Tick(true, frame, base.Add(2*time.Second))
	r.Tick(true, frame, base.Add(20*time.Second))
	r.Tick(false, nil, base.Add(20*time.Second))
	r.Close()

	files := glob(t, opts.Dir)
	require.Len(t, files, 1)
	require.Equal(t, "capture.1.wav", filepath.Base(files[0]))
}

func TestNewSkipsExistingOrdinalsAtStartup(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []int{1, 2, 4} {
		f, err := os.Create(filepath.Join(dir, fmt.Sprintf("capture.%d.wav", n)))
		require.NoError(t, err)
		require.NoError(t, f.Close())
	}

	opts := testOptions(t, 10*time.Second)
	opts.Dir = dir
	r := New(opts, 1)
	defer r.Close()

	require.Equal(t, 3, r.NextOrdinal())
}

func TestNextFreeOrdinalSkipsGapsSequentially(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []int{1, 3} {
		f, err := os.Create(filepath.Join(dir, fmt.Sprintf("stem.%d.wav", n)))
		require.NoError(t, err)
		require.NoError(t, f.Close())
	}
	require.Equal(t, 2, nextFreeOrdinal(dir, "stem", 1))
}

func TestNoOpenAtCloseIsFine(t *testing.T) {
	opts := testOptions(t, 10*time.Second)
	r := New(opts, 1)
	r.Close()
	require.Empty(t, glob(t, opts.Dir))
}
