package fingerprint

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hifiberry/autorec/internal/audiofmt"
	"github.com/hifiberry/autorec/internal/wavfile"
)

func TestDefaultTimestamps(t *testing.T) {
	ts := DefaultTimestamps(500, 180)
	require.Equal(t, []float64{60, 240, 420}, ts)
}

func TestDefaultTimestampsShortFileIsEmpty(t *testing.T) {
	require.Empty(t, DefaultTimestamps(80, 180))
}

func TestHashBytesIsDeterministic(t *testing.T) {
	a := hashBytes([]byte("hello world"))
	b := hashBytes([]byte("hello world"))
	c := hashBytes([]byte("hello worlds"))
	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
	require.Len(t, a, 16)
}

func TestDedupeConsecutiveKeepsEarliestOfRun(t *testing.T) {
	songs := []IdentifiedSong{
		{Timestamp: 60, Artist: "A", Title: "X"},
		{Timestamp: 180, Artist: "A", Title: "X"},
		{Timestamp: 300, Artist: "B", Title: "Y"},
		{Timestamp: 420, Artist: "A", Title: "X"},
	}
	out := dedupeConsecutive(songs)
	require.Len(t, out, 3)
	require.Equal(t, 60.0, out[0].Timestamp)
	require.Equal(t, 300.0, out[1].Timestamp)
	require.Equal(t, 420.0, out[2].Timestamp)
}

func TestParseIdentifiedSongExtractsAlbum(t *testing.T) {
	raw := []byte(`{
		"track": {
			"title": "Song Title",
			"subtitle": "Artist Name",
			"sections": [
				{"metadata": [{"title": "Album", "text": "Some Album"}]}
			]
		}
	}`)
	song, err := parseIdentifiedSong(raw, 60)
	require.NoError(t, err)
	require.Equal(t, "Song Title", song.Title)
	require.Equal(t, "Artist Name", song.Artist)
	require.Equal(t, "Some Album", song.Album)
}

func TestParseIdentifiedSongNoMatch(t *testing.T) {
	_, err := parseIdentifiedSong([]byte(`{}`), 60)
	require.Error(t, err)
}

func TestIsDecodeError(t *testing.T) {
	require.True(t, isDecodeError(errString("Decode error: unexpected")))
	require.True(t, isDecodeError(errString("expected value at line 1")))
	require.False(t, isDecodeError(errString("connection refused")))
	require.False(t, isDecodeError(nil))
}

type errString string

func (e errString) Error() string { return string(e) }

func TestCacheRoundTripAndTruncatedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "songrec.cache")

	c, err := OpenCache(path)
	require.NoError(t, err)
	_, ok := c.Get("deadbeef")
	require.False(t, ok)

	c.Append("deadbeef", []byte(`{"track":{"title":"x"}}`))
	c.Append("cafef00d", []byte("line1\nline2"))

	v, ok := c.Get("deadbeef")
	require.True(t, ok)
	require.Equal(t, `{"track":{"title":"x"}}`, string(v))

	v2, ok := c.Get("cafef00d")
	require.True(t, ok)
	require.Equal(t, "line1 line2", string(v2))

	// Append a truncated line directly to simulate a killed writer, then
	// reopen and confirm the loader tolerates it.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("truncatednospace")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	reopened, err := OpenCache(path)
	require.NoError(t, err)
	_, ok = reopened.Get("deadbeef")
	require.True(t, ok)
}

func TestOpenCacheMissingFileIsNotError(t *testing.T) {
	c, err := OpenCache(filepath.Join(t.TempDir(), "missing.cache"))
	require.NoError(t, err)
	_, ok := c.Get("anything")
	require.False(t, ok)
}

func TestIdentifyAtRejectsShortFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.wav")
	w, err := wavfile.Create(path, 48000, 2, audiofmt.S16)
	require.NoError(t, err)
	require.NoError(t, w.WriteFrames(make([]byte, 48000*2*2))) // 1 second
	require.NoError(t, w.Close())

	s := &Sampler{Backend: noopBackend{}, Cache: &Cache{entries: map[string]string{}}}
	_, err = s.IdentifyAt(path, []float64{0})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrShortFile))
}

type noopBackend struct{}

func (noopBackend) Recognize(string) ([]byte, error) { return []byte(`{}`), nil }
