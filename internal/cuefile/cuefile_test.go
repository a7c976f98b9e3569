package cuefile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatCueTimestamp(t *testing.T) {
	require.Equal(t, "00:00:00", FormatCueTimestamp(0))
	require.Equal(t, "01:05:00", FormatCueTimestamp(65))
	require.Equal(t, "00:01:37", FormatCueTimestamp(1.5))
}

func TestGenerateIncludesHeaderAndTracks(t *testing.T) {
	boundaries := []Valley{{PositionSeconds: 200}, {PositionSeconds: 400}}
	content := Generate("/music/album.wav", "The Artist", "The Album", nil, 2, boundaries)

	require.Contains(t, content, `FILE "album.wav" WAVE`)
	require.Contains(t, content, `PERFORMER "The Artist"`)
	require.Contains(t, content, `TITLE "The Album"`)
	require.Contains(t, content, "TRACK 01 AUDIO")
	require.Contains(t, content, "TRACK 03 AUDIO")
	require.Equal(t, 3, strings.Count(content, "TRACK "))
}

func TestGenerateStripsTrackNumberPrefix(t *testing.T) {
	content := Generate("/music/album.wav", "Artist", "Album", []string{"#1 Intro"}, 0, nil)
	require.Contains(t, content, `TITLE "Intro"`)
	require.NotContains(t, content, "#1 Intro")
}

func TestGenerateFallsBackToDefaultTrackName(t *testing.T) {
	content := Generate("/music/album.wav", "Artist", "Album", nil, 0, nil)
	require.Contains(t, content, `TITLE "Track 1"`)
}

func TestWriteUsesMatchedOrGuessSuffix(t *testing.T) {
	dir := t.TempDir()
	wav := filepath.Join(dir, "side_a.wav")

	matchedPath, err := Write(wav, "content", true)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "side_a.cue"), matchedPath)

	guessPath, err := Write(wav, "content", false)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "side_a.guess.cue"), guessPath)

	data, err := os.ReadFile(guessPath)
	require.NoError(t, err)
	require.Equal(t, "content", string(data))
}

func TestHasCueFileDetectsEitherVariant(t *testing.T) {
	dir := t.TempDir()
	wav := filepath.Join(dir, "side_a.wav")
	require.False(t, HasCueFile(wav))

	_, err := Write(wav, "x", false)
	require.NoError(t, err)
	require.True(t, HasCueFile(wav))
}

func TestGenerateInfoIncludesExpectedOffsets(t *testing.T) {
	boundaries := []Valley{{PositionSeconds: 200}}
	expected := []ExpectedTrack{
		{ExpectedStart: 0, ExpectedLength: 195},
		{ExpectedStart: 195, ExpectedLength: 180},
	}
	info := GenerateInfo("/music/album.wav", 5, 380, boundaries, []string{"First", "Second"}, expected, "MusicBrainz: Some Album")

	require.Contains(t, info, "Guided (release-matched)")
	require.Contains(t, info, "MusicBrainz: Some Album")
	require.Contains(t, info, "Track 1: First")
	require.Contains(t, info, "Expected start: 0.00s")
	require.Contains(t, info, "Track 2: Second")
}

func TestGenerateInfoAutonomousWithoutExpected(t *testing.T) {
	info := GenerateInfo("/music/album.wav", 2, 100, []Valley{{PositionSeconds: 50}}, nil, nil, "")
	require.Contains(t, info, "Autonomous (valley-based)")
	require.NotContains(t, info, "Expected start")
}

func TestWriteInfoUsesMatchedOrGuessSuffix(t *testing.T) {
	dir := t.TempDir()
	wav := filepath.Join(dir, "side_a.wav")

	path, err := WriteInfo(wav, "info", true)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "side_a.cue.txt"), path)

	guessPath, err := WriteInfo(wav, "info", false)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "side_a.guess.cue.txt"), guessPath)
}
