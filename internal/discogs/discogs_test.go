package discogs

import (
	"testing"

	"github.com/hifiberry/autorec/internal/fingerprint"
	"github.com/hifiberry/autorec/internal/resolver"
	"github.com/stretchr/testify/require"
)

func TestSideFromPosition(t *testing.T) {
	require.Equal(t, byte('A'), sideFromPosition("A1"))
	require.Equal(t, byte('B'), sideFromPosition("B2.a"))
	require.Equal(t, byte('C'), sideFromPosition("c3"))
	require.Equal(t, byte('?'), sideFromPosition(""))
	require.Equal(t, byte('?'), sideFromPosition("1"))
}

func TestTrackNumberFromPosition(t *testing.T) {
	require.Equal(t, 1, trackNumberFromPosition("A1"))
	require.Equal(t, 12, trackNumberFromPosition("B12"))
	require.Equal(t, 0, trackNumberFromPosition("A"))
}

func TestParseDuration(t *testing.T) {
	require.Equal(t, 400.0, parseDuration("6:40"))
	require.Equal(t, 3750.0, parseDuration("1:02:30"))
	require.Equal(t, 0.0, parseDuration(""))
}

func TestGroupIntoSidesOrdersAndAccumulates(t *testing.T) {
	tracks := []apiTrack{
		{Position: "A1", Title: "One", Duration: "3:00", Type: "track"},
		{Position: "A2", Title: "Two", Duration: "4:00", Type: "track"},
		{Position: "B1", Title: "Three", Duration: "5:00", Type: "track"},
	}
	sides := groupIntoSides(tracks)
	require.Len(t, sides, 2)
	require.Equal(t, byte('A'), sides[0].label)
	require.Equal(t, 420.0, sides[0].totalDuration)
	require.Equal(t, 0.0, sides[0].tracks[0].ExpectedStart)
	require.Equal(t, 180.0, sides[0].tracks[1].ExpectedStart)
	require.Equal(t, byte('B'), sides[1].label)
}

func TestBestSidePrefersHigherScore(t *testing.T) {
	sides := []side{
		{
			label:         'A',
			totalDuration: 700,
			tracks: []resolver.ExpectedTrack{
				{Title: "Other Song", LengthSeconds: 700},
			},
		},
		{
			label:         'B',
			totalDuration: 600,
			tracks: []resolver.ExpectedTrack{
				{Title: "Matching Title", LengthSeconds: 600},
			},
		},
	}
	best := bestSide(sides, 600, []string{"Matching Title"})
	require.NotNil(t, best)
	require.Equal(t, byte('B'), best.label)
}

func TestBestSideEmptyTracksSkipped(t *testing.T) {
	sides := []side{{label: 'A', tracks: nil}}
	require.Nil(t, bestSide(sides, 100, nil))
}

func TestMostCommonArtistAlbum(t *testing.T) {
	songs := []fingerprint.IdentifiedSong{
		{Artist: "A", Title: "1", Album: "Album1"},
		{Artist: "A", Title: "2", Album: "Album1"},
		{Artist: "B", Title: "3", Album: "Album2"},
	}
	artist, album := mostCommonArtistAlbum(songs)
	require.Equal(t, "A", artist)
	require.Equal(t, "Album1", album)
}

func TestMostCommonArtistAlbumTieBreaksByFirstSeen(t *testing.T) {
	songs := []fingerprint.IdentifiedSong{
		{Artist: "B", Title: "1", Album: "Album2"},
		{Artist: "A", Title: "2", Album: "Album1"},
	}
	for i := 0; i < 20; i++ {
		artist, album := mostCommonArtistAlbum(songs)
		require.Equal(t, "B", artist)
		require.Equal(t, "Album2", album)
	}
}
