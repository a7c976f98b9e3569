package musicbrainz

import (
	"testing"

	"github.com/hifiberry/autorec/internal/fingerprint"
	"github.com/hifiberry/autorec/internal/resolver"
	"github.com/stretchr/testify/require"
)

func tracks(lengths ...float64) []resolver.ExpectedTrack {
	var out []resolver.ExpectedTrack
	var cumulative float64
	for i, l := range lengths {
		out = append(out, resolver.ExpectedTrack{
			Position:      i + 1,
			Title:         "track",
			ExpectedStart: cumulative,
			LengthSeconds: l,
		})
		cumulative += l
	}
	return out
}

func TestMatchTracksToDurationSingleFileWithinTolerance(t *testing.T) {
	all := tracks(200, 200, 200)
	offset, matched := matchTracksToDuration(all, 590)
	require.Equal(t, 0, offset)
	require.Len(t, matched, 3)
}

func TestMatchTracksToDurationPicksSideA(t *testing.T) {
	all := tracks(200, 200, 200, 200, 200) // total 1000
	offset, matched := matchTracksToDuration(all, 400)
	require.Equal(t, 0, offset)
	require.Len(t, matched, 2)
}

func TestMatchTracksToDurationPicksSideBAndRebasesStart(t *testing.T) {
	all := tracks(200, 200, 200, 200, 200) // total 1000
	offset, matched := matchTracksToDuration(all, 600)
	require.Equal(t, 2, offset)
	require.Len(t, matched, 3)
	require.Equal(t, 0.0, matched[0].ExpectedStart)
}

func TestMatchTracksToDurationEmpty(t *testing.T) {
	offset, matched := matchTracksToDuration(nil, 100)
	require.Equal(t, 0, offset)
	require.Nil(t, matched)
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

func TestMostCommonArtistAlbumNoAlbums(t *testing.T) {
	songs := []fingerprint.IdentifiedSong{{Artist: "A", Title: "1"}}
	artist, album := mostCommonArtistAlbum(songs)
	require.Empty(t, artist)
	require.Empty(t, album)
}

func TestFilterVinyl(t *testing.T) {
	results := []searchResult{{IsVinyl: true}, {IsVinyl: false}, {IsVinyl: true}}
	out := filterVinyl(results)
	require.Len(t, out, 2)
}

func TestExpectedTracksToSide(t *testing.T) {
	side := expectedTracksToSide("A", tracks(100, 150))
	require.Equal(t, "A", side.Label)
	require.Equal(t, 250.0, side.TotalDuration)
}
