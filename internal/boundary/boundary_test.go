package boundary

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func constDB(n int, db float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = db
	}
	return out
}

func buildSyntheticCurve(hop float64) (timestamps, rms []float64) {
	var db []float64
	db = append(db, constDB(50, -50)...)  // groove-in region
	db = append(db, constDB(300, -8)...)  // music 1
	db = append(db, constDB(20, -60)...)  // inter-song valley
	db = append(db, constDB(300, -8)...)  // music 2
	db = append(db, constDB(50, -50)...)  // groove-out region

	ts := make([]float64, len(db))
	for i := range ts {
		ts[i] = float64(i) * hop
	}
	return ts, db
}

func TestAnalyzeCurveFindsMusicRegion(t *testing.T) {
	const hop = 0.2
	ts, rms := buildSyntheticCurve(hop)
	fileDuration := ts[len(ts)-1] + hop

	c := analyzeCurve(ts, rms, fileDuration, hop, DefaultOptions())

	require.InDelta(t, -50, c.NoiseFloorDB, 2)
	require.InDelta(t, -8, c.MusicLevelDB, 2)

	// Groove-in should land near the start of the music region (index 50),
	// groove-out near its end (index 670).
	require.InDelta(t, 50*hop, c.GrooveInSec, 4)
	require.InDelta(t, 670*hop, c.GrooveOutSec, 4)
}

func TestFindBoundariesLocatesInterSongValley(t *testing.T) {
	const hop = 0.2
	ts, rms := buildSyntheticCurve(hop)
	fileDuration := ts[len(ts)-1] + hop

	opts := DefaultOptions()
	opts.MinSongDurationSec = 5 // shrink so the synthetic single-valley clip isn't penalized
	c := analyzeCurve(ts, rms, fileDuration, hop, opts)

	valleys := FindBoundaries(c, opts)
	require.Len(t, valleys, 1)

	expectedPos := 359 * hop // middle of the 20-sample valley at index 350..369
	require.InDelta(t, expectedPos, valleys[0].PositionSeconds, 2)
	require.Less(t, valleys[0].DepthDB, c.NoiseFloorDB-5)
}

func TestProximityFilterDropsCloseLowerScore(t *testing.T) {
	valleys := []Valley{
		{PositionSeconds: 10, Score: 50},
		{PositionSeconds: 15, Score: 80},
		{PositionSeconds: 100, Score: 40},
	}
	kept := proximityFilter(valleys, 30)
	require.Len(t, kept, 2)
	positions := []float64{kept[0].PositionSeconds, kept[1].PositionSeconds}
	require.Contains(t, positions, 15.0)
	require.Contains(t, positions, 100.0)
}

func TestAdaptiveScoreGapFilterKeepsOnlyHighCluster(t *testing.T) {
	valleys := []Valley{
		{Score: 10}, {Score: 12}, {Score: 11},
		{Score: 80}, {Score: 90},
	}
	kept := adaptiveScoreGapFilter(valleys)
	for _, v := range kept {
		require.GreaterOrEqual(t, v.Score, 80.0)
	}
	require.Len(t, kept, 2)
}

func TestAdaptiveScoreGapFilterNoGapKeepsAll(t *testing.T) {
	valleys := []Valley{{Score: 10}, {Score: 11}, {Score: 12}}
	kept := adaptiveScoreGapFilter(valleys)
	require.Len(t, kept, 3)
}

func TestDepthFilterRejectsShallowValleys(t *testing.T) {
	valleys := []Valley{
		{DepthDB: -60}, // well below noise floor - 5
		{DepthDB: -52}, // not deep enough
	}
	kept := depthFilter(valleys, -50)
	require.Len(t, kept, 1)
	require.Equal(t, -60.0, kept[0].DepthDB)
}

func TestShouldUseGuidedDetection(t *testing.T) {
	tracks := []ExpectedTrack{
		{LengthSeconds: 180}, {LengthSeconds: 200}, {LengthSeconds: 150},
	}
	require.True(t, ShouldUseGuidedDetection(tracks, 530))  // 0% error
	require.True(t, ShouldUseGuidedDetection(tracks, 545))  // ~2.8% error
	require.False(t, ShouldUseGuidedDetection(tracks, 600)) // ~12% error
	require.False(t, ShouldUseGuidedDetection(tracks[:1], 530))
}

func TestFindGuidedBoundariesReturnsOneLessThanTrackCount(t *testing.T) {
	const hop = 0.2
	ts, rms := buildSyntheticCurve(hop)
	fileDuration := ts[len(ts)-1] + hop
	c := analyzeCurve(ts, rms, fileDuration, hop, DefaultOptions())

	tracks := []ExpectedTrack{
		{Position: 1, ExpectedStart: 0, LengthSeconds: 60},
		{Position: 2, ExpectedStart: 70 - c.GrooveInSec, LengthSeconds: 60},
	}
	boundaries := FindGuidedBoundaries(c, tracks)
	require.Len(t, boundaries, len(tracks)-1)
}

func TestFormatTimestamp(t *testing.T) {
	require.Equal(t, "00:00", FormatTimestamp(0))
	require.Equal(t, "01:05", FormatTimestamp(65))
	require.Equal(t, "10:00", FormatTimestamp(600))
}
