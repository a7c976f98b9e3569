// Package boundary implements AutoRec's offline three-pass RMS boundary
// finder: sample a WAV file's loudness curve, estimate its noise floor
// and music level, locate the groove-in/groove-out bounds of the music
// region, then find inter-song valleys within it — or, when guided by
// release metadata, search around expected track positions instead.
package boundary

import (
	"fmt"
	"math"
	"sort"

	"github.com/hifiberry/autorec/internal/audiofmt"
	"github.com/hifiberry/autorec/internal/wavfile"
)

// Options configures every tunable named in the boundary-finding contract.
type Options struct {
	HopSeconds          float64 // pass-1 sampling hop, default 0.2
	SmoothWindowSeconds float64 // short-smoothing window, default 3
	LongWindowSeconds   float64 // long-smoothing window, default 30
	MinProminenceDB     float64 // default 3
	MinSongDurationSec  float64 // default 30
}

// DefaultOptions returns the boundary finder's standard tuning.
func DefaultOptions() Options {
	return Options{
		HopSeconds:          0.2,
		SmoothWindowSeconds: 3,
		LongWindowSeconds:   30,
		MinProminenceDB:     3,
		MinSongDurationSec:  30,
	}
}

// Valley is one candidate (or final) song boundary.
type Valley struct {
	PositionSeconds float64
	DepthDB         float64
	ProminenceDB    float64
	LeftLevelDB     float64
	RightLevelDB    float64
	WidthSeconds    float64
	Score           float64
}

// Curve holds Pass 1's sampled and smoothed RMS curves plus the region
// analysis derived from them.
type Curve struct {
	Timestamps    []float64
	RMSDB         []float64
	SmoothedShort []float64
	SmoothedLong  []float64

	NoiseFloorDB float64
	MusicLevelDB float64

	GrooveInSec  float64
	GrooveOutSec float64

	MusicStartIdx int
	MusicEndIdx   int

	FileDurationSec float64
	HopSeconds      float64
}

// AnalyzeFile runs Pass 1 (RMS sampling + smoothing), level estimation,
// and Pass 2 (groove-in/groove-out) over a WAV file.
func AnalyzeFile(path string, opts Options) (*Curve, error) {
	r, err := wavfile.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	hop := opts.HopSeconds
	if hop <= 0 {
		hop = 0.2
	}
	frames := int(float64(r.Header.SampleRate) * hop)
	if frames < 1 {
		frames = 1
	}

	var timestamps, rmsDB []float64
	position := 0.0
	for {
		raw, err := r.ReadFrames(frames)
		if err != nil {
			break
		}
		widened, werr := audiofmt.Widen(raw, r.Header.Format, int(r.Header.Channels))
		if werr != nil || len(widened) == 0 || len(widened[0]) == 0 {
			break
		}
		rmsDB = append(rmsDB, computeRMSDB(widened, r.Header.Format))
		timestamps = append(timestamps, position)
		position += hop
	}

	return analyzeCurve(timestamps, rmsDB, position, hop, opts), nil
}

// analyzeCurve is AnalyzeFile's pure half, split out for testability
// without file I/O.
func analyzeCurve(timestamps, rmsDB []float64, fileDuration, hop float64, opts Options) *Curve {
	smoothSecs := opts.SmoothWindowSeconds
	if smoothSecs <= 0 {
		smoothSecs = 3
	}
	longSecs := opts.LongWindowSeconds
	if longSecs <= 0 {
		longSecs = 30
	}

	shortWindow := oddAtLeast3(int(smoothSecs / hop))
	longWindow := maxInt(int(longSecs/hop), 3)

	smoothedShort := smoothRMS(rmsDB, shortWindow)
	smoothedLong := smoothRMS(rmsDB, longWindow)

	noiseFloor := estimatePercentileBand(smoothedShort, 0.05, 0.10)
	musicLevel := estimatePercentileBand(smoothedShort, 0.60, 0.80)

	grooveIn := detectGrooveIn(smoothedShort, timestamps, noiseFloor, musicLevel, hop)
	grooveOut := detectGrooveOut(smoothedShort, timestamps, noiseFloor, musicLevel, fileDuration, hop)

	musicStart := firstIndexAtOrAfter(timestamps, grooveIn)
	musicEnd := firstIndexAtOrAfter(timestamps, grooveOut)
	if musicEnd == -1 {
		musicEnd = len(timestamps)
	}
	if musicStart == -1 {
		musicStart = 0
	}

	return &Curve{
		Timestamps:      timestamps,
		RMSDB:           rmsDB,
		SmoothedShort:   smoothedShort,
		SmoothedLong:    smoothedLong,
		NoiseFloorDB:    noiseFloor,
		MusicLevelDB:    musicLevel,
		GrooveInSec:     grooveIn,
		GrooveOutSec:    grooveOut,
		MusicStartIdx:   musicStart,
		MusicEndIdx:     musicEnd,
		FileDurationSec: fileDuration,
		HopSeconds:      hop,
	}
}

func oddAtLeast3(n int) int {
	if n < 3 {
		n = 3
	}
	if n%2 == 0 {
		n++
	}
	return n
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func firstIndexAtOrAfter(timestamps []float64, t float64) int {
	for i, ts := range timestamps {
		if ts >= t {
			return i
		}
	}
	return -1
}

// computeRMSDB mixes all channels to mono, then converts RMS amplitude to
// dB referenced to full scale.
func computeRMSDB(channels [][]int32, format audiofmt.Format) float64 {
	nCh := len(channels)
	if nCh == 0 || len(channels[0]) == 0 {
		return -80
	}
	fullScale := format.FullScale()
	n := len(channels[0])

	var sumSquares float64
	for i := 0; i < n; i++ {
		var sum float64
		for ch := 0; ch < nCh; ch++ {
			sum += float64(channels[ch][i]) / fullScale
		}
		mono := sum / float64(nCh)
		sumSquares += mono * mono
	}
	rms := math.Sqrt(sumSquares / float64(n))
	if rms <= 0 {
		return -80
	}
	return 20 * math.Log10(rms)
}

// smoothRMS moving-averages a dB curve in the linear domain: dB -> linear
// -> moving average -> dB.
func smoothRMS(dbValues []float64, windowSize int) []float64 {
	half := windowSize / 2
	n := len(dbValues)
	linear := make([]float64, n)
	for i, db := range dbValues {
		linear[i] = math.Pow(10, db/20)
	}

	out := make([]float64, n)
	for i := 0; i < n; i++ {
		start := i - half
		if start < 0 {
			start = 0
		}
		end := i + half + 1
		if end > n {
			end = n
		}
		var sum float64
		for j := start; j < end; j++ {
			sum += linear[j]
		}
		avg := sum / float64(end-start)
		if avg > 0 {
			out[i] = 20 * math.Log10(avg)
		} else {
			out[i] = -80
		}
	}
	return out
}

// estimatePercentileBand averages the values between the loPct and hiPct
// percentiles of a sorted copy of vals.
func estimatePercentileBand(vals []float64, loPct, hiPct float64) float64 {
	if len(vals) == 0 {
		return -80
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)

	lo := int(float64(len(sorted)) * loPct)
	hi := int(float64(len(sorted)) * hiPct)
	if hi >= len(sorted) {
		hi = len(sorted) - 1
	}
	if lo >= len(sorted) {
		lo = len(sorted) - 1
	}

	if hi > lo {
		var sum float64
		for i := lo; i <= hi; i++ {
			sum += sorted[i]
		}
		return sum / float64(hi-lo+1)
	}
	return sorted[lo]
}

// detectGrooveIn scans from the start for the first sustained (2s) rise
// above the noise-floor/music-level midpoint, then walks back to where
// the rise began.
func detectGrooveIn(smoothed, timestamps []float64, noiseFloor, musicLevel, hop float64) float64 {
	if len(smoothed) == 0 {
		return 0
	}
	threshold := (noiseFloor + musicLevel) / 2
	sustain := maxInt(int(2.0/hop), 1)

	for i := 0; i <= len(smoothed)-sustain; i++ {
		if smoothed[i] <= threshold {
			continue
		}
		sustained := true
		for j := i; j < i+sustain; j++ {
			if smoothed[j] <= threshold {
				sustained = false
				break
			}
		}
		if !sustained {
			continue
		}
		start := i
		for start > 0 && smoothed[start-1] < smoothed[start] {
			start--
		}
		return timestamps[start]
	}
	return 0
}

// detectGrooveOut scans backward from the end for the last window where
// more than half the samples exceed threshold, then walks forward to the
// first drop that stays below threshold for at least 10s.
func detectGrooveOut(smoothed, timestamps []float64, noiseFloor, musicLevel, fileDuration, hop float64) float64 {
	n := len(smoothed)
	if n == 0 {
		return fileDuration
	}
	threshold := (noiseFloor + musicLevel) / 2
	sustain := maxInt(int(5.0/hop), 1)

	for i := n - 1; i >= sustain; i-- {
		windowStart := i - sustain
		if windowStart < 0 {
			windowStart = 0
		}
		above := 0
		for j := windowStart; j <= i; j++ {
			if smoothed[j] > threshold {
				above++
			}
		}
		if above <= sustain/2 {
			continue
		}

		for j := i; j < n; j++ {
			if smoothed[j] >= threshold {
				continue
			}
			checkEnd := j + int(10.0/hop)
			if checkEnd > n {
				checkEnd = n
			}
			staysBelow := true
			for k := j; k < checkEnd; k++ {
				if smoothed[k] >= threshold {
					staysBelow = false
					break
				}
			}
			if staysBelow {
				return timestamps[j]
			}
		}
		break
	}
	return fileDuration
}

// FindBoundaries runs Pass 3 (autonomous valley detection) over a Curve
// previously produced by AnalyzeFile.
func FindBoundaries(c *Curve, opts Options) []Valley {
	minProminence := opts.MinProminenceDB
	if minProminence <= 0 {
		minProminence = 3
	}
	minSongDuration := opts.MinSongDurationSec
	if minSongDuration <= 0 {
		minSongDuration = 30
	}
	hop := c.HopSeconds
	if hop <= 0 {
		hop = 0.2
	}

	searchRadius := maxInt(int(5.0/hop), 1)
	contextChunks := maxInt(int(15.0/hop), 1)

	end := c.MusicEndIdx
	if end > len(c.SmoothedShort) {
		end = len(c.SmoothedShort)
	}
	if end <= c.MusicStartIdx+2*searchRadius {
		return nil
	}

	var valleys []Valley
	for i := c.MusicStartIdx + searchRadius; i < end-searchRadius; i++ {
		current := c.SmoothedShort[i]

		if !isStrictLocalMinimum(c.SmoothedShort, i, searchRadius, end) {
			continue
		}

		localRef := c.SmoothedLong[i]
		prominence := localRef - current
		if prominence < minProminence {
			continue
		}

		leftStart := i - contextChunks - searchRadius
		if leftStart < c.MusicStartIdx {
			leftStart = c.MusicStartIdx
		}
		leftEnd := i - searchRadius/2
		if leftEnd < 0 {
			leftEnd = 0
		}
		leftLevel := localRef
		if leftEnd > leftStart {
			leftLevel = meanOf(c.SmoothedShort[leftStart:leftEnd])
		}

		rightStart := i + searchRadius/2
		if rightStart > end-1 {
			rightStart = end - 1
		}
		rightEnd := i + contextChunks + searchRadius
		if rightEnd > end {
			rightEnd = end
		}
		rightLevel := localRef
		if rightEnd > rightStart {
			rightLevel = meanOf(c.SmoothedShort[rightStart:rightEnd])
		}

		leftDip := leftLevel - current
		rightDip := rightLevel - current
		minDip := math.Min(leftDip, rightDip)
		if minDip < minProminence*0.5 {
			continue
		}

		halfPromThreshold := current + prominence/2
		wStart, wEnd := i, i
		for wStart > c.MusicStartIdx && c.SmoothedShort[wStart-1] < halfPromThreshold {
			wStart--
		}
		for wEnd < end-1 && c.SmoothedShort[wEnd+1] < halfPromThreshold {
			wEnd++
		}
		width := float64(wEnd-wStart) * hop

		score := minDip * (1 + prominence*0.1) * (1 + math.Sqrt(width))

		valleys = append(valleys, Valley{
			PositionSeconds: c.Timestamps[i],
			DepthDB:         current,
			ProminenceDB:    prominence,
			LeftLevelDB:     leftLevel,
			RightLevelDB:    rightLevel,
			WidthSeconds:    width,
			Score:           score,
		})
	}

	valleys = proximityFilter(valleys, minSongDuration)
	valleys = adaptiveScoreGapFilter(valleys)
	valleys = depthFilter(valleys, c.NoiseFloorDB)

	sort.Slice(valleys, func(i, j int) bool {
		return valleys[i].PositionSeconds < valleys[j].PositionSeconds
	})
	return valleys
}

func isStrictLocalMinimum(vals []float64, i, radius, end int) bool {
	current := vals[i]
	start := i - radius
	if start < 0 {
		start = 0
	}
	stop := i + radius
	if stop > end-1 {
		stop = end - 1
	}
	for j := start; j <= stop; j++ {
		if j != i && vals[j] < current {
			return false
		}
	}
	return true
}

func meanOf(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// proximityFilter sorts by score descending and greedily drops any
// valley within minSongDuration seconds of a higher-scored one.
func proximityFilter(valleys []Valley, minSongDuration float64) []Valley {
	sorted := append([]Valley(nil), valleys...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

	var kept []Valley
	for _, v := range sorted {
		tooClose := false
		for _, existing := range kept {
			if math.Abs(existing.PositionSeconds-v.PositionSeconds) < minSongDuration {
				tooClose = true
				break
			}
		}
		if !tooClose {
			kept = append(kept, v)
		}
	}
	return kept
}

// adaptiveScoreGapFilter finds the largest score[i+1]/score[i] ratio among
// the ascending-sorted scores and, if it exceeds 1.5, discards every
// valley at or below the lower side of that gap.
func adaptiveScoreGapFilter(valleys []Valley) []Valley {
	if len(valleys) <= 1 {
		return valleys
	}
	scores := make([]float64, len(valleys))
	for i, v := range valleys {
		scores[i] = v.Score
	}
	sort.Float64s(scores)

	bestRatio := 0.0
	bestIdx := 0
	for i := 0; i < len(scores)-1; i++ {
		lower, upper := scores[i], scores[i+1]
		if lower <= 0 {
			continue
		}
		ratio := upper / lower
		if ratio > bestRatio {
			bestRatio = ratio
			bestIdx = i
		}
	}

	if bestRatio <= 1.5 {
		return valleys
	}
	threshold := scores[bestIdx]

	var kept []Valley
	for _, v := range valleys {
		if v.Score > threshold {
			kept = append(kept, v)
		}
	}
	return kept
}

// depthFilter discards any valley whose depth does not reach noiseFloor-5dB
// — real inter-song silence sits measurably below the (upward-biased)
// noise-floor estimate; quiet musical passages do not.
func depthFilter(valleys []Valley, noiseFloorDB float64) []Valley {
	threshold := noiseFloorDB - 5
	var kept []Valley
	for _, v := range valleys {
		if v.DepthDB <= threshold {
			kept = append(kept, v)
		}
	}
	return kept
}

// guidedDurationToleranceFraction is the maximum fractional mismatch
// between a release's total expected duration and the measured music
// region before autonomous (unguided) detection is used instead.
const guidedDurationToleranceFraction = 0.03

// ExpectedTrack is one side's track listing entry, as produced by the
// album resolver.
type ExpectedTrack struct {
	Position      int
	Title         string
	ExpectedStart float64 // seconds from groove-in
	LengthSeconds float64
}

// ShouldUseGuidedDetection reports whether the duration match between
// expectedTracks and the measured music-region duration is close enough
// (<=3%) to trust guided search, and there are at least two tracks (at
// least one boundary to find).
func ShouldUseGuidedDetection(expectedTracks []ExpectedTrack, musicDuration float64) bool {
	if len(expectedTracks) < 2 || musicDuration <= 0 {
		return false
	}
	var expectedDuration float64
	for _, t := range expectedTracks {
		expectedDuration += t.LengthSeconds
	}
	errFrac := math.Abs(expectedDuration-musicDuration) / musicDuration
	return errFrac <= guidedDurationToleranceFraction
}

// FindGuidedBoundaries replaces Pass 3 with a search, for each expected
// inter-track boundary, of the short-smoothed curve within
// [p-10s, p+10s] (p measured from groove-in) for its minimum.
// Unconditionally returns len(expectedTracks)-1 boundaries.
func FindGuidedBoundaries(c *Curve, expectedTracks []ExpectedTrack) []Valley {
	if len(expectedTracks) < 2 {
		return nil
	}
	const searchWindowSeconds = 10.0
	const contextWindow = 75 // ~15s at 200ms chunks

	var boundaries []Valley
	for i := 1; i < len(expectedTracks); i++ {
		expectedPos := c.GrooveInSec + expectedTracks[i].ExpectedStart
		windowStart := expectedPos - searchWindowSeconds
		windowEnd := expectedPos + searchWindowSeconds

		minRMS := math.MaxFloat64
		minPos := expectedPos
		minIdx := 0
		for j, ts := range c.Timestamps {
			if ts < windowStart || ts > windowEnd || j >= len(c.SmoothedShort) {
				continue
			}
			if c.SmoothedShort[j] < minRMS {
				minRMS = c.SmoothedShort[j]
				minPos = ts
				minIdx = j
			}
		}
		if minRMS == math.MaxFloat64 {
			boundaries = append(boundaries, Valley{PositionSeconds: expectedPos})
			continue
		}

		leftStart := minIdx - contextWindow
		if leftStart < 0 {
			leftStart = 0
		}
		leftEnd := minIdx
		rightStart := minIdx + 1
		rightEnd := minIdx + contextWindow
		if rightEnd > len(c.SmoothedShort) {
			rightEnd = len(c.SmoothedShort)
		}

		leftAvg := minRMS
		if leftEnd > leftStart {
			leftAvg = meanOf(c.SmoothedShort[leftStart:leftEnd])
		}
		rightAvg := minRMS
		if rightEnd > rightStart {
			rightAvg = meanOf(c.SmoothedShort[rightStart:rightEnd])
		}

		prominence := math.Max(leftAvg, rightAvg) - minRMS
		if prominence < 0 {
			prominence = 0
		}

		boundaries = append(boundaries, Valley{
			PositionSeconds: minPos,
			DepthDB:         minRMS,
			ProminenceDB:    prominence,
			LeftLevelDB:     leftAvg,
			RightLevelDB:    rightAvg,
		})
	}
	return boundaries
}

// FormatTimestamp renders seconds as MM:SS for log output.
func FormatTimestamp(seconds float64) string {
	m := int(seconds) / 60
	s := int(seconds) % 60
	return fmt.Sprintf("%02d:%02d", m, s)
}
