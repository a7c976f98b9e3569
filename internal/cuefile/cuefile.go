// Package cuefile writes CUE sheets and their companion detection-report
// sidecars for AutoRec's recorded and boundary-analyzed WAV files.
package cuefile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

var timeZero = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// cdFramesPerSecond is the number of frames per second in CUE/CD time
// references (MM:SS:FF).
const cdFramesPerSecond = 75

// Valley is one detected (or guided) track boundary.
type Valley struct {
	PositionSeconds float64
	DepthDB         float64
	ProminenceDB    float64
	LeftLevelDB     float64
	RightLevelDB    float64
	WidthSeconds    float64
	Score           float64
}

// ExpectedTrack carries the matched-release position for the info
// sidecar's expected-vs-actual comparison.
type ExpectedTrack struct {
	ExpectedStart  float64
	ExpectedLength float64
}

// Generate builds CUE sheet content from a groove-in time and a set of
// detected boundaries. trackNames, if shorter than the track count, is
// padded with "Track N" defaults.
func Generate(wavFile, artist, title string, trackNames []string, grooveIn float64, boundaries []Valley) string {
	wavFilename := filepath.Base(wavFile)

	var cue strings.Builder
	fmt.Fprintf(&cue, "REM GENERATOR \"HiFiBerry AutoRec boundary_finder\"\n")
	fmt.Fprintf(&cue, "PERFORMER \"%s\"\n", artist)
	fmt.Fprintf(&cue, "TITLE \"%s\"\n", title)
	fmt.Fprintf(&cue, "FILE \"%s\" WAVE\n", wavFilename)

	positions := make([]float64, 0, len(boundaries)+1)
	positions = append(positions, grooveIn)
	for _, b := range boundaries {
		positions = append(positions, b.PositionSeconds)
	}

	for i, pos := range positions {
		trackNum := i + 1
		name := trackName(trackNames, i, trackNum)

		fmt.Fprintf(&cue, "  TRACK %02d AUDIO\n", trackNum)
		fmt.Fprintf(&cue, "    TITLE \"%s\"\n", name)
		fmt.Fprintf(&cue, "    PERFORMER \"%s\"\n", artist)
		fmt.Fprintf(&cue, "    INDEX 01 %s\n", FormatCueTimestamp(pos))
	}

	return cue.String()
}

// trackName picks the track's display name, stripping a leading "#N "
// prefix if present, and falling back to "Track N" when no name was
// supplied for this position.
func trackName(names []string, index, trackNum int) string {
	name := fmt.Sprintf("Track %d", trackNum)
	if index < len(names) && names[index] != "" {
		name = names[index]
	}
	prefix := fmt.Sprintf("#%d ", trackNum)
	return strings.TrimPrefix(name, prefix)
}

// FormatCueTimestamp renders seconds as CUE's MM:SS:FF, with frames
// truncated (not rounded) to 75ths of a second.
func FormatCueTimestamp(seconds float64) string {
	minutes := int(seconds / 60)
	secs := int(seconds) % 60
	frames := int((seconds - float64(int(seconds))) * cdFramesPerSecond)
	return fmt.Sprintf("%02d:%02d:%02d", minutes, secs, frames)
}

// Write creates the CUE file alongside wavFile, named "<stem>.cue" when
// hasMatch is true (a verified release match) or "<stem>.guess.cue" when
// detection was autonomous.
func Write(wavFile, content string, hasMatch bool) (string, error) {
	path := cuePath(wavFile, hasMatch)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("cuefile: write %s: %w", path, err)
	}
	return path, nil
}

func cuePath(wavFile string, hasMatch bool) string {
	stem := strings.TrimSuffix(wavFile, filepath.Ext(wavFile))
	if hasMatch {
		return stem + ".cue"
	}
	return stem + ".guess.cue"
}

// HasCueFile reports whether either naming variant's CUE file already
// exists for wavFile.
func HasCueFile(wavFile string) bool {
	stem := strings.TrimSuffix(wavFile, filepath.Ext(wavFile))
	if _, err := os.Stat(stem + ".cue"); err == nil {
		return true
	}
	if _, err := os.Stat(stem + ".guess.cue"); err == nil {
		return true
	}
	return false
}

// GenerateInfo builds the human-readable sidecar report: groove timing,
// detection method, and per-track start/end/duration with expected-vs-
// actual offsets when expectedTracks is non-nil.
func GenerateInfo(wavFile string, grooveIn, grooveOut float64, boundaries []Valley, trackNames []string, expectedTracks []ExpectedTrack, releaseInfo string) string {
	var info strings.Builder

	fmt.Fprintf(&info, "Vinyl Recording Analysis\n")
	fmt.Fprintf(&info, "========================\n\n")
	fmt.Fprintf(&info, "File: %s (%s)\n\n", filepath.Base(wavFile), humanize.Bytes(fileSize(wavFile)))

	fmt.Fprintf(&info, "Groove Timing:\n")
	fmt.Fprintf(&info, "--------------\n")
	fmt.Fprintf(&info, "Lead-in (groove-in):   %.2fs\n", grooveIn)
	fmt.Fprintf(&info, "Lead-out (groove-out): %.2fs (%s total)\n\n", grooveOut, humanizeSeconds(grooveOut-grooveIn))

	if releaseInfo != "" {
		fmt.Fprintf(&info, "Release Match:\n")
		fmt.Fprintf(&info, "--------------\n")
		fmt.Fprintf(&info, "%s\n\n", releaseInfo)
	}

	method := "Autonomous (valley-based)"
	if expectedTracks != nil {
		method = "Guided (release-matched)"
	}
	fmt.Fprintf(&info, "Detection Method: %s\n\n", method)

	if len(boundaries) == 0 {
		return info.String()
	}

	fmt.Fprintf(&info, "Track Boundaries:\n")
	fmt.Fprintf(&info, "-----------------\n")

	currentPos := grooveIn
	for i, b := range boundaries {
		trackNum := i + 1
		name := trackDisplayName(trackNames, i)

		fmt.Fprintf(&info, "Track %d: %s\n", trackNum, name)
		fmt.Fprintf(&info, "  Start: %.2fs\n", currentPos)
		fmt.Fprintf(&info, "  End:   %.2fs\n", b.PositionSeconds)
		fmt.Fprintf(&info, "  Duration: %.2fs\n", b.PositionSeconds-currentPos)

		writeExpectedComparison(&info, expectedTracks, i, currentPos-grooveIn, b.PositionSeconds-currentPos)
		fmt.Fprintf(&info, "\n")

		currentPos = b.PositionSeconds
	}

	lastTrack := len(boundaries) + 1
	lastName := trackDisplayName(trackNames, len(boundaries))
	fmt.Fprintf(&info, "Track %d: %s\n", lastTrack, lastName)
	fmt.Fprintf(&info, "  Start: %.2fs\n", currentPos)
	fmt.Fprintf(&info, "  End:   %.2fs\n", grooveOut)
	fmt.Fprintf(&info, "  Duration: %.2fs\n", grooveOut-currentPos)
	writeExpectedComparison(&info, expectedTracks, len(boundaries), currentPos-grooveIn, grooveOut-currentPos)

	return info.String()
}

func fileSize(path string) uint64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return uint64(info.Size())
}

func humanizeSeconds(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	d := time.Duration(seconds * float64(time.Second))
	return humanize.RelTime(timeZero, timeZero.Add(d), "", "")
}

func trackDisplayName(names []string, index int) string {
	if index < len(names) && names[index] != "" {
		return names[index]
	}
	return "Unknown"
}

func writeExpectedComparison(info *strings.Builder, expectedTracks []ExpectedTrack, index int, actualStart, actualLength float64) {
	if expectedTracks == nil || index >= len(expectedTracks) {
		return
	}
	e := expectedTracks[index]
	startDiff := actualStart - e.ExpectedStart
	lengthDiff := actualLength - e.ExpectedLength
	fmt.Fprintf(info, "  Expected start: %.2fs (offset: %+.2fs)\n", e.ExpectedStart, startDiff)
	fmt.Fprintf(info, "  Expected length: %.2fs (diff: %+.2fs)\n", e.ExpectedLength, lengthDiff)
}

// WriteInfo creates the detection-report sidecar, named "<stem>.cue.txt"
// or "<stem>.guess.cue.txt" matching Write's naming rule.
func WriteInfo(wavFile, content string, hasMatch bool) (string, error) {
	stem := strings.TrimSuffix(wavFile, filepath.Ext(wavFile))
	path := stem + ".cue.txt"
	if !hasMatch {
		path = stem + ".guess.cue.txt"
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("cuefile: write %s: %w", path, err)
	}
	return path, nil
}
