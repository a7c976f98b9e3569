// Package resolver implements AutoRec's album resolver: it asks a
// configured chain of metadata backends (Discogs, MusicBrainz) to
// identify the album a set of Shazam-identified songs came from, falls
// back to other backends for duration enrichment when the winning
// backend's tracks lack real lengths, and assigns a group of recorded
// files to album sides by a greedy title/duration score.
package resolver

import (
	"fmt"
	"math"
	"strings"

	"github.com/hifiberry/autorec/internal/fingerprint"
)

// ExpectedTrack is one track's position in its side's listing.
type ExpectedTrack struct {
	Position      int
	Title         string
	ExpectedStart float64 // seconds from the side's start
	LengthSeconds float64
}

// AlbumSide is one physical side (or, for CD-sourced metadata, one
// logical grouping) of an album.
type AlbumSide struct {
	Label         string
	Tracks        []ExpectedTrack
	TotalDuration float64
}

// AlbumResult is what a backend returns for a successful match.
type AlbumResult struct {
	Artist      string
	Title       string
	ReleaseRef  string // URL or ID
	Backend     string
	Sides       []AlbumSide
}

// HasUsableDurations reports whether any side carries nonzero track
// lengths.
func (a *AlbumResult) HasUsableDurations() bool {
	for _, side := range a.Sides {
		if side.TotalDuration > 0 {
			return true
		}
	}
	return false
}

// Backend is the capability set every metadata source implements.
type Backend interface {
	Name() string
	FindAlbum(songs []fingerprint.IdentifiedSong, duration float64) (*AlbumResult, error)
	FindAlbumSide(songs []fingerprint.IdentifiedSong, duration float64) (*AlbumSide, error)
	FetchDurationsForAlbum(artist, title string, trackTitles []string, duration float64) ([]ExpectedTrack, error)
}

// Resolve tries each backend in order and returns the first match,
// enriched with durations from other backends if its own are unusable.
func Resolve(backends []Backend, songs []fingerprint.IdentifiedSong, duration float64) (*AlbumResult, error) {
	for _, b := range backends {
		result, err := b.FindAlbum(songs, duration)
		if err != nil {
			continue
		}
		if result == nil {
			continue
		}
		if !result.HasUsableDurations() {
			enrichDurations(result, backends, b, songs, duration)
		}
		return result, nil
	}
	return nil, fmt.Errorf("resolver: no backend matched this audio")
}

// enrichDurations asks every backend other than the one that found result
// for durations, keeping the first non-empty, non-zero-total answer.
func enrichDurations(result *AlbumResult, backends []Backend, found Backend, songs []fingerprint.IdentifiedSong, duration float64) {
	var trackTitles []string
	for _, side := range result.Sides {
		for _, t := range side.Tracks {
			trackTitles = append(trackTitles, t.Title)
		}
	}
	if len(trackTitles) == 0 {
		return
	}

	for _, b := range backends {
		if b.Name() == found.Name() {
			continue
		}
		tracks, err := b.FetchDurationsForAlbum(result.Artist, result.Title, trackTitles, duration)
		if err != nil || len(tracks) == 0 {
			continue
		}
		var total float64
		for _, t := range tracks {
			total += t.LengthSeconds
		}
		if total <= 0 {
			continue
		}
		applyEnrichedDurations(result, tracks)
		return
	}
}

// applyEnrichedDurations fills in lengths/starts on result's tracks by
// matching titles case-insensitively against the enrichment list.
func applyEnrichedDurations(result *AlbumResult, enriched []ExpectedTrack) {
	byTitle := make(map[string]ExpectedTrack, len(enriched))
	for _, t := range enriched {
		byTitle[strings.ToLower(t.Title)] = t
	}

	for si := range result.Sides {
		side := &result.Sides[si]
		var cursor float64
		var total float64
		for ti := range side.Tracks {
			if match, ok := byTitle[strings.ToLower(side.Tracks[ti].Title)]; ok {
				side.Tracks[ti].LengthSeconds = match.LengthSeconds
			}
			side.Tracks[ti].ExpectedStart = cursor
			cursor += side.Tracks[ti].LengthSeconds
			total += side.Tracks[ti].LengthSeconds
		}
		side.TotalDuration = total
	}
}

// FuzzyTitleMatches reports whether trackTitle is a match for songTitle:
// split songTitle into whitespace words of length >= 3, and require that
// at least one such word appears in trackTitle, with matched-word
// fraction >= 0.3.
func FuzzyTitleMatches(songTitle, trackTitle string) bool {
	words := significantWords(songTitle)
	if len(words) == 0 {
		return false
	}
	lowerTrack := strings.ToLower(trackTitle)

	matches := 0
	for _, w := range words {
		if strings.Contains(lowerTrack, w) {
			matches++
		}
	}
	return matches >= 1 && float64(matches)/float64(len(words)) >= 0.3
}

func significantWords(title string) []string {
	var words []string
	for _, w := range strings.Fields(strings.ToLower(title)) {
		if len(w) >= 3 {
			words = append(words, w)
		}
	}
	return words
}

// SongOverlap computes the fraction of songTitles that fuzzy-match any
// track on side.
func SongOverlap(songTitles []string, side AlbumSide) float64 {
	if len(songTitles) == 0 || len(side.Tracks) == 0 {
		return 0
	}
	matches := 0
	for _, title := range songTitles {
		for _, track := range side.Tracks {
			if FuzzyTitleMatches(title, track.Title) {
				matches++
				break
			}
		}
	}
	return float64(matches) / float64(len(songTitles))
}

// DurationScore scores how closely side's total duration matches a
// file's measured music duration; 0.5 (neutral) when the side carries no
// duration data.
func DurationScore(side AlbumSide, fileDuration float64) float64 {
	if side.TotalDuration <= 0 {
		return 0.5
	}
	if fileDuration <= 0 {
		return 0
	}
	ratio := math.Abs(side.TotalDuration-fileDuration) / fileDuration
	score := 1 - 10*ratio
	if score < 0 {
		return 0
	}
	return score
}

// FileInput is one recorded file's evidence for side assignment.
type FileInput struct {
	Path         string
	SongTitles   []string
	MusicDurSec  float64
}

// Assignment pairs a file with the side it was assigned to.
type Assignment struct {
	FileIndex int
	SideIndex int
	Score     float64
}

// AssignSides builds an N(files) x M(sides) score matrix — 100*overlap +
// 10*duration_score per cell — and greedily assigns the highest-scoring
// pairs first. Files left over once every side is taken, or once the best
// remaining score is <= 0, are omitted from the result (callers label
// those '?').
func AssignSides(files []FileInput, sides []AlbumSide) []Assignment {
	if len(files) == 0 || len(sides) == 0 {
		return nil
	}

	scores := make([][]float64, len(files))
	for fi, f := range files {
		scores[fi] = make([]float64, len(sides))
		for si, side := range sides {
			scores[fi][si] = 100*SongOverlap(f.SongTitles, side) + 10*DurationScore(side, f.MusicDurSec)
		}
	}

	assignedFiles := make([]bool, len(files))
	assignedSides := make([]bool, len(sides))
	var assignments []Assignment

	pairs := len(files)
	if len(sides) < pairs {
		pairs = len(sides)
	}

	for n := 0; n < pairs; n++ {
		bestFI, bestSI := -1, -1
		bestScore := math.Inf(-1)
		for fi := range files {
			if assignedFiles[fi] {
				continue
			}
			for si := range sides {
				if assignedSides[si] {
					continue
				}
				if scores[fi][si] > bestScore {
					bestScore = scores[fi][si]
					bestFI, bestSI = fi, si
				}
			}
		}
		if bestFI == -1 || bestScore <= 0 {
			break
		}
		assignedFiles[bestFI] = true
		assignedSides[bestSI] = true
		assignments = append(assignments, Assignment{FileIndex: bestFI, SideIndex: bestSI, Score: bestScore})
	}

	return assignments
}
