// Package musicbrainz implements AutoRec's MusicBrainz backend: release
// search by artist/title, track length lookup, and the split-point logic
// that works out which physical side of a multi-file vinyl rip a given
// recording represents when MusicBrainz only returns whole-release data.
package musicbrainz

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hifiberry/autorec/internal/fingerprint"
	"github.com/hifiberry/autorec/internal/ratelimit"
	"github.com/hifiberry/autorec/internal/resolver"
)

const userAgent = "HifiBerryAutorec/0.2 (+https://github.com/hifiberry/autorec)"

// baseInterval is MusicBrainz's documented rate limit: 1 request/second,
// with a small safety margin.
const baseInterval = 1100 * time.Millisecond

// Client is a MusicBrainz-backed resolver.Backend.
type Client struct {
	HTTP       *http.Client
	Limiter    *ratelimit.Limiter
	VinylOnly  bool
}

// New builds a Client with a fresh rate limiter at MusicBrainz's standard
// interval.
func New(vinylOnly bool) *Client {
	return &Client{
		HTTP:      &http.Client{Timeout: 15 * time.Second},
		Limiter:   ratelimit.NewFromInterval("musicbrainz", baseInterval),
		VinylOnly: vinylOnly,
	}
}

func (c *Client) Name() string { return "musicbrainz" }

type searchResponse struct {
	Releases []searchRelease `json:"releases"`
}

type searchRelease struct {
	ID           string         `json:"id"`
	Score        int            `json:"score"`
	Title        string         `json:"title"`
	ArtistCredit []artistCredit `json:"artist-credit"`
	Media        []searchMedium `json:"media"`
	TrackCount   int            `json:"track-count"`
}

type artistCredit struct {
	Name string `json:"name"`
}

type searchMedium struct {
	Format     string `json:"format"`
	TrackCount int    `json:"track-count"`
}

type searchResult struct {
	ReleaseID  string
	Title      string
	Artist     string
	Score      int
	IsVinyl    bool
	TrackCount int
}

type releaseInfo struct {
	Media []medium `json:"media"`
}

type medium struct {
	Position int     `json:"position"`
	Tracks   []track `json:"tracks"`
}

type track struct {
	Title    string `json:"title"`
	Length   *int64 `json:"length"` // milliseconds
	Position int    `json:"position"`
}

// FindAlbum searches MusicBrainz for the artist/album pair most common
// among songs, fetches the release, and splits its tracklist into a
// single side covering the whole file.
func (c *Client) FindAlbum(songs []fingerprint.IdentifiedSong, duration float64) (*resolver.AlbumResult, error) {
	artist, album := mostCommonArtistAlbum(songs)
	if artist == "" || album == "" {
		return nil, fmt.Errorf("musicbrainz: no artist/album in identified songs")
	}

	results, err := c.searchRelease(artist, album, 5)
	if err != nil {
		return nil, err
	}
	if c.VinylOnly {
		results = filterVinyl(results)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("musicbrainz: no release found for %s - %s", artist, album)
	}

	best := results[0]
	tracks, err := c.fetchReleaseInfo(best.ReleaseID)
	if err != nil {
		return nil, err
	}

	_, fileTracks := matchTracksToDuration(tracks, duration)

	return &resolver.AlbumResult{
		Artist:     best.Artist,
		Title:      best.Title,
		ReleaseRef: best.ReleaseID,
		Backend:    c.Name(),
		Sides: []resolver.AlbumSide{
			expectedTracksToSide("A", fileTracks),
		},
	}, nil
}

// FindAlbumSide is identical to FindAlbum's single-side result, since
// MusicBrainz has no native concept of vinyl sides.
func (c *Client) FindAlbumSide(songs []fingerprint.IdentifiedSong, duration float64) (*resolver.AlbumSide, error) {
	result, err := c.FindAlbum(songs, duration)
	if err != nil {
		return nil, err
	}
	if len(result.Sides) == 0 {
		return nil, fmt.Errorf("musicbrainz: no sides in matched release")
	}
	return &result.Sides[0], nil
}

// FetchDurationsForAlbum looks up artist/title on MusicBrainz and returns
// durations for whichever of trackTitles it can title-match.
func (c *Client) FetchDurationsForAlbum(artist, title string, trackTitles []string, duration float64) ([]resolver.ExpectedTrack, error) {
	results, err := c.searchRelease(artist, title, 5)
	if err != nil || len(results) == 0 {
		return nil, err
	}

	tracks, err := c.fetchReleaseInfo(results[0].ReleaseID)
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(trackTitles))
	for _, t := range trackTitles {
		wanted[strings.ToLower(t)] = true
	}

	var out []resolver.ExpectedTrack
	for _, t := range tracks {
		if wanted[strings.ToLower(t.Title)] {
			out = append(out, t)
		}
	}
	return out, nil
}

func (c *Client) searchRelease(artist, release string, limit int) ([]searchResult, error) {
	query := fmt.Sprintf("artist:%s AND release:%s", quoteField(artist), quoteField(release))
	u := fmt.Sprintf("https://musicbrainz.org/ws/2/release/?query=%s&fmt=json&limit=%d",
		url.QueryEscape(query), limit)

	c.Limiter.WaitIfNeeded()
	var resp searchResponse
	err := c.getJSON(u, &resp)
	if err != nil {
		c.Limiter.ReportFailure()
		return nil, fmt.Errorf("musicbrainz: search: %w", err)
	}
	c.Limiter.ReportSuccess()

	results := make([]searchResult, 0, len(resp.Releases))
	for _, r := range resp.Releases {
		var artistName string
		if len(r.ArtistCredit) > 0 {
			artistName = r.ArtistCredit[0].Name
		}
		isVinyl := false
		for _, m := range r.Media {
			if strings.Contains(m.Format, "Vinyl") {
				isVinyl = true
			}
		}
		results = append(results, searchResult{
			ReleaseID:  r.ID,
			Title:      r.Title,
			Artist:     artistName,
			Score:      r.Score,
			IsVinyl:    isVinyl,
			TrackCount: r.TrackCount,
		})
	}
	return results, nil
}

func (c *Client) fetchReleaseInfo(releaseID string) ([]resolver.ExpectedTrack, error) {
	u := fmt.Sprintf("https://musicbrainz.org/ws/2/release/%s?inc=recordings&fmt=json", releaseID)

	c.Limiter.WaitIfNeeded()
	var resp releaseInfo
	err := c.getJSON(u, &resp)
	if err != nil {
		c.Limiter.ReportFailure()
		return nil, fmt.Errorf("musicbrainz: fetch release %s: %w", releaseID, err)
	}
	c.Limiter.ReportSuccess()

	var tracks []resolver.ExpectedTrack
	var cumulative float64
	if len(resp.Media) == 0 {
		return nil, nil
	}
	for _, t := range resp.Media[0].Tracks {
		if t.Length == nil {
			continue
		}
		lengthSeconds := float64(*t.Length) / 1000
		tracks = append(tracks, resolver.ExpectedTrack{
			Position:      t.Position,
			Title:         t.Title,
			ExpectedStart: cumulative,
			LengthSeconds: lengthSeconds,
		})
		cumulative += lengthSeconds
	}
	return tracks, nil
}

func (c *Client) getJSON(rawURL string, out any) error {
	requestID := uuid.NewString()

	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Request-Id", requestID)

	slog.Debug("musicbrainz: request", "request_id", requestID, "url", rawURL)
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("musicbrainz: status %d (request %s)", resp.StatusCode, requestID)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func quoteField(s string) string {
	return fmt.Sprintf("%q", s)
}

func filterVinyl(results []searchResult) []searchResult {
	var out []searchResult
	for _, r := range results {
		if r.IsVinyl {
			out = append(out, r)
		}
	}
	return out
}

// matchTracksToDuration determines which tracks of a multi-side release
// belong to a single recorded file, by finding the split point whose
// resulting side total most closely matches duration.
func matchTracksToDuration(allTracks []resolver.ExpectedTrack, duration float64) (int, []resolver.ExpectedTrack) {
	if len(allTracks) == 0 {
		return 0, nil
	}

	var total float64
	for _, t := range allTracks {
		total += t.LengthSeconds
	}
	if total == 0 || math.Abs(duration-total)/total < 0.2 {
		return 0, allTracks
	}

	bestOffset := 0
	bestDiff := math.MaxFloat64
	for split := 1; split < len(allTracks); split++ {
		var sideA, sideB float64
		for _, t := range allTracks[:split] {
			sideA += t.LengthSeconds
		}
		for _, t := range allTracks[split:] {
			sideB += t.LengthSeconds
		}
		diffA := math.Abs(duration - sideA)
		diffB := math.Abs(duration - sideB)
		minDiff := math.Min(diffA, diffB)
		if minDiff < bestDiff {
			bestDiff = minDiff
			bestOffset = split
		}
	}

	var sideA, sideB float64
	for _, t := range allTracks[:bestOffset] {
		sideA += t.LengthSeconds
	}
	for _, t := range allTracks[bestOffset:] {
		sideB += t.LengthSeconds
	}

	if math.Abs(duration-sideA) < math.Abs(duration-sideB) {
		return 0, allTracks[:bestOffset]
	}

	filtered := make([]resolver.ExpectedTrack, len(allTracks)-bestOffset)
	copy(filtered, allTracks[bestOffset:])
	offset := sideA
	for i := range filtered {
		filtered[i].ExpectedStart -= offset
	}
	return bestOffset, filtered
}

func expectedTracksToSide(label string, tracks []resolver.ExpectedTrack) resolver.AlbumSide {
	var total float64
	for _, t := range tracks {
		total += t.LengthSeconds
	}
	return resolver.AlbumSide{Label: label, Tracks: tracks, TotalDuration: total}
}

func mostCommonArtistAlbum(songs []fingerprint.IdentifiedSong) (artist, album string) {
	type key struct{ artist, album string }
	counts := make(map[key]int)
	var order []key
	for _, s := range songs {
		if s.Album == "" {
			continue
		}
		k := key{s.Artist, s.Album}
		if counts[k] == 0 {
			order = append(order, k)
		}
		counts[k]++
	}
	best := 0
	for _, k := range order {
		if n := counts[k]; n > best {
			best = n
			artist, album = k.artist, k.album
		}
	}
	return artist, album
}
