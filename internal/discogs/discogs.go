// Package discogs implements AutoRec's Discogs backend: release lookup
// with explicit per-side vinyl tracklists, which is why it's tried before
// MusicBrainz for vinyl captures — Discogs track positions already carry
// the side letter ("A1", "B2"), MusicBrainz does not.
package discogs

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"

	"github.com/hifiberry/autorec/internal/fingerprint"
	"github.com/hifiberry/autorec/internal/ratelimit"
	"github.com/hifiberry/autorec/internal/resolver"
)

const userAgent = "HifiBerryAutorec/0.2 (+https://github.com/hifiberry/autorec)"

// credentials is the consumer key/secret pair Discogs issues per app.
type credentials struct {
	ConsumerKey    string `toml:"consumer_key"`
	ConsumerSecret string `toml:"consumer_secret"`
}

// loadCredentials searches, in order: ./discogs_credentials.toml,
// /etc/autorec/discogs_credentials.toml, ~/.config/autorec/discogs_credentials.toml.
func loadCredentials() (*credentials, bool) {
	paths := []string{"discogs_credentials.toml", "/etc/autorec/discogs_credentials.toml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "autorec", "discogs_credentials.toml"))
	}

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var creds credentials
		if err := toml.Unmarshal(data, &creds); err != nil {
			continue
		}
		if creds.ConsumerKey == "" || creds.ConsumerSecret == "" {
			continue
		}
		return &creds, true
	}
	return nil, false
}

// Client is a Discogs-backed resolver.Backend.
type Client struct {
	HTTP      *http.Client
	Limiter   *ratelimit.Limiter
	VinylOnly bool

	creds         *credentials
	authenticated bool
}

// New builds a Client, loading credentials if available and sizing the
// rate limiter accordingly: 1000ms authenticated (60 req/min), 2500ms
// unauthenticated (24 req/min).
func New(vinylOnly bool) *Client {
	creds, ok := loadCredentials()
	interval := 2500 * time.Millisecond
	if ok {
		interval = 1000 * time.Millisecond
	}
	return &Client{
		HTTP:          &http.Client{Timeout: 15 * time.Second},
		Limiter:       ratelimit.NewFromInterval("discogs", interval),
		VinylOnly:     vinylOnly,
		creds:         creds,
		authenticated: ok,
	}
}

func (c *Client) Name() string { return "discogs" }

type apiRelease struct {
	ID        int64       `json:"id"`
	Title     string      `json:"title"`
	Artists   []apiArtist `json:"artists"`
	Tracklist []apiTrack  `json:"tracklist"`
	Formats   []apiFormat `json:"formats"`
	Year      int         `json:"year"`
}

type apiArtist struct {
	Name string `json:"name"`
}

type apiTrack struct {
	Position string `json:"position"`
	Title    string `json:"title"`
	Duration string `json:"duration"`
	Type     string `json:"type_"`
}

type apiFormat struct {
	Name         string   `json:"name"`
	Descriptions []string `json:"descriptions"`
}

type apiSearchResponse struct {
	Results []apiSearchResult `json:"results"`
}

type apiSearchResult struct {
	ID        int64    `json:"id"`
	Title     string   `json:"title"`
	Format    []string `json:"format"`
	MasterID  int64    `json:"master_id"`
	Type      string   `json:"type"`
}

// side is one physical side of a release, its tracks ordered as printed.
type side struct {
	label         byte
	tracks        []resolver.ExpectedTrack
	totalDuration float64
}

// release is a fetched Discogs release, grouped by side.
type release struct {
	id     int64
	title  string
	artist string
	sides  []side
}

// FindAlbum locates the artist/album most common among songs, searches
// Discogs, fetches the top candidate release, and scores each of its
// sides against duration and song titles to pick the best one.
func (c *Client) FindAlbum(songs []fingerprint.IdentifiedSong, duration float64) (*resolver.AlbumResult, error) {
	artist, album := mostCommonArtistAlbum(songs)
	if artist == "" || album == "" {
		return nil, fmt.Errorf("discogs: no artist/album in identified songs")
	}

	rel, err := c.searchAndFetch(artist, album)
	if err != nil {
		return nil, err
	}

	titles := songTitles(songs)
	best := bestSide(rel.sides, duration, titles)
	if best == nil {
		return nil, fmt.Errorf("discogs: release %s - %s has no usable sides", artist, album)
	}

	return &resolver.AlbumResult{
		Artist:     rel.artist,
		Title:      rel.title,
		ReleaseRef: fmt.Sprintf("https://www.discogs.com/release/%d", rel.id),
		Backend:    c.Name(),
		Sides:      []resolver.AlbumSide{sideToAlbumSide(*best)},
	}, nil
}

// FindAlbumSide returns only the best-scoring side of the matched album.
func (c *Client) FindAlbumSide(songs []fingerprint.IdentifiedSong, duration float64) (*resolver.AlbumSide, error) {
	result, err := c.FindAlbum(songs, duration)
	if err != nil {
		return nil, err
	}
	if len(result.Sides) == 0 {
		return nil, fmt.Errorf("discogs: no sides in matched release")
	}
	return &result.Sides[0], nil
}

// FetchDurationsForAlbum returns whichever of trackTitles appear
// (case-insensitive exact title match) among the matched release's
// tracks, with their durations.
func (c *Client) FetchDurationsForAlbum(artist, title string, trackTitles []string, duration float64) ([]resolver.ExpectedTrack, error) {
	rel, err := c.searchAndFetch(artist, title)
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(trackTitles))
	for _, t := range trackTitles {
		wanted[strings.ToLower(t)] = true
	}

	var out []resolver.ExpectedTrack
	for _, s := range rel.sides {
		for _, t := range s.tracks {
			if wanted[strings.ToLower(t.Title)] {
				out = append(out, t)
			}
		}
	}
	return out, nil
}

func (c *Client) searchAndFetch(artist, album string) (*release, error) {
	releaseID, err := c.searchBestReleaseID(artist, album)
	if err != nil {
		return nil, err
	}
	return c.fetchRelease(releaseID)
}

func (c *Client) searchBestReleaseID(artist, album string) (int64, error) {
	query := artist + " " + album
	u := fmt.Sprintf("https://api.discogs.com/database/search?q=%s&per_page=25", urlencode(query))
	if c.VinylOnly {
		u += "&format=Vinyl"
	}

	c.Limiter.WaitIfNeeded()
	var resp apiSearchResponse
	if err := c.getJSON(u, &resp); err != nil {
		c.Limiter.ReportFailure()
		return 0, fmt.Errorf("discogs: search: %w", err)
	}
	c.Limiter.ReportSuccess()

	for _, r := range resp.Results {
		if r.Type != "" && r.Type != "release" {
			continue
		}
		return r.ID, nil
	}
	return 0, fmt.Errorf("discogs: no results for %q", query)
}

func (c *Client) fetchRelease(releaseID int64) (*release, error) {
	u := fmt.Sprintf("https://api.discogs.com/releases/%d", releaseID)

	c.Limiter.WaitIfNeeded()
	var api apiRelease
	if err := c.getJSON(u, &api); err != nil {
		c.Limiter.ReportFailure()
		return nil, fmt.Errorf("discogs: fetch release %d: %w", releaseID, err)
	}
	c.Limiter.ReportSuccess()

	artist := "Unknown Artist"
	if len(api.Artists) > 0 {
		artist = api.Artists[0].Name
	}

	var tracks []apiTrack
	for _, t := range api.Tracklist {
		if t.Type == "track" || t.Type == "" {
			tracks = append(tracks, t)
		}
	}

	return &release{
		id:     api.ID,
		title:  api.Title,
		artist: artist,
		sides:  groupIntoSides(tracks),
	}, nil
}

func groupIntoSides(apiTracks []apiTrack) []side {
	byLabel := make(map[byte][]resolver.ExpectedTrack)
	var order []byte

	for _, t := range apiTracks {
		label := sideFromPosition(t.Position)
		if _, ok := byLabel[label]; !ok {
			order = append(order, label)
		}
		byLabel[label] = append(byLabel[label], resolver.ExpectedTrack{
			Position:      trackNumberFromPosition(t.Position),
			Title:         t.Title,
			LengthSeconds: parseDuration(t.Duration),
		})
	}

	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	sides := make([]side, 0, len(order))
	for _, label := range order {
		tracks := byLabel[label]
		var cumulative, total float64
		for i := range tracks {
			tracks[i].ExpectedStart = cumulative
			cumulative += tracks[i].LengthSeconds
			total += tracks[i].LengthSeconds
		}
		sides = append(sides, side{label: label, tracks: tracks, totalDuration: total})
	}
	return sides
}

// sideFromPosition extracts the leading letter of a Discogs position
// string: "A1" -> 'A', "B2.a" -> 'B', "" -> '?'.
func sideFromPosition(pos string) byte {
	if pos == "" {
		return '?'
	}
	c := pos[0]
	if c >= 'a' && c <= 'z' {
		c -= 'a' - 'A'
	}
	if c < 'A' || c > 'Z' {
		return '?'
	}
	return c
}

func trackNumberFromPosition(pos string) int {
	var digits strings.Builder
	for _, r := range pos {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	n, _ := strconv.Atoi(digits.String())
	return n
}

// parseDuration parses a Discogs duration string like "6:40" or "1:02:30".
func parseDuration(s string) float64 {
	parts := strings.Split(s, ":")
	nums := make([]float64, len(parts))
	for i, p := range parts {
		n, _ := strconv.ParseFloat(p, 64)
		nums[i] = n
	}
	switch len(nums) {
	case 2:
		return nums[0]*60 + nums[1]
	case 3:
		return nums[0]*3600 + nums[1]*60 + nums[2]
	default:
		return 0
	}
}

func bestSide(sides []side, duration float64, titles []string) *side {
	var best *side
	bestScore := -1.0
	first := true
	for i := range sides {
		s := &sides[i]
		if len(s.tracks) == 0 {
			continue
		}
		score := scoreSide(*s, duration, titles)
		if first || score > bestScore {
			best = s
			bestScore = score
			first = false
		}
	}
	return best
}

func scoreSide(s side, fileDuration float64, songTitles []string) float64 {
	side := resolver.AlbumSide{Label: string(s.label), Tracks: s.tracks, TotalDuration: s.totalDuration}
	return 100*resolver.SongOverlap(songTitles, side) + 10*resolver.DurationScore(side, fileDuration)
}

func sideToAlbumSide(s side) resolver.AlbumSide {
	return resolver.AlbumSide{Label: string(s.label), Tracks: s.tracks, TotalDuration: s.totalDuration}
}

func songTitles(songs []fingerprint.IdentifiedSong) []string {
	out := make([]string, len(songs))
	for i, s := range songs {
		out[i] = s.Title
	}
	return out
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

func urlencode(s string) string {
	return url.QueryEscape(s)
}

func (c *Client) getJSON(rawURL string, out any) error {
	requestID := uuid.NewString()

	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Request-Id", requestID)
	if c.creds != nil {
		req.Header.Set("Authorization", fmt.Sprintf("Discogs key=%s, secret=%s", c.creds.ConsumerKey, c.creds.ConsumerSecret))
	}

	slog.Debug("discogs: request", "request_id", requestID, "url", rawURL)
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("discogs: status %d (request %s)", resp.StatusCode, requestID)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
