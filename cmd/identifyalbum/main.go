// Command identifyalbum samples a recorded WAV file for song fingerprints,
// resolves the matching release across the configured metadata backends,
// and re-runs boundary detection guided by the release's track lengths
// when the match is good enough to trust. Given -dir instead of -wav, it
// processes every recording in a directory that doesn't have a CUE
// sidecar yet; -watch keeps it running and picks up new recordings as
// they land.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hifiberry/autorec/internal/applog"
	"github.com/hifiberry/autorec/internal/batch"
	"github.com/hifiberry/autorec/internal/boundary"
	"github.com/hifiberry/autorec/internal/config"
	"github.com/hifiberry/autorec/internal/cuefile"
	"github.com/hifiberry/autorec/internal/discogs"
	"github.com/hifiberry/autorec/internal/fingerprint"
	"github.com/hifiberry/autorec/internal/musicbrainz"
	"github.com/hifiberry/autorec/internal/resolver"
	"github.com/hifiberry/autorec/internal/wavfile"
)

func main() {
	cfgDefaults, _ := config.Load("")

	wavPath := flag.String("wav", "", "path to a single recorded WAV file")
	dir := flag.String("dir", "", "process every unprocessed recording in this directory instead of -wav")
	watch := flag.Bool("watch", false, "with -dir, keep running and process new recordings as they appear")
	backendOrderFlag := flag.String("backend-order", strings.Join(cfgDefaults.BackendOrder, ","), "comma-separated backend try order")
	stepSeconds := flag.Float64("sample-step-s", 180, "seconds between fingerprint sample points")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	logger := applog.Init(applog.Options{Debug: *debug})

	if *wavPath == "" && *dir == "" {
		fmt.Fprintln(os.Stderr, "identifyalbum: one of -wav or -dir is required")
		os.Exit(2)
	}

	backends := buildBackends(strings.Split(*backendOrderFlag, ","))
	process := func(path string) error {
		return identify(logger, path, backends, *stepSeconds)
	}

	switch {
	case *dir != "" && *watch:
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		logger.Info("watching directory", "dir", *dir)
		batch.Watch(ctx, *dir, 5*time.Second, process)
	case *dir != "":
		if err := batch.Scan(*dir, process); err != nil {
			logger.Error("directory scan failed", "dir", *dir, "err", err)
			os.Exit(1)
		}
	default:
		if err := process(*wavPath); err != nil {
			logger.Error("identification failed", "path", *wavPath, "err", err)
			os.Exit(1)
		}
	}
}

func buildBackends(order []string) []resolver.Backend {
	var backends []resolver.Backend
	for _, name := range order {
		switch strings.TrimSpace(name) {
		case "discogs":
			backends = append(backends, discogs.New(true))
		case "musicbrainz-vinyl":
			backends = append(backends, musicbrainz.New(true))
		case "musicbrainz-all":
			backends = append(backends, musicbrainz.New(false))
		}
	}
	return backends
}

// identify runs the full fingerprint → resolve → boundary → CUE pipeline
// for one recording.
func identify(logger *slog.Logger, wavPath string, backends []resolver.Backend, stepSeconds float64) error {
	fileDuration, err := wavDuration(wavPath)
	if err != nil {
		return fmt.Errorf("read wav header: %w", err)
	}

	sampler, err := fingerprint.NewSampler(fingerprint.SongrecBackend{})
	if err != nil {
		return fmt.Errorf("create fingerprint sampler: %w", err)
	}

	timestamps := fingerprint.DefaultTimestamps(fileDuration, stepSeconds)
	result, err := sampler.IdentifyAt(wavPath, timestamps)
	if err != nil {
		return fmt.Errorf("fingerprint identification: %w", err)
	}
	logger.Info("fingerprint sampling complete", "file", wavPath, "songs_identified", len(result.Songs))
	for _, s := range result.Songs {
		logger.Debug("identified song", "timestamp", s.Timestamp, "artist", s.Artist, "title", s.Title)
	}

	albumResult, matchErr := resolver.Resolve(backends, result.Songs, fileDuration)

	curve, err := boundary.AnalyzeFile(wavPath, boundary.DefaultOptions())
	if err != nil {
		return fmt.Errorf("boundary analysis: %w", err)
	}

	hasMatch := matchErr == nil
	artist, title := "Unknown Artist", "Unknown Album"
	var trackNames []string
	var expectedCue []cuefile.ExpectedTrack
	var boundaryTracks []boundary.ExpectedTrack
	var releaseInfo string

	if hasMatch && len(albumResult.Sides) > 0 {
		side := albumResult.Sides[0]
		artist, title = albumResult.Artist, albumResult.Title
		releaseInfo = fmt.Sprintf("%s — %s (%s, side %s)", albumResult.Artist, albumResult.Title, albumResult.Backend, side.Label)

		for i, t := range side.Tracks {
			trackNames = append(trackNames, t.Title)
			expectedCue = append(expectedCue, cuefile.ExpectedTrack{ExpectedStart: t.ExpectedStart, ExpectedLength: t.LengthSeconds})
			boundaryTracks = append(boundaryTracks, boundary.ExpectedTrack{
				Position:      i + 1,
				Title:         t.Title,
				ExpectedStart: t.ExpectedStart,
				LengthSeconds: t.LengthSeconds,
			})
		}
	} else {
		logger.Warn("no album match", "file", wavPath, "err", matchErr)
	}

	musicDuration := curve.GrooveOutSec - curve.GrooveInSec
	var valleys []boundary.Valley
	if hasMatch && boundary.ShouldUseGuidedDetection(boundaryTracks, musicDuration) {
		logger.Info("using guided detection", "file", wavPath, "expected_tracks", len(boundaryTracks))
		valleys = boundary.FindGuidedBoundaries(curve, boundaryTracks)
	} else {
		logger.Info("using autonomous detection", "file", wavPath)
		valleys = boundary.FindBoundaries(curve, boundary.DefaultOptions())
		hasMatch = false // release matched but guided detection wasn't trusted enough to call this verified
	}

	cueValleys := make([]cuefile.Valley, len(valleys))
	for i, v := range valleys {
		cueValleys[i] = cuefile.Valley{
			PositionSeconds: v.PositionSeconds,
			DepthDB:         v.DepthDB,
			ProminenceDB:    v.ProminenceDB,
			LeftLevelDB:     v.LeftLevelDB,
			RightLevelDB:    v.RightLevelDB,
			WidthSeconds:    v.WidthSeconds,
			Score:           v.Score,
		}
	}

	content := cuefile.Generate(wavPath, artist, title, trackNames, curve.GrooveInSec, cueValleys)
	cuePath, err := cuefile.Write(wavPath, content, hasMatch)
	if err != nil {
		return fmt.Errorf("write cue sheet: %w", err)
	}

	var infoExpected []cuefile.ExpectedTrack
	if hasMatch {
		infoExpected = expectedCue
	}
	info := cuefile.GenerateInfo(wavPath, curve.GrooveInSec, curve.GrooveOutSec, cueValleys, trackNames, infoExpected, releaseInfo)
	infoPath, err := cuefile.WriteInfo(wavPath, info, hasMatch)
	if err != nil {
		return fmt.Errorf("write info sidecar: %w", err)
	}

	logger.Info("wrote output", "cue", cuePath, "info", infoPath, "matched", hasMatch)
	return nil
}

func wavDuration(path string) (float64, error) {
	r, err := wavfile.Open(path)
	if err != nil {
		return 0, err
	}
	defer r.Close()
	return r.Header.DurationSeconds(), nil
}
