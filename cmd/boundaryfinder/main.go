// Command boundaryfinder analyzes a recorded WAV file's loudness curve
// offline to find the groove-in/groove-out bounds and the valleys between
// songs, writing the result as a CUE sheet plus a detection-report
// sidecar.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/hifiberry/autorec/internal/applog"
	"github.com/hifiberry/autorec/internal/boundary"
	"github.com/hifiberry/autorec/internal/cuefile"
)

func main() {
	wavPath := flag.String("wav", "", "path to the recorded WAV file (required)")
	artist := flag.String("artist", "Unknown Artist", "artist name for the CUE sheet")
	title := flag.String("title", "Unknown Album", "album title for the CUE sheet")
	minSongDuration := flag.Float64("min-song-duration-s", 30, "minimum seconds between two accepted boundaries")
	minProminenceDB := flag.Float64("min-prominence-db", 3, "minimum valley depth below the surrounding level to accept")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	logger := applog.Init(applog.Options{Debug: *debug})

	if *wavPath == "" {
		fmt.Fprintln(os.Stderr, "boundaryfinder: -wav is required")
		os.Exit(2)
	}

	opts := boundary.DefaultOptions()
	opts.MinSongDurationSec = *minSongDuration
	opts.MinProminenceDB = *minProminenceDB

	curve, err := boundary.AnalyzeFile(*wavPath, opts)
	if err != nil {
		logger.Error("analysis failed", "path", *wavPath, "err", err)
		os.Exit(1)
	}

	valleys := boundary.FindBoundaries(curve, opts)
	logger.Info("boundary analysis complete",
		"groove_in", boundary.FormatTimestamp(curve.GrooveInSec),
		"groove_out", boundary.FormatTimestamp(curve.GrooveOutSec),
		"boundaries_found", len(valleys),
	)

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

	content := cuefile.Generate(*wavPath, *artist, *title, nil, curve.GrooveInSec, cueValleys)
	cuePath, err := cuefile.Write(*wavPath, content, false)
	if err != nil {
		logger.Error("failed to write cue sheet", "err", err)
		os.Exit(1)
	}

	info := cuefile.GenerateInfo(*wavPath, curve.GrooveInSec, curve.GrooveOutSec, cueValleys, nil, nil, "")
	infoPath, err := cuefile.WriteInfo(*wavPath, info, false)
	if err != nil {
		logger.Error("failed to write info sidecar", "err", err)
		os.Exit(1)
	}

	logger.Info("wrote output", "cue", cuePath, "info", infoPath)
}
