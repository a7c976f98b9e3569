// Package batch scans a directory of recorded WAV files and drives a
// process callback over whichever ones don't have a CUE sidecar yet, so
// identifyalbum can be pointed at a whole vinyl-ripping session instead of
// one file at a time. The incremental snapshot/diff shape is grounded on
// the teacher's video library watcher: a directory listing taken on
// every poll, diffed by name and mtime against the previous one, so only
// new or changed files get reprocessed.
package batch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hifiberry/autorec/internal/cuefile"
)

// audioExts are the file extensions Scan considers candidates.
var audioExts = map[string]bool{
	".wav":  true,
	".mp3":  true,
	".flac": true,
	".mp4":  true,
	".m4a":  true,
}

// ProcessFunc handles one audio file. Returning an error only logs; it
// never stops the scan or watch loop.
type ProcessFunc func(path string) error

// Scan lists dir once and calls process for every audio file that doesn't
// already have a CUE sidecar (per cuefile.HasCueFile), skipping files
// that do — the "already processed" marker for this directory mode is the
// presence of a .cue/.guess.cue file next to the recording.
func Scan(dir string, process ProcessFunc) error {
	names, err := candidateFiles(dir)
	if err != nil {
		return err
	}
	for _, name := range names {
		path := filepath.Join(dir, name)
		if cuefile.HasCueFile(path) {
			continue
		}
		if err := process(path); err != nil {
			slog.Error("batch: process failed", "path", path, "err", err)
		}
	}
	return nil
}

func candidateFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if audioExts[strings.ToLower(filepath.Ext(e.Name()))] {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Watch polls dir at interval, processing any audio file that is new or
// has a changed mtime since the last poll and still lacks a CUE sidecar.
// Cancel ctx to stop.
func Watch(ctx context.Context, dir string, interval time.Duration, process ProcessFunc) {
	prev := snapshot(dir)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			curr := snapshot(dir)
			for name, modTime := range curr {
				if oldMod, existed := prev[name]; existed && oldMod == modTime {
					continue
				}
				path := filepath.Join(dir, name)
				if cuefile.HasCueFile(path) {
					continue
				}
				slog.Info("batch: new recording detected", "path", path)
				if err := process(path); err != nil {
					slog.Error("batch: process failed", "path", path, "err", err)
				}
			}
			prev = curr
		}
	}
}

func snapshot(dir string) map[string]int64 {
	entries, err := os.ReadDir(dir)
	if err != nil {
		slog.Warn("batch: scan failed", "dir", dir, "err", err)
		return nil
	}
	snap := make(map[string]int64, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !audioExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		snap[e.Name()] = info.ModTime().Unix()
	}
	return snap
}
