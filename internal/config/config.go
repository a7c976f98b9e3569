// Package config loads AutoRec's saved defaults and merges them with
// command-line overrides. Precedence: built-in defaults < saved file <
// explicit flag values, per the external-interfaces contract.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"
)

// Defaults mirrors every CLI flag AutoRec recognizes. All fields are
// optional in the TOML file — zero values mean "not set, fall through to
// the built-in default".
type Defaults struct {
	Source             string  `toml:"source"`
	SampleRate         int     `toml:"sample_rate"`
	Channels           int     `toml:"channels"`
	SampleFormat       string  `toml:"sample_format"`
	UpdateIntervalMs   int     `toml:"update_interval_ms"`
	DBRange            float64 `toml:"db_range"`
	MaxDB              float64 `toml:"max_db"`
	OffThresholdDB     float64 `toml:"off_threshold_db"`
	SilenceDurationSec float64 `toml:"silence_duration_s"`
	MinLengthSec       float64 `toml:"min_length_s"`
	DisableVUMeter     bool    `toml:"disable_vu_meter"`
	DisableKeyboard    bool    `toml:"disable_keyboard"`

	// Domain-stack addition: backend order is also saveable so a deployed
	// box doesn't need flags every run.
	BackendOrder []string `toml:"backend_order"`
}

// BuiltIn returns AutoRec's hardcoded defaults, matching the values named
// throughout spec.md (update_interval=200ms, db_range=90dB, silence
// window tied to update interval, etc).
func BuiltIn() Defaults {
	return Defaults{
		Source:             "pipewire:default",
		SampleRate:         44100,
		Channels:           2,
		SampleFormat:       "s16",
		UpdateIntervalMs:   200,
		DBRange:            90,
		MaxDB:              0,
		OffThresholdDB:     -40,
		SilenceDurationSec: 2,
		MinLengthSec:       10,
		DisableVUMeter:     false,
		DisableKeyboard:    false,
		BackendOrder:       []string{"discogs", "musicbrainz-vinyl", "musicbrainz-all"},
	}
}

// DefaultPath returns $HOME/.state/autorec/defaults.toml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve home directory: %w", err)
	}
	return filepath.Join(home, ".state", "autorec", "defaults.toml"), nil
}

// Load reads the saved defaults file, if present, and overlays it onto
// BuiltIn(). A missing file is not an error — it just means every field
// stays at its built-in value. Pass "" to use DefaultPath().
func Load(path string) (Defaults, error) {
	d := BuiltIn()
	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return d, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return d, nil
		}
		return d, fmt.Errorf("config: read %s: %w", path, err)
	}

	var saved Defaults
	if _, err := toml.Decode(string(data), &saved); err != nil {
		return d, fmt.Errorf("config: parse %s: %w", path, err)
	}
	overlay(&d, saved)
	return d, nil
}

// Save writes d to path (creating parent directories as needed). Pass ""
// to use DefaultPath().
func Save(path string, d Defaults) error {
	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create directory for %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("config: create %s: %w", path, err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(d); err != nil {
		return fmt.Errorf("config: encode %s: %w", path, err)
	}
	return nil
}

// overlay copies every non-zero field of saved onto d.
func overlay(d *Defaults, saved Defaults) {
	if saved.Source != "" {
		d.Source = saved.Source
	}
	if saved.SampleRate != 0 {
		d.SampleRate = saved.SampleRate
	}
	if saved.Channels != 0 {
		d.Channels = saved.Channels
	}
	if saved.SampleFormat != "" {
		d.SampleFormat = saved.SampleFormat
	}
	if saved.UpdateIntervalMs != 0 {
		d.UpdateIntervalMs = saved.UpdateIntervalMs
	}
	if saved.DBRange != 0 {
		d.DBRange = saved.DBRange
	}
	if saved.MaxDB != 0 {
		d.MaxDB = saved.MaxDB
	}
	if saved.OffThresholdDB != 0 {
		d.OffThresholdDB = saved.OffThresholdDB
	}
	if saved.SilenceDurationSec != 0 {
		d.SilenceDurationSec = saved.SilenceDurationSec
	}
	if saved.MinLengthSec != 0 {
		d.MinLengthSec = saved.MinLengthSec
	}
	if len(saved.BackendOrder) > 0 {
		d.BackendOrder = saved.BackendOrder
	}
	d.DisableVUMeter = d.DisableVUMeter || saved.DisableVUMeter
	d.DisableKeyboard = d.DisableKeyboard || saved.DisableKeyboard
}

// Store is a thread-safe, in-memory view of the active configuration for
// code that reads config values from multiple goroutines. Mirrors the teacher's RWMutex-guarded
// cache shape in spirit, backed by a struct instead of a SQL row set.
type Store struct {
	mu   sync.RWMutex
	vals Defaults
}

// NewStore wraps d for concurrent access.
func NewStore(d Defaults) *Store {
	return &Store{vals: d}
}

// Get returns a copy of the current defaults.
func (s *Store) Get() Defaults {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vals
}

// Set replaces the stored defaults.
func (s *Store) Set(d Defaults) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vals = d
}
