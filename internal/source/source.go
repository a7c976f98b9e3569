// Package source implements AutoRec's polymorphic audio source: a single
// capability set {Start, Stop, ReadChunk, SampleRate, Channels,
// SampleFormat, IsActive} realized over PipeWire and ALSA live capture and
// over decoded audio files, selected by address string at startup.
package source

import (
	"fmt"
	"strings"

	"github.com/hifiberry/autorec/internal/audiofmt"
)

// Source is the capability set every backend implements. Callers treat all
// three variants identically once constructed.
type Source interface {
	// Start transitions the source from inactive to active. Calling Start
	// on an already-active source is an error.
	Start() error
	// Stop halts capture. Idempotent: calling Stop more than once, or
	// before Start, is not an error.
	Stop() error
	// ReadChunk blocks for up to ~500ms waiting for frames samples, then
	// returns what is available (possibly fewer frames, possibly zero).
	// Returns (nil, false) once the stream is stopped or has reached EOF.
	ReadChunk(frames int) (channels [][]int32, ok bool)
	SampleRate() int
	Channels() int
	SampleFormat() audiofmt.Format
	IsActive() bool
}

// Kind identifies which backend an address resolved to.
type Kind int

const (
	KindPipeWire Kind = iota
	KindALSA
	KindFile
)

func (k Kind) String() string {
	switch k {
	case KindPipeWire:
		return "pipewire"
	case KindALSA:
		return "alsa"
	case KindFile:
		return "file"
	default:
		return "unknown"
	}
}

// ParseAddress classifies a source address string per the address grammar:
// <scheme>:<device> with scheme in {pipewire, pw, pwpipe, alsa, file}; bare
// hw:X,Y / plughw:X,Y / default resolve to ALSA; a path ending in
// .wav/.mp3/.flac/.mp4/.m4a (case-insensitive) resolves to file; anything
// else defaults to PipeWire. Returns the resolved kind and the device
// string with any recognized scheme prefix stripped.
func ParseAddress(addr string) (Kind, string) {
	lower := strings.ToLower(addr)

	for _, scheme := range []string{"pipewire:", "pw:", "pwpipe:"} {
		if strings.HasPrefix(lower, scheme) {
			return KindPipeWire, addr[len(scheme):]
		}
	}
	if strings.HasPrefix(lower, "alsa:") {
		return KindALSA, addr[len("alsa:"):]
	}
	if strings.HasPrefix(lower, "file:") {
		return KindFile, addr[len("file:"):]
	}

	if lower == "default" || strings.HasPrefix(lower, "hw:") || strings.HasPrefix(lower, "plughw:") {
		return KindALSA, addr
	}

	for _, ext := range []string{".wav", ".mp3", ".flac", ".mp4", ".m4a"} {
		if strings.HasSuffix(lower, ext) {
			return KindFile, addr
		}
	}

	return KindPipeWire, addr
}

// Options configures Open regardless of which backend is selected.
type Options struct {
	SampleRate   int
	Channels     int
	SampleFormat audiofmt.Format
}

// Open resolves addr and constructs the matching Source, but does not
// Start it.
func Open(addr string, opts Options) (Source, error) {
	kind, device := ParseAddress(addr)
	switch kind {
	case KindPipeWire:
		return newPipeWireSource(device, opts), nil
	case KindALSA:
		return newALSASource(device, opts), nil
	case KindFile:
		return newFileSource(device, opts)
	default:
		return nil, fmt.Errorf("source: unhandled kind for address %q", addr)
	}
}
