// Package wavfile implements a minimal canonical RIFF/WAVE PCM container:
// just enough reading and writing for AutoRec's capture and analysis
// pipelines. The header's data-chunk size is a placeholder until Close,
// which rewrites it with the final byte count.
package wavfile

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/hifiberry/autorec/internal/audiofmt"
)

// HeaderSize is the byte length of the canonical 44-byte PCM header this
// package writes and expects on read (RIFF/WAVE/fmt /data, no extra
// chunks).
const HeaderSize = 44

// Header describes a WAV file's format, independent of its data.
type Header struct {
	SampleRate uint32
	Channels   uint16
	Format     audiofmt.Format
	DataSize   uint32 // bytes in the data chunk
}

// BytesPerFrame returns the size of one interleaved sample frame.
func (h Header) BytesPerFrame() int {
	return h.Format.BytesPerSample() * int(h.Channels)
}

// Writer creates a WAV file, writes an initial (placeholder-size) header,
// and appends interleaved PCM frames. Close rewrites the header with the
// true data size.
type Writer struct {
	f       *os.File
	header  Header
	written uint32 // bytes written to the data chunk so far
}

// Create opens path for writing and emits a provisional header.
func Create(path string, sampleRate int, channels int, format audiofmt.Format) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("wavfile: create %s: %w", path, err)
	}

	w := &Writer{
		f: f,
		header: Header{
			SampleRate: uint32(sampleRate),
			Channels:   uint16(channels),
			Format:     format,
		},
	}
	if err := w.writeHeader(0); err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

func (w *Writer) writeHeader(dataSize uint32) error {
	if _, err := w.f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("wavfile: seek to header: %w", err)
	}

	bitsPerSample := uint16(w.header.Format.BitsPerSample())
	blockAlign := w.header.Channels * (bitsPerSample / 8)
	byteRate := w.header.SampleRate * uint32(blockAlign)

	buf := make([]byte, HeaderSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], 36+dataSize)
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16) // fmt chunk size
	binary.LittleEndian.PutUint16(buf[20:22], 1)  // PCM
	binary.LittleEndian.PutUint16(buf[22:24], w.header.Channels)
	binary.LittleEndian.PutUint32(buf[24:28], w.header.SampleRate)
	binary.LittleEndian.PutUint32(buf[28:32], byteRate)
	binary.LittleEndian.PutUint16(buf[32:34], blockAlign)
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], dataSize)

	if _, err := w.f.Write(buf); err != nil {
		return fmt.Errorf("wavfile: write header: %w", err)
	}
	return nil
}

// WriteFrames appends already-interleaved PCM bytes to the data chunk.
func (w *Writer) WriteFrames(interleaved []byte) error {
	if _, err := w.f.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("wavfile: seek to end: %w", err)
	}
	n, err := w.f.Write(interleaved)
	if err != nil {
		return fmt.Errorf("wavfile: write frames: %w", err)
	}
	w.written += uint32(n)
	return nil
}

// BytesWritten returns the number of PCM bytes written so far.
func (w *Writer) BytesWritten() uint32 {
	return w.written
}

// Close rewrites the header with the true data size and closes the file.
func (w *Writer) Close() error {
	if err := w.writeHeader(w.written); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}

// Abort closes and removes the file without finalizing its header. The
// recorder does not call it: for a below-minimum-length session it
// finalizes the file with Close and then deletes it.
func (w *Writer) Abort(path string) error {
	if err := w.f.Close(); err != nil {
		return err
	}
	return os.Remove(path)
}

// Reader streams a canonical WAV file's header and PCM data.
type Reader struct {
	f      *os.File
	Header Header
}

// Open reads and validates the header of path, leaving the file
// positioned at the start of the data chunk.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("wavfile: open %s: %w", path, err)
	}

	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(f, buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("wavfile: read header of %s: %w", path, err)
	}

	if string(buf[0:4]) != "RIFF" || string(buf[8:12]) != "WAVE" {
		f.Close()
		return nil, fmt.Errorf("wavfile: %s is not a RIFF/WAVE file", path)
	}
	if string(buf[12:16]) != "fmt " || string(buf[36:40]) != "data" {
		f.Close()
		return nil, fmt.Errorf("wavfile: %s has a malformed canonical header", path)
	}

	channels := binary.LittleEndian.Uint16(buf[22:24])
	sampleRate := binary.LittleEndian.Uint32(buf[24:28])
	bitsPerSample := binary.LittleEndian.Uint16(buf[34:36])
	dataSize := binary.LittleEndian.Uint32(buf[40:44])

	var format audiofmt.Format
	switch bitsPerSample {
	case 16:
		format = audiofmt.S16
	case 32:
		format = audiofmt.S32
	default:
		f.Close()
		return nil, fmt.Errorf("wavfile: %s has unsupported bits-per-sample %d", path, bitsPerSample)
	}

	return &Reader{
		f: f,
		Header: Header{
			SampleRate: sampleRate,
			Channels:   channels,
			Format:     format,
			DataSize:   dataSize,
		},
	}, nil
}

// ReadFrames reads up to n frames of interleaved PCM, returning fewer at
// EOF. Returns (nil, io.EOF) once no more data remains.
func (r *Reader) ReadFrames(n int) ([]byte, error) {
	frameSize := r.Header.BytesPerFrame()
	buf := make([]byte, n*frameSize)
	read, err := io.ReadFull(r.f, buf)
	if read == 0 {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, io.EOF
		}
		return nil, err
	}
	if err == io.ErrUnexpectedEOF {
		return buf[:read], nil
	}
	if err != nil {
		return nil, fmt.Errorf("wavfile: read frames: %w", err)
	}
	return buf, nil
}

// DurationSeconds returns the data chunk's duration given the header.
func (h Header) DurationSeconds() float64 {
	bpf := h.BytesPerFrame()
	if bpf == 0 || h.SampleRate == 0 {
		return 0
	}
	frames := float64(h.DataSize) / float64(bpf)
	return frames / float64(h.SampleRate)
}

// Close releases the underlying file handle.
func (r *Reader) Close() error {
	return r.f.Close()
}
