package source

import (
	"fmt"
	"io"
	"os"

	gomp4 "github.com/abema/go-mp4"
	concentus "github.com/lostromb/concentus/go/opus"
	aacdecoder "github.com/skrashevich/go-aac/pkg/decoder"

	"github.com/hifiberry/autorec/internal/audiofmt"
)

// mp4FrameDecoder decodes the audio track of an MP4/M4A container
// (AAC or Opus) frame-by-frame to per-channel int32 PCM, so file: sources
// can point at a vinyl rip someone already muxed into a video container
// instead of a bare WAV/MP3/FLAC.
type mp4FrameDecoder struct {
	f    *os.File
	rate int
	ch   int

	samples []sampleLoc
	next    int

	aac   *aacdecoder.Decoder
	opus  *concentus.OpusDecoder
	codec audioCodec

	pcm16buf []int16
	pending  [][]int32
}

type audioCodec int

const (
	codecUnknown audioCodec = iota
	codecAAC
	codecOpus
)

type sampleLoc struct {
	offset uint64
	size   uint32
}

func newMP4FrameDecoder(path string) (*mp4FrameDecoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("source: open %s: %w", path, err)
	}

	info, err := gomp4.Probe(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("source: mp4 probe %s: %w", path, err)
	}

	codec := detectAudioCodec(f)
	track, err := findAudioTrack(info, codec)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("source: %s: %w", path, err)
	}

	d := &mp4FrameDecoder{
		f:       f,
		rate:    int(track.Timescale),
		samples: buildSampleLocations(track, 0),
		codec:   codec,
	}

	switch codec {
	case codecAAC:
		asc, err := getAudioSpecificConfig(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("source: %s: %w", path, err)
		}
		dec := aacdecoder.New()
		if err := dec.SetASC(asc); err != nil {
			f.Close()
			return nil, fmt.Errorf("source: set ASC for %s: %w", path, err)
		}
		if dec.Config.SampleRate > 0 {
			d.rate = dec.Config.SampleRate
		}
		d.ch = dec.Config.ChanConfig
		if d.ch < 1 {
			d.ch = 1
		}
		d.aac = dec
	case codecOpus:
		decoderRate := d.rate
		switch decoderRate {
		case 8000, 12000, 16000, 24000, 48000:
		default:
			decoderRate = 48000
		}
		dec, err := concentus.NewOpusDecoder(decoderRate, 2)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("source: create opus decoder for %s: %w", path, err)
		}
		d.rate = decoderRate
		d.ch = 2
		d.opus = dec
		d.pcm16buf = make([]int16, 5760*2)
	default:
		f.Close()
		return nil, fmt.Errorf("source: %s: unsupported audio codec", path)
	}

	return d, nil
}

func (d *mp4FrameDecoder) readFrames(n int) ([][]int32, error) {
	out := make([][]int32, d.ch)
	prependPending(out, d.pending)
	d.pending = nil

	for totalLen(out) < n {
		frame, err := d.decodeNextFrame()
		if err != nil {
			if totalLen(out) > 0 {
				return out, io.EOF
			}
			return nil, err
		}
		for ch := range out {
			out[ch] = append(out[ch], frame[safeIdx(ch, len(frame))]...)
		}
	}

	if totalLen(out) > n {
		rest := make([][]int32, d.ch)
		for ch := range out {
			rest[ch] = append([]int32(nil), out[ch][n:]...)
			out[ch] = out[ch][:n]
		}
		d.pending = rest
	}
	return out, nil
}

// decodeNextFrame decodes one container sample into per-channel int32 PCM,
// advancing the sample cursor. Returns io.EOF once every sample has been
// consumed.
func (d *mp4FrameDecoder) decodeNextFrame() ([][]int32, error) {
	if d.next >= len(d.samples) {
		return nil, io.EOF
	}
	loc := d.samples[d.next]
	d.next++

	if _, err := d.f.Seek(int64(loc.offset), io.SeekStart); err != nil {
		return nil, err
	}
	raw := make([]byte, loc.size)
	if _, err := io.ReadFull(d.f, raw); err != nil {
		return nil, err
	}

	switch d.codec {
	case codecAAC:
		pcm, err := d.aac.DecodeFrame(raw)
		if err != nil {
			return [][]int32{}, nil // skip undecodable frame, keep going
		}
		return deinterleaveFloat32(pcm, d.ch), nil
	case codecOpus:
		if loc.size <= 3 {
			return [][]int32{}, nil
		}
		nSamples, err := d.opus.Decode(raw, 0, len(raw), d.pcm16buf, 0, 5760, false)
		if err != nil {
			return [][]int32{}, nil
		}
		return deinterleaveInt16(d.pcm16buf[:nSamples*d.ch], d.ch), nil
	default:
		return nil, fmt.Errorf("source: unreachable codec state")
	}
}

func deinterleaveFloat32(pcm []float32, channels int) [][]int32 {
	out := make([][]int32, channels)
	frames := len(pcm) / channels
	for ch := range out {
		out[ch] = make([]int32, frames)
	}
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			out[ch][i] = int32(pcm[i*channels+ch] * 32767)
		}
	}
	return out
}

func deinterleaveInt16(pcm []int16, channels int) [][]int32 {
	out := make([][]int32, channels)
	frames := len(pcm) / channels
	for ch := range out {
		out[ch] = make([]int32, frames)
	}
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			out[ch][i] = int32(pcm[i*channels+ch])
		}
	}
	return out
}

func (d *mp4FrameDecoder) sampleRate() int         { return d.rate }
func (d *mp4FrameDecoder) channels() int           { return d.ch }
func (d *mp4FrameDecoder) format() audiofmt.Format { return audiofmt.S16 }
func (d *mp4FrameDecoder) close() error            { return d.f.Close() }

// --- MP4 box-tree helpers, grounded on the same probe/esds walk AutoRec's
// teacher used for video BPM detection ---

func detectAudioCodec(rs io.ReadSeeker) audioCodec {
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return codecUnknown
	}
	codec := codecUnknown
	_, _ = gomp4.ReadBoxStructure(rs, func(h *gomp4.ReadHandle) (interface{}, error) {
		if codec != codecUnknown {
			return nil, nil
		}
		switch h.BoxInfo.Type {
		case gomp4.BoxTypeMp4a():
			codec = codecAAC
			return nil, nil
		case gomp4.BoxTypeOpus():
			codec = codecOpus
			return nil, nil
		case gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak(), gomp4.BoxTypeMdia(),
			gomp4.BoxTypeMinf(), gomp4.BoxTypeStbl(), gomp4.BoxTypeStsd():
			_, _ = h.Expand()
		}
		return nil, nil
	})
	return codec
}

func findAudioTrack(info *gomp4.ProbeInfo, codec audioCodec) (*gomp4.Track, error) {
	if codec == codecAAC {
		for _, t := range info.Tracks {
			if t.Codec == gomp4.CodecMP4A {
				return t, nil
			}
		}
	}
	for _, t := range info.Tracks {
		if t.Codec == gomp4.CodecAVC1 {
			continue
		}
		if len(t.Samples) == 0 || len(t.Chunks) == 0 {
			continue
		}
		if isAudioTimescale(t.Timescale) {
			return t, nil
		}
	}
	return nil, fmt.Errorf("no audio track found (%d tracks)", len(info.Tracks))
}

func isAudioTimescale(ts uint32) bool {
	switch ts {
	case 8000, 11025, 16000, 22050, 32000, 44100, 48000, 88200, 96000:
		return true
	}
	return false
}

func getAudioSpecificConfig(rs io.ReadSeeker) ([]byte, error) {
	paths := []gomp4.BoxPath{
		{gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak(), gomp4.BoxTypeMdia(), gomp4.BoxTypeMinf(), gomp4.BoxTypeStbl(), gomp4.BoxTypeStsd(), gomp4.BoxTypeMp4a(), gomp4.BoxTypeEsds()},
		{gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak(), gomp4.BoxTypeMdia(), gomp4.BoxTypeMinf(), gomp4.BoxTypeStbl(), gomp4.BoxTypeStsd(), gomp4.BoxTypeMp4a(), gomp4.BoxTypeWave(), gomp4.BoxTypeEsds()},
		{gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak(), gomp4.BoxTypeMdia(), gomp4.BoxTypeMinf(), gomp4.BoxTypeStbl(), gomp4.BoxTypeStsd(), gomp4.BoxTypeEnca(), gomp4.BoxTypeEsds()},
	}
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	bips, err := gomp4.ExtractBoxesWithPayload(rs, nil, paths)
	if err != nil {
		return nil, fmt.Errorf("extract esds: %w", err)
	}
	for _, bip := range bips {
		if bip.Info.Type != gomp4.BoxTypeEsds() {
			continue
		}
		esds, ok := bip.Payload.(*gomp4.Esds)
		if !ok {
			continue
		}
		for _, desc := range esds.Descriptors {
			if desc.Tag == gomp4.DecSpecificInfoTag && len(desc.Data) >= 2 {
				return desc.Data, nil
			}
		}
	}
	return nil, fmt.Errorf("AudioSpecificConfig not found in esds")
}

func buildSampleLocations(track *gomp4.Track, limit int) []sampleLoc {
	capacity := len(track.Samples)
	if limit > 0 && limit < capacity {
		capacity = limit
	}
	result := make([]sampleLoc, 0, capacity)
	sampleIdx := 0
	for _, chunk := range track.Chunks {
		off := chunk.DataOffset
		for j := uint32(0); j < chunk.SamplesPerChunk; j++ {
			if sampleIdx >= len(track.Samples) {
				return result
			}
			if limit > 0 && len(result) >= limit {
				return result
			}
			sz := track.Samples[sampleIdx].Size
			result = append(result, sampleLoc{offset: off, size: sz})
			off += uint64(sz)
			sampleIdx++
		}
	}
	return result
}
