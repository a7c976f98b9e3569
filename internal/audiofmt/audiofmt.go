// Package audiofmt defines the sample formats AutoRec understands and the
// widening rules that let every downstream component work in 32-bit signed
// integers regardless of wire format.
package audiofmt

import "fmt"

// Format identifies an on-wire PCM sample encoding.
type Format int

const (
	// S16 is little-endian 16-bit PCM, full scale 2^15.
	S16 Format = iota
	// S32 is little-endian 32-bit PCM, full scale 2^31.
	S32
)

// String implements fmt.Stringer.
func (f Format) String() string {
	switch f {
	case S16:
		return "s16"
	case S32:
		return "s32"
	default:
		return "unknown"
	}
}

// ParseFormat maps a config/flag string ("s16", "s32") to a Format.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "s16", "S16":
		return S16, nil
	case "s32", "S32":
		return S32, nil
	default:
		return 0, fmt.Errorf("audiofmt: unknown sample format %q", s)
	}
}

// BytesPerSample returns the on-wire sample width in bytes.
func (f Format) BytesPerSample() int {
	switch f {
	case S16:
		return 2
	case S32:
		return 4
	default:
		return 0
	}
}

// BitsPerSample returns the on-wire sample width in bits, as recorded in
// a WAV fmt chunk.
func (f Format) BitsPerSample() int {
	return f.BytesPerSample() * 8
}

// FullScale returns the reference amplitude used for dB conversions: 2^15
// for S16, 2^31 for S32.
func (f Format) FullScale() float64 {
	switch f {
	case S16:
		return 32768.0
	case S32:
		return 2147483648.0
	default:
		return 1.0
	}
}

// Widen decodes a little-endian byte buffer containing interleaved samples
// of the given format into 32-bit signed integers, one slice per channel.
// len(buf) must be a multiple of channels*BytesPerSample().
func Widen(buf []byte, format Format, channels int) ([][]int32, error) {
	bps := format.BytesPerSample()
	if bps == 0 {
		return nil, fmt.Errorf("audiofmt: invalid format %v", format)
	}
	frameSize := bps * channels
	if frameSize == 0 || len(buf)%frameSize != 0 {
		return nil, fmt.Errorf("audiofmt: buffer length %d not a multiple of frame size %d", len(buf), frameSize)
	}

	frames := len(buf) / frameSize
	out := make([][]int32, channels)
	for ch := range out {
		out[ch] = make([]int32, frames)
	}

	for i := 0; i < frames; i++ {
		base := i * frameSize
		for ch := 0; ch < channels; ch++ {
			off := base + ch*bps
			switch format {
			case S16:
				v := int16(uint16(buf[off]) | uint16(buf[off+1])<<8)
				out[ch][i] = int32(v)
			case S32:
				v := int32(uint32(buf[off]) | uint32(buf[off+1])<<8 | uint32(buf[off+2])<<16 | uint32(buf[off+3])<<24)
				out[ch][i] = v
			}
		}
	}
	return out, nil
}

// Narrow interleaves per-channel int32 samples back into a little-endian
// byte buffer of the given format, the inverse of Widen. Values outside
// the format's range are clamped.
func Narrow(channels [][]int32, format Format) ([]byte, error) {
	if len(channels) == 0 {
		return nil, nil
	}
	bps := format.BytesPerSample()
	if bps == 0 {
		return nil, fmt.Errorf("audiofmt: invalid format %v", format)
	}
	frames := len(channels[0])
	nCh := len(channels)
	out := make([]byte, frames*nCh*bps)

	for i := 0; i < frames; i++ {
		for ch := 0; ch < nCh; ch++ {
			off := (i*nCh + ch) * bps
			v := channels[ch][i]
			switch format {
			case S16:
				v = clamp32(v, -32768, 32767)
				out[off] = byte(v)
				out[off+1] = byte(v >> 8)
			case S32:
				out[off] = byte(v)
				out[off+1] = byte(v >> 8)
				out[off+2] = byte(v >> 16)
				out[off+3] = byte(v >> 24)
			}
		}
	}
	return out, nil
}

func clamp32(v, lo, hi int32) int32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
