package format

import (
	"encoding/binary"
	"math"
)

// SampleFormat selects the PCM quantization Render uses.
type SampleFormat int

const (
	FormatFloat32 SampleFormat = iota
	FormatUint8
	FormatInt16
	FormatInt24
	FormatInt32
)

// RenderOptions controls Render's output packing.
type RenderOptions struct {
	Format SampleFormat
	// Pad32 left-pads each 24-bit sample out to a 4-byte slot (matching the
	// original engine's PAD32 flag) instead of packing 24-bit samples tightly.
	// Ignored for formats other than FormatInt24.
	Pad32 bool
}

// Render quantizes floating-point samples in [-1, 1] (as produced by
// synth.Engine.Render) into the byte encoding opts.Format calls for, appending to
// dst and returning the extended slice.
func Render(dst []byte, samples []float32, opts RenderOptions) []byte {
	switch opts.Format {
	case FormatUint8:
		for _, s := range samples {
			dst = append(dst, quantizeU8(s))
		}
	case FormatInt16:
		for _, s := range samples {
			var b [2]byte
			binary.LittleEndian.PutUint16(b[:], uint16(quantizeI16(s)))
			dst = append(dst, b[:]...)
		}
	case FormatInt24:
		for _, s := range samples {
			v := quantizeI24(s)
			if opts.Pad32 {
				var b [4]byte
				b[0] = byte(v)
				b[1] = byte(v >> 8)
				b[2] = byte(v >> 16)
				if v < 0 {
					b[3] = 0xFF
				}
				dst = append(dst, b[:]...)
			} else {
				dst = append(dst, byte(v), byte(v>>8), byte(v>>16))
			}
		}
	case FormatInt32:
		for _, s := range samples {
			var b [4]byte
			binary.LittleEndian.PutUint32(b[:], uint32(quantizeI32(s)))
			dst = append(dst, b[:]...)
		}
	default: // FormatFloat32
		for _, s := range samples {
			var b [4]byte
			binary.LittleEndian.PutUint32(b[:], math.Float32bits(s))
			dst = append(dst, b[:]...)
		}
	}
	return dst
}

func clampSample(s float32) float32 {
	if s > 1 {
		return 1
	}
	if s < -1 {
		return -1
	}
	return s
}

func quantizeU8(s float32) byte {
	s = clampSample(s)
	return byte(int16((s+1)*127.5 + 0.5))
}

func quantizeI16(s float32) int16 {
	v := s * 32768
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

func quantizeI24(s float32) int32 {
	s = clampSample(s)
	return int32(s * 8388607)
}

func quantizeI32(s float32) int32 {
	s = clampSample(s)
	return int32(float64(s) * 2147483647)
}
