// Package pcm converts between raw interleaved little-endian PCM and planar float64 samples in [-1, 1).
package pcm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/farcloser/sporangium/internal/types"
)

var ErrBitDepth = errors.New("unsupported bit depth")

const (
	MaxValue16 = 32768.0      // 2^15, 16-bit signed PCM normalization divisor
	MaxValue24 = 8388608.0    // 2^23, 24-bit signed PCM normalization divisor
	MaxValue32 = 2147483648.0 // 2^31, 32-bit signed PCM normalization divisor
)

// Scale returns the normalization divisor for a bit depth.
func Scale(depth types.BitDepth) (float64, error) {
	switch depth {
	case types.Depth16:
		return MaxValue16, nil
	case types.Depth24:
		return MaxValue24, nil
	case types.Depth32:
		return MaxValue32, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrBitDepth, depth)
	}
}

// FrameBytes is the size of one interleaved sample frame.
func FrameBytes(depth types.BitDepth, channels int) int {
	return int(depth/8) * channels //nolint:gosec // audio format values are small constants
}

// Decode de-interleaves src into dst (one plane per channel) and returns the number of sample frames written.
// Trailing bytes that do not form a complete frame are ignored.
func Decode(dst [][]float64, src []byte, depth types.BitDepth) (int, error) {
	maxVal, err := Scale(depth)
	if err != nil {
		return 0, err
	}

	numChannels := len(dst)
	if numChannels == 0 {
		return 0, nil
	}

	bytesPerSample := int(depth / 8) //nolint:gosec // audio format values are small constants
	frameSize := bytesPerSample * numChannels
	frames := min(len(src)/frameSize, len(dst[0]))

	for f := range frames {
		base := f * frameSize

		for ch := range numChannels {
			offset := base + ch*bytesPerSample

			switch depth {
			case types.Depth16:
				dst[ch][f] = float64(int16(binary.LittleEndian.Uint16(src[offset:]))) / maxVal
			case types.Depth24:
				raw := int32(src[offset]) | int32(src[offset+1])<<8 | int32(src[offset+2])<<16
				if raw&0x800000 != 0 {
					raw |= ^0xFFFFFF
				}

				dst[ch][f] = float64(raw) / maxVal
			case types.Depth32:
				dst[ch][f] = float64(int32(binary.LittleEndian.Uint32(src[offset:]))) / maxVal
			}
		}
	}

	return frames, nil
}

// Encode interleaves the planes of src into dst, rounding to the nearest step and saturating at full scale.
// dst is grown as needed and returned.
func Encode(dst []byte, src [][]float64, depth types.BitDepth) ([]byte, error) {
	maxVal, err := Scale(depth)
	if err != nil {
		return dst, err
	}

	numChannels := len(src)
	if numChannels == 0 {
		return dst[:0], nil
	}

	bytesPerSample := int(depth / 8) //nolint:gosec // audio format values are small constants
	frames := len(src[0])

	need := frames * bytesPerSample * numChannels
	if cap(dst) < need {
		dst = make([]byte, need)
	}

	dst = dst[:need]
	offset := 0

	for f := range frames {
		for ch := range numChannels {
			v := Quantize(src[ch][f], maxVal)

			switch depth {
			case types.Depth16:
				binary.LittleEndian.PutUint16(dst[offset:], uint16(int16(v))) //nolint:gosec // saturated above
			case types.Depth24:
				dst[offset] = byte(v)
				dst[offset+1] = byte(v >> 8)
				dst[offset+2] = byte(v >> 16)
			case types.Depth32:
				binary.LittleEndian.PutUint32(dst[offset:], uint32(int32(v))) //nolint:gosec // saturated above
			}

			offset += bytesPerSample
		}
	}

	return dst, nil
}

// Quantize rounds a normalized sample to the integer grid of scale, saturating at full scale.
func Quantize(v, scale float64) int64 {
	return int64(max(min(math.Round(v*scale), scale-1), -scale))
}
