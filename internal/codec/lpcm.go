package codec

import (
	"fmt"

	"github.com/farcloser/sporangium/internal/pcm"
	"github.com/farcloser/sporangium/internal/types"
)

// LPCM carries frames as interleaved little-endian integer PCM.
// Samples are quantized to the bit depth and saturate at full scale.
type LPCM struct {
	depth     types.BitDepth
	delay     int
	channels  int
	frameSize int

	// tail holds the last delay samples of every channel, waiting for the next frame.
	tail    [][]float64
	shifted [][]float64
	buf     []byte
	ready   bool
}

func NewLPCM(depth types.BitDepth, delay int) *LPCM {
	return &LPCM{depth: depth, delay: delay}
}

func (c *LPCM) Init(sampleRate, channels, frameSize int) error {
	if _, err := pcm.Scale(c.depth); err != nil {
		return err
	}

	if sampleRate <= 0 || channels <= 0 || frameSize <= 0 {
		return fmt.Errorf("%w: rate %d, channels %d, frame %d", ErrConfig, sampleRate, channels, frameSize)
	}

	if c.delay < 0 || c.delay >= frameSize {
		return fmt.Errorf("%w: delay %d outside [0, %d)", ErrConfig, c.delay, frameSize)
	}

	c.channels = channels
	c.frameSize = frameSize
	c.tail = make([][]float64, channels)
	c.shifted = make([][]float64, channels)

	for ch := range channels {
		c.tail[ch] = make([]float64, c.delay)
		c.shifted[ch] = make([]float64, frameSize)
	}

	c.buf = make([]byte, 0, pcm.FrameBytes(c.depth, channels)*frameSize)
	c.ready = true

	return nil
}

func (c *LPCM) PreSkip() int { return c.delay }

// EncodeFrame returns the coded frame. The returned slice is reused by the next call.
func (c *LPCM) EncodeFrame(planes [][]float64) ([]byte, error) {
	if err := c.check(planes); err != nil {
		return nil, err
	}

	src := planes

	if c.delay > 0 {
		split := c.frameSize - c.delay

		for ch, plane := range planes {
			copy(c.shifted[ch], c.tail[ch])
			copy(c.shifted[ch][c.delay:], plane[:split])
			copy(c.tail[ch], plane[split:])
		}

		src = c.shifted
	}

	var err error

	c.buf, err = pcm.Encode(c.buf, src, c.depth)

	return c.buf, err
}

// DecodeFrame fills planes from a coded frame.
func (c *LPCM) DecodeFrame(data []byte, planes [][]float64) error {
	if err := c.check(planes); err != nil {
		return err
	}

	if want := pcm.FrameBytes(c.depth, c.channels) * c.frameSize; len(data) != want {
		return fmt.Errorf("%w: %d bytes, want %d", ErrFrame, len(data), want)
	}

	_, err := pcm.Decode(planes, data, c.depth)

	return err
}

func (c *LPCM) Close() error {
	c.ready = false
	c.tail = nil
	c.shifted = nil
	c.buf = nil

	return nil
}

func (c *LPCM) check(planes [][]float64) error {
	if !c.ready {
		return ErrNotInitialized
	}

	if len(planes) != c.channels {
		return fmt.Errorf("%w: %d planes, want %d", ErrFrame, len(planes), c.channels)
	}

	for i, plane := range planes {
		if len(plane) != c.frameSize {
			return fmt.Errorf("%w: plane %d has %d samples, want %d", ErrFrame, i, len(plane), c.frameSize)
		}
	}

	return nil
}
