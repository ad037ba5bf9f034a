// Package sporangium encodes a channel-based signal into a scalable chain of channel groups and decodes any layout
// of that chain back, with makeup gain, recon gain and playback dynamics control.
package sporangium

import (
	"errors"
	"io"

	"github.com/farcloser/sporangium/internal/types"
)

var (
	ErrInvalidOptions  = errors.New("invalid options")
	ErrMeasureFinished = errors.New("measurement already finished")
	ErrChannelMismatch = errors.New("channel count does not match the input layout")
	ErrMissingLayer    = errors.New("frame does not carry the layers the target needs")
)

// ReaderFactory provides fresh readers for multiple passes.
type ReaderFactory func() (io.Reader, error)

// Frame is one coded frame: its metadata header and one payload per chain layer, lowest first.
type Frame struct {
	Header   types.Mdhr
	Payloads [][]byte
}

// delayLine delays planes by a fixed number of samples across calls.
type delayLine struct {
	delay int
	tail  [][]float64
	out   [][]float64
}

func newDelayLine(channels, frameSize, delay int) *delayLine {
	d := &delayLine{delay: delay}
	if delay == 0 {
		return d
	}

	arena := types.NewArena(channels, frameSize)
	d.out = arena.Planes(0, channels)
	d.tail = types.NewArena(channels, delay).Planes(0, channels)

	return d
}

// push returns planes delayed by the line's delay. The result is valid until the next call.
func (d *delayLine) push(planes [][]float64) [][]float64 {
	if d.delay == 0 {
		return planes
	}

	for ch, plane := range planes {
		split := len(plane) - d.delay
		copy(d.out[ch], d.tail[ch])
		copy(d.out[ch][d.delay:], plane[:split])
		copy(d.tail[ch], plane[split:])
	}

	return d.out
}
