// Package wavio reads and writes planar float64 frames as integer PCM WAV files.
package wavio

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/farcloser/sporangium/internal/pcm"
	"github.com/farcloser/sporangium/internal/types"
)

var (
	ErrNotWav          = errors.New("not a wav file")
	ErrUnsupportedWav  = errors.New("unsupported wav encoding")
	ErrChannelMismatch = errors.New("plane count does not match wav channels")
)

const (
	formatPCM        = 1
	formatExtensible = 0xFFFE
)

// Reader decodes a WAV stream into planes.
type Reader struct {
	dec    *wav.Decoder
	buf    *audio.IntBuffer
	format types.PCMFormat
	scale  float64
}

func NewReader(rs io.ReadSeeker) (*Reader, error) {
	dec := wav.NewDecoder(rs)
	if !dec.IsValidFile() {
		if err := dec.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNotWav, err)
		}

		return nil, ErrNotWav
	}

	if dec.WavAudioFormat != formatPCM && dec.WavAudioFormat != formatExtensible {
		return nil, fmt.Errorf("%w: format tag %#x", ErrUnsupportedWav, dec.WavAudioFormat)
	}

	format := types.PCMFormat{
		SampleRate: int(dec.SampleRate),
		BitDepth:   types.BitDepth(dec.BitDepth),
		Channels:   uint(dec.NumChans),
	}

	scale, err := pcm.Scale(format.BitDepth)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedWav, err)
	}

	return &Reader{
		dec: dec,
		buf: &audio.IntBuffer{
			Format: &audio.Format{NumChannels: int(dec.NumChans), SampleRate: int(dec.SampleRate)},
		},
		format: format,
		scale:  scale,
	}, nil
}

func (r *Reader) Format() types.PCMFormat { return r.format }

// Read fills planes with the next sample frames and returns how many were read.
// It returns io.EOF once the data chunk is exhausted.
func (r *Reader) Read(planes [][]float64) (int, error) {
	channels := int(r.format.Channels) //nolint:gosec // channel counts are small
	if len(planes) != channels {
		return 0, fmt.Errorf("%w: %d planes for %d channels", ErrChannelMismatch, len(planes), channels)
	}

	want := len(planes[0]) * channels
	if cap(r.buf.Data) < want {
		r.buf.Data = make([]int, want)
	}

	r.buf.Data = r.buf.Data[:want]

	n, err := r.dec.PCMBuffer(r.buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, err
	}

	frames := n / channels
	if frames == 0 {
		return 0, io.EOF
	}

	for f := range frames {
		for ch := range channels {
			planes[ch][f] = float64(r.buf.Data[f*channels+ch]) / r.scale
		}
	}

	return frames, nil
}

// Writer encodes planes into a WAV stream. Close must be called to finalize the headers.
type Writer struct {
	buf      *audio.IntBuffer
	wav      *wav.Encoder
	channels int
	scale    float64
}

func NewWriter(ws io.WriteSeeker, format types.PCMFormat) (*Writer, error) {
	scale, err := pcm.Scale(format.BitDepth)
	if err != nil {
		return nil, err
	}

	channels := int(format.Channels) //nolint:gosec // channel counts are small

	return &Writer{
		buf: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: channels, SampleRate: format.SampleRate},
			SourceBitDepth: int(format.BitDepth),
		},
		wav:      wav.NewEncoder(ws, format.SampleRate, int(format.BitDepth), channels, formatPCM),
		channels: channels,
		scale:    scale,
	}, nil
}

// Write appends one block of planes, rounding and saturating to the bit depth.
func (w *Writer) Write(planes [][]float64) error {
	if len(planes) != w.channels {
		return fmt.Errorf("%w: %d planes for %d channels", ErrChannelMismatch, len(planes), w.channels)
	}

	frames := len(planes[0])
	if cap(w.buf.Data) < frames*w.channels {
		w.buf.Data = make([]int, frames*w.channels)
	}

	w.buf.Data = w.buf.Data[:frames*w.channels]

	for f := range frames {
		for ch := range w.channels {
			w.buf.Data[f*w.channels+ch] = int(pcm.Quantize(planes[ch][f], w.scale))
		}
	}

	return w.wav.Write(w.buf)
}

func (w *Writer) Close() error {
	return w.wav.Close()
}
