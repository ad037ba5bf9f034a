// Package source turns files into raw interleaved PCM, in playout order, for the multi-pass pipelines.
package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/farcloser/primordium/fault"

	"github.com/farcloser/sporangium"
	"github.com/farcloser/sporangium/internal/integration/ffmpeg"
	"github.com/farcloser/sporangium/internal/integration/ffprobe"
	"github.com/farcloser/sporangium/internal/layout"
	"github.com/farcloser/sporangium/internal/pcm"
	"github.com/farcloser/sporangium/internal/types"
	"github.com/farcloser/sporangium/internal/wavio"
)

const readBlock = 4096

var ErrInvalidFormat = errors.New("invalid pcm format")

// Input is a loaded source. Every call to Factory returns a reader positioned at the first sample.
type Input struct {
	Factory sporangium.ReaderFactory
	Format  types.PCMFormat
	// Probe is only set for inputs decoded by ffmpeg.
	Probe *ffprobe.Result
}

// Raw serves headerless interleaved PCM from path, or from stdin when path is "-".
// Files are re-opened for every pass; stdin is buffered.
func Raw(path string, format types.PCMFormat) (*Input, error) {
	if format.SampleRate <= 0 || format.Channels == 0 {
		return nil, fmt.Errorf("%w: %d Hz, %d channels", ErrInvalidFormat, format.SampleRate, format.Channels)
	}

	if _, err := pcm.Scale(format.BitDepth); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFormat, err)
	}

	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("%w: stdin: %w", fault.ErrReadFailure, err)
		}

		return &Input{Factory: memory(data), Format: format}, nil
	}

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("cannot access %s: %w", path, err)
	}

	factory := func() (io.Reader, error) {
		return os.Open(path) //nolint:gosec // CLI tool opens user-specified audio files
	}

	return &Input{Factory: factory, Format: format}, nil
}

// WAV decodes a WAV file into memory. Channels are taken in file order.
func WAV(path string) (*Input, error) {
	file, err := os.Open(path) //nolint:gosec // CLI tool opens user-specified audio files
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader, err := wavio.NewReader(file)
	if err != nil {
		return nil, err
	}

	format := reader.Format()
	channels := int(format.Channels) //nolint:gosec // channel counts are small
	planes := types.NewArena(channels, readBlock).Planes(0, channels)
	view := make([][]float64, channels)

	var (
		buf     bytes.Buffer
		scratch []byte
	)

	for {
		n, readErr := reader.Read(planes)
		if errors.Is(readErr, io.EOF) {
			break
		}

		if readErr != nil {
			return nil, fmt.Errorf("%w: %w", fault.ErrReadFailure, readErr)
		}

		for ch := range planes {
			view[ch] = planes[ch][:n]
		}

		if scratch, err = pcm.Encode(scratch, view, format.BitDepth); err != nil {
			return nil, err
		}

		buf.Write(scratch)
	}

	slog.Debug("source.WAV", "path", path, "channels", channels, "bytes", buf.Len())

	return &Input{Factory: memory(buf.Bytes()), Format: format}, nil
}

// Container decodes one audio stream of any file ffmpeg reads, remixed by ffmpeg to l when its layout differs,
// and reorders the channels to the playout order of l. Samples are 32-bit at the stream's own rate.
func Container(ctx context.Context, path string, streamIndex int, l layout.Layout) (*Input, error) {
	probe, err := ffprobe.Probe(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("probing file: %w", err)
	}

	stream, err := probe.AudioStream(streamIndex)
	if err != nil {
		return nil, err
	}

	rate, err := stream.Rate()
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path) //nolint:gosec // CLI tool opens user-specified audio files
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer file.Close()

	var buf bytes.Buffer

	format := types.PCMFormat{
		SampleRate: rate,
		BitDepth:   types.Depth32,
		Channels:   uint(l.Count()), //nolint:gosec // channel counts are small
	}

	if err = ffmpeg.ExtractStream(ctx, file, &buf, streamIndex, &format, l); err != nil {
		return nil, fmt.Errorf("extracting PCM: %w", err)
	}

	data := buf.Bytes()
	Reorder(data, format.BitDepth, ffmpeg.Order(l))

	slog.Debug("source.Container", "path", path, "stream", streamIndex, "codec", stream.CodecName,
		"layout", stream.ChannelLayout, "target", l.String())

	return &Input{Factory: memory(data), Format: format, Probe: probe}, nil
}

// Reorder permutes the channels of interleaved PCM in place: position p of every frame takes the sample at
// index order[p].
// Trailing bytes that do not form a complete frame are left untouched.
func Reorder(data []byte, depth types.BitDepth, order []int) {
	width := int(depth / 8) //nolint:gosec // audio format values are small constants
	frameBytes := width * len(order)

	if frameBytes == 0 || slices.IsSorted(order) {
		return
	}

	tmp := make([]byte, frameBytes)

	for base := 0; base+frameBytes <= len(data); base += frameBytes {
		frame := data[base : base+frameBytes]
		copy(tmp, frame)

		for p, src := range order {
			copy(frame[p*width:(p+1)*width], tmp[src*width:(src+1)*width])
		}
	}
}

func memory(data []byte) sporangium.ReaderFactory {
	return func() (io.Reader, error) {
		return bytes.NewReader(data), nil
	}
}
