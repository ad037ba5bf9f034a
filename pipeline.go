package sporangium

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/farcloser/primordium/fault"

	"github.com/farcloser/sporangium/internal/drc"
	"github.com/farcloser/sporangium/internal/layout"
	"github.com/farcloser/sporangium/internal/pcm"
	"github.com/farcloser/sporangium/internal/residual"
	"github.com/farcloser/sporangium/internal/types"
)

// Result is what the pipelines report for a chain.
type Result struct {
	Chain     string
	Layers    []types.LayerReport
	RoundTrip []types.RoundTrip
	// Clipping is set by the pipelines that encode.
	Clipping []types.Clipping
}

// Measure runs the measurement pass over raw PCM in the playout order of the chain's top layout.
func Measure(factory ReaderFactory, format types.PCMFormat, opts Options) (*Result, error) {
	enc, err := measured(factory, format, opts)
	if err != nil {
		return nil, err
	}
	defer enc.Close()

	return &Result{Chain: enc.Chain().String(), Layers: enc.FinishMeasure()}, nil
}

// RoundTrip measures, encodes and decodes every layout of the chain, and compares each decoded layout with the
// direct downmix of the input. Playback dynamics are not applied.
func RoundTrip(factory ReaderFactory, format types.PCMFormat, opts Options) (*Result, error) {
	enc, err := measured(factory, format, opts)
	if err != nil {
		return nil, err
	}
	defer enc.Close()

	result := &Result{Chain: enc.Chain().String(), Layers: enc.FinishMeasure()}

	decOpts := enc.cfg.opts
	decOpts.DRC = drc.ProfileOff.String()

	layouts := enc.Chain().Layouts()
	decoders := make([]*Decoder, len(layouts))
	refs := make([]*delayLine, len(layouts))
	analyzers := make([][]*residual.Analyzer, len(layouts))

	for i, l := range layouts {
		if decoders[i], err = NewDecoder(decOpts, l.String()); err != nil {
			return nil, err
		}
		defer decoders[i].Close()

		refs[i] = newDelayLine(l.Count(), decOpts.FrameSize, decOpts.PreSkip)
		analyzers[i] = make([]*residual.Analyzer, l.Count())

		for ch := range analyzers[i] {
			analyzers[i][ch] = residual.New(decOpts.SampleRate, residual.DefaultOptions())
		}
	}

	r, err := factory()
	if err != nil {
		return nil, err
	}

	err = readFrames(r, format, decOpts.FrameSize, func(planes [][]float64, _ int) error {
		frame, encErr := enc.EncodeFrame(planes, decOpts.Demixing)
		if encErr != nil {
			return encErr
		}

		for i, l := range layouts {
			ref := refs[i].push(enc.Mixed(l))

			out, decErr := decoders[i].DecodeFrame(frame)
			if decErr != nil {
				return decErr
			}

			for ch := range out {
				analyzers[i][ch].Process(ref[ch], out[ch])
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	for i, l := range layouts {
		rt := types.RoundTrip{Layout: l, MinSNRDb: math.Inf(1), Frames: enc.Frames()}

		for ch, id := range l.Channels() {
			a := analyzers[i][ch]
			rt.Channels = append(rt.Channels, types.RoundTripChannel{
				Channel:        id,
				SNRDb:          a.SNR(),
				ResidualPeakHz: a.PeakHz(),
			})
			rt.MinSNRDb = min(rt.MinSNRDb, a.SNR())
		}

		result.RoundTrip = append(result.RoundTrip, rt)
	}

	result.Clipping = enc.Clipping()

	return result, nil
}

// Transcode measures and encodes the input, then decodes target (empty for the top layout) with the configured
// playback profile. sink receives the decoded planes, aligned with the input and trimmed to its length.
func Transcode(
	factory ReaderFactory,
	format types.PCMFormat,
	opts Options,
	target string,
	sink func(planes [][]float64) error,
) (*Result, error) {
	enc, err := measured(factory, format, opts)
	if err != nil {
		return nil, err
	}
	defer enc.Close()

	result := &Result{Chain: enc.Chain().String(), Layers: enc.FinishMeasure()}

	dec, err := NewDecoder(enc.cfg.opts, target)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	slog.Debug("sporangium.Transcode", "target", dec.Target().String(), "latency", dec.Latency())

	var total, emitted, produced int

	emit := func(out [][]float64) error {
		frameLen := len(out[0])
		skip := dec.Latency()
		start := max(skip-produced, 0)
		end := min(frameLen, skip+total-produced)
		produced += frameLen

		if start >= end {
			return nil
		}

		view := make([][]float64, len(out))
		for ch := range out {
			view[ch] = out[ch][start:end]
		}

		emitted += end - start

		return sink(view)
	}

	step := func(planes [][]float64) error {
		frame, encErr := enc.EncodeFrame(planes, enc.cfg.opts.Demixing)
		if encErr != nil {
			return encErr
		}

		out, decErr := dec.DecodeFrame(frame)
		if decErr != nil {
			return decErr
		}

		return emit(out)
	}

	r, err := factory()
	if err != nil {
		return nil, err
	}

	err = readFrames(r, format, enc.cfg.opts.FrameSize, func(planes [][]float64, n int) error {
		total += n

		return step(planes)
	})
	if err != nil {
		return nil, err
	}

	// Drain what the codec and the playback chain still hold.
	silence := types.NewArena(enc.Chain().Top().Count(), enc.cfg.opts.FrameSize).Planes(0, enc.Chain().Top().Count())
	for emitted < total {
		if err = step(silence); err != nil {
			return nil, err
		}
	}

	result.Clipping = enc.Clipping()

	return result, nil
}

// measured creates an encoder and runs its measurement pass over one reader of factory.
func measured(factory ReaderFactory, format types.PCMFormat, opts Options) (*Encoder, error) {
	enc, err := NewEncoder(opts)
	if err != nil {
		return nil, err
	}

	if err = checkFormat(format, enc.Chain().Top()); err != nil {
		enc.Close()

		return nil, err
	}

	r, err := factory()
	if err != nil {
		enc.Close()

		return nil, err
	}

	err = readFrames(r, format, enc.cfg.opts.FrameSize, func(planes [][]float64, _ int) error {
		return enc.Measure(planes, enc.cfg.opts.Demixing)
	})
	if err != nil {
		enc.Close()

		return nil, err
	}

	return enc, nil
}

func checkFormat(format types.PCMFormat, top layout.Layout) error {
	if int(format.Channels) != top.Count() { //nolint:gosec // audio format values are small constants
		return fmt.Errorf("%w: %d channels for %s", ErrChannelMismatch, format.Channels, top)
	}

	_, err := pcm.Scale(format.BitDepth)

	return err
}

// readFrames reads raw interleaved PCM from r and calls fn with one full frame of planes at a time.
// The last frame is zero-padded; n is the number of samples per channel that came from r.
func readFrames(r io.Reader, format types.PCMFormat, frameSize int, fn func(planes [][]float64, n int) error) error {
	channels := int(format.Channels) //nolint:gosec // audio format values are small constants
	bytesPerFrame := pcm.FrameBytes(format.BitDepth, channels)
	planes := types.NewArena(channels, frameSize).Planes(0, channels)
	buf := make([]byte, bytesPerFrame*frameSize)

	for {
		n, err := io.ReadFull(r, buf)

		frames := n / bytesPerFrame
		if frames > 0 {
			if _, decodeErr := pcm.Decode(planes, buf[:frames*bytesPerFrame], format.BitDepth); decodeErr != nil {
				return decodeErr
			}

			for ch := range planes {
				clear(planes[ch][frames:])
			}

			if fnErr := fn(planes, frames); fnErr != nil {
				return fnErr
			}
		}

		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil
		}

		if err != nil {
			return fmt.Errorf("%w: %w", fault.ErrReadFailure, err)
		}
	}
}
