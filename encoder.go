package sporangium

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"

	"github.com/farcloser/sporangium/internal/clipping"
	"github.com/farcloser/sporangium/internal/codec"
	"github.com/farcloser/sporangium/internal/downmix"
	"github.com/farcloser/sporangium/internal/fixed"
	"github.com/farcloser/sporangium/internal/gain"
	"github.com/farcloser/sporangium/internal/layout"
	"github.com/farcloser/sporangium/internal/meter"
	"github.com/farcloser/sporangium/internal/meter/truepeak"
	"github.com/farcloser/sporangium/internal/recongain"
	"github.com/farcloser/sporangium/internal/types"
	"github.com/farcloser/sporangium/internal/upmix"
)

// Encoder turns frames of the chain's top layout into coded frames.
// An optional measurement pass over the whole signal comes first: it sets the loudness metadata and the makeup
// gains. Without it every makeup gain is unity.
type Encoder struct {
	cfg    *config
	chain  layout.Chain
	flags  [][]bool
	header *types.Mdhr

	measureDmx *downmix.Downmixer
	meters     []*meter.Meter
	boostPeaks [][]truepeak.Meter
	measured   bool

	dmx     *downmix.Downmixer
	gains   []float64
	layers  [][][]float64
	codecs  []codec.Codec
	clips   []*clipping.Detector
	decoded [][]float64
	demixer *upmix.Demixer
	engine  *recongain.Engine
	delays  []*delayLine
	frames  uint64
}

func NewEncoder(opts Options) (*Encoder, error) {
	cfg, err := parseOptions(opts)
	if err != nil {
		return nil, err
	}

	chain := cfg.chain
	frameSize := cfg.opts.FrameSize

	measureDmx, err := downmix.New(chain, frameSize)
	if err != nil {
		return nil, err
	}

	dmx, err := downmix.New(chain, frameSize)
	if err != nil {
		return nil, err
	}

	codecs, err := cfg.newCodecs(chain.Len() - 1)
	if err != nil {
		return nil, err
	}

	enc := &Encoder{
		cfg:        cfg,
		chain:      chain,
		flags:      gain.Flags(chain),
		header:     types.NewMdhr(),
		measureDmx: measureDmx,
		meters:     make([]*meter.Meter, chain.Len()),
		boostPeaks: make([][]truepeak.Meter, chain.Len()),
		dmx:        dmx,
		gains:      make([]float64, chain.Len()),
		layers:     make([][][]float64, chain.Len()),
		codecs:     codecs,
		clips:      make([]*clipping.Detector, chain.Len()),
	}

	top := chain.Top()
	arena := types.NewArena(top.Count()*2, frameSize)
	enc.decoded = arena.Planes(top.Count(), top.Count())

	for i, l := range chain.Layouts() {
		enc.meters[i] = meter.New(cfg.opts.SampleRate, l)
		enc.boostPeaks[i] = make([]truepeak.Meter, len(chain.Transmitted(i)))
		enc.gains[i] = 1
		enc.layers[i] = arena.Planes(chain.Offset(i), len(chain.Transmitted(i)))
		enc.clips[i] = clipping.New(len(chain.Transmitted(i)))
	}

	if !cfg.opts.DisableReconGain {
		if enc.engine, err = recongain.NewEngine(chain, cfg.mode); err != nil {
			return nil, err
		}

		if enc.demixer, err = upmix.New(chain, frameSize, cfg.opts.PreSkip); err != nil {
			return nil, err
		}

		enc.delays = make([]*delayLine, chain.Len())
		for i, l := range chain.Layouts() {
			enc.delays[i] = newDelayLine(l.Count(), frameSize, cfg.opts.PreSkip)
		}
	}

	slog.Debug("sporangium.NewEncoder", "chain", chain.String(), "codec", cfg.opts.Codec,
		"recon gain", !cfg.opts.DisableReconGain, "mode", cfg.mode.String())

	return enc, nil
}

func (e *Encoder) Chain() layout.Chain { return e.chain }

// Measure feeds one frame of the measurement pass.
func (e *Encoder) Measure(input [][]float64, params types.DemixingParameters) error {
	if e.measured {
		return ErrMeasureFinished
	}

	if err := params.Validate(); err != nil {
		return err
	}

	if err := e.measureDmx.Downmix(input, params); err != nil {
		return err
	}

	for i, l := range e.chain.Layouts() {
		e.meters[i].Process(e.measureDmx.Mixed(l))

		for j, plane := range e.measureDmx.Layer(i) {
			if e.flags[i][j] {
				e.boostPeaks[i][j].Process(plane)
			}
		}
	}

	return nil
}

// FinishMeasure closes the measurement pass, fills the loudness and makeup gain metadata and reports per layout.
// Calling it again returns the same reports.
func (e *Encoder) FinishMeasure() []types.LayerReport {
	reports := make([]types.LayerReport, e.chain.Len())

	for i, l := range e.chain.Layouts() {
		h := e.header.Layer(l)
		e.meters[i].Header(h)

		var peak float64

		boosted := 0

		for j, flagged := range e.flags[i] {
			if flagged {
				peak = max(peak, e.boostPeaks[i][j].Peak())
				boosted++
			}
		}

		if boosted > 0 {
			h.GainQ8, e.gains[i] = gain.FromTruePeak(peak)
		}

		reports[i] = types.LayerReport{
			Layout:   l,
			Loudness: e.meters[i].Result(),
			GainDb:   fixed.FromQ8(h.GainQ8),
			Boosted:  boosted,
		}
	}

	if !e.measured {
		slog.Debug("sporangium.FinishMeasure", "chain", e.chain.String(), "frames", reports[0].Loudness.Frames)
	}

	e.measured = true

	return reports
}

// EncodeFrame codes one frame of the top layout. Recon gain, when enabled, is derived from a local decode of the
// same payloads compared against the original mix, delayed by the codec's pre-skip.
// Encoder state only moves forward once every layer is coded, so a failed frame can be submitted again.
func (e *Encoder) EncodeFrame(input [][]float64, params types.DemixingParameters) (*Frame, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	if err := e.dmx.Downmix(input, params); err != nil {
		return nil, err
	}

	for i := range e.layers {
		for j, plane := range e.dmx.Layer(i) {
			copy(e.layers[i][j], plane)
		}
	}

	gain.ApplyDown(e.layers, e.flags, e.gains)

	frame := &Frame{Payloads: make([][]byte, e.chain.Len())}

	for i, cdc := range e.codecs {
		payload, err := cdc.EncodeFrame(e.layers[i])
		if err != nil {
			e.dmx.Rewind()

			return nil, fmt.Errorf("layer %d: %w", i, err)
		}

		frame.Payloads[i] = bytes.Clone(payload)
	}

	e.measured = true
	e.header.Params = params

	for i := range e.codecs {
		e.clips[i].Process(e.layers[i])
	}

	if e.engine != nil {
		if err := e.reconstruct(frame.Payloads); err != nil {
			return nil, err
		}
	}

	frame.Header = *e.header
	e.frames++

	return frame, nil
}

// reconstruct decodes payloads like a decoder would and fills the recon gain of every layout.
func (e *Encoder) reconstruct(payloads [][]byte) error {
	for i, cdc := range e.codecs {
		pos := e.chain.Offset(i)
		if err := cdc.DecodeFrame(payloads[i], e.decoded[pos:pos+len(e.chain.Transmitted(i))]); err != nil {
			return fmt.Errorf("layer %d: %w", i, err)
		}
	}

	if err := e.demixer.SetHeader(e.header); err != nil {
		return err
	}

	var lower [][]float64

	for i, l := range e.chain.Layouts() {
		original := e.delays[i].push(e.dmx.Mixed(l))

		reconstructed, err := e.demixer.Demix(e.decoded[:l.Count()], l, false)
		if err != nil {
			return err
		}

		e.header.Layer(l).ReconGain = e.engine.Compute(i, original, lower, reconstructed)
		lower = original
	}

	return nil
}

// Flush pushes the samples still held by the codecs' pre-skip out with one frame of silence.
// It returns nil when the codecs have no delay.
func (e *Encoder) Flush() (*Frame, error) {
	if e.cfg.opts.PreSkip == 0 {
		return nil, nil //nolint:nilnil // nothing to flush
	}

	silence := types.NewArena(e.chain.Top().Count(), e.cfg.opts.FrameSize)

	return e.EncodeFrame(silence.Planes(0, e.chain.Top().Count()), e.header.Params)
}

// Clipping reports, per layer, the samples the codec saturated so far.
func (e *Encoder) Clipping() []types.Clipping {
	out := make([]types.Clipping, len(e.clips))
	for i, d := range e.clips {
		out[i] = d.Result()
		out[i].Layout = e.chain.Layout(i)
	}

	return out
}

// Mixed returns the planes of layout l, in playout order, for the last encoded frame.
func (e *Encoder) Mixed(l layout.Layout) [][]float64 {
	return e.dmx.Mixed(l)
}

func (e *Encoder) Frames() uint64 { return e.frames }

func (e *Encoder) Close() error {
	var errs []error
	for _, cdc := range e.codecs {
		errs = append(errs, cdc.Close())
	}

	return errors.Join(errs...)
}
