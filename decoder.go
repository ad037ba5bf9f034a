package sporangium

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/farcloser/sporangium/internal/codec"
	"github.com/farcloser/sporangium/internal/drc"
	"github.com/farcloser/sporangium/internal/fixed"
	"github.com/farcloser/sporangium/internal/layout"
	"github.com/farcloser/sporangium/internal/types"
	"github.com/farcloser/sporangium/internal/upmix"
)

// Decoder renders one layout of a chain from coded frames.
// Only the layers up to the target's are decoded; higher layers of a frame are ignored.
type Decoder struct {
	cfg     *config
	target  layout.Layout
	layer   int
	codecs  []codec.Codec
	planes  [][]float64
	demixer *upmix.Demixer
	drc     *drc.Processor
}

// NewDecoder creates a decoder for target, a layout of opts.Chain. An empty target selects the top layout.
func NewDecoder(opts Options, target string) (*Decoder, error) {
	cfg, err := parseOptions(opts)
	if err != nil {
		return nil, err
	}

	tgt := cfg.chain.Top()
	if target != "" {
		if tgt, err = layout.Parse(target); err != nil {
			return nil, err
		}
	}

	k := cfg.chain.Index(tgt)
	if k < 0 {
		return nil, fmt.Errorf("%w: %s in %s", upmix.ErrUnsupportedTarget, tgt, cfg.chain.String())
	}

	demixer, err := upmix.New(cfg.chain, cfg.opts.FrameSize, cfg.opts.PreSkip)
	if err != nil {
		return nil, err
	}

	codecs, err := cfg.newCodecs(k)
	if err != nil {
		return nil, err
	}

	slog.Debug("sporangium.NewDecoder", "chain", cfg.chain.String(), "target", tgt.String(), "drc", cfg.profile.String())

	return &Decoder{
		cfg:     cfg,
		target:  tgt,
		layer:   k,
		codecs:  codecs,
		planes:  types.NewArena(tgt.Count(), cfg.opts.FrameSize).Planes(0, tgt.Count()),
		demixer: demixer,
	}, nil
}

func (d *Decoder) Target() layout.Layout { return d.target }

// Latency is the delay, in samples, between encoder input and decoder output.
func (d *Decoder) Latency() int {
	latency := d.cfg.opts.PreSkip
	if d.drc != nil {
		latency += d.drc.Latency()
	}

	return latency
}

// DecodeFrame returns the target's planes in playout order, valid until the next call.
// The playback profile is set up on the first frame, from the loudness the header signals for the target.
func (d *Decoder) DecodeFrame(frame *Frame) ([][]float64, error) {
	if len(frame.Payloads) <= d.layer {
		return nil, fmt.Errorf("%w: %d layers, %s needs %d", ErrMissingLayer, len(frame.Payloads), d.target, d.layer+1)
	}

	for i, cdc := range d.codecs {
		pos := d.cfg.chain.Offset(i)
		if err := cdc.DecodeFrame(frame.Payloads[i], d.planes[pos:pos+len(d.cfg.chain.Transmitted(i))]); err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
	}

	if err := d.demixer.SetHeader(&frame.Header); err != nil {
		return nil, err
	}

	out, err := d.demixer.Demix(d.planes, d.target, !d.cfg.opts.DisableReconGain)
	if err != nil {
		return nil, err
	}

	if d.drc == nil {
		lkfs := fixed.FromQ8(frame.Header.Layer(d.target).LoudnessQ8)

		if d.drc, err = drc.NewProcessor(d.cfg.profile, d.cfg.opts.SampleRate, d.target.Count(), lkfs); err != nil {
			return nil, err
		}
	}

	d.drc.Process(out)

	return out, nil
}

func (d *Decoder) Close() error {
	var errs []error
	for _, cdc := range d.codecs {
		errs = append(errs, cdc.Close())
	}

	return errors.Join(errs...)
}
