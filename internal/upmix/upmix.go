// Package upmix reconstructs the layouts of a scalable chain from its decoded layers.
package upmix

import (
	"errors"
	"fmt"
	"log/slog"

	"gonum.org/v1/gonum/floats"

	"github.com/farcloser/sporangium/internal/downmix"
	"github.com/farcloser/sporangium/internal/gain"
	"github.com/farcloser/sporangium/internal/layout"
	"github.com/farcloser/sporangium/internal/recongain"
	"github.com/farcloser/sporangium/internal/types"
)

var (
	ErrFrameSize         = errors.New("frame size mismatch")
	ErrChannelCount      = errors.New("channel count mismatch")
	ErrUnsupportedTarget = errors.New("target layout is not part of the chain")
)

// sfSteps is the length, in frames, of the recon-gain moving average.
const sfSteps = 7.0

// Demixer inverts the downmix of a chain, one frame at a time.
// Samples before the pre-skip boundary belong to the previous frame and use its parameters.
type Demixer struct {
	chain     layout.Chain
	frameSize int
	preSkip   int
	flags     [][]bool
	start     []float64
	stop      []float64

	input   [layout.MaxChannels][]float64
	scratch [layout.NumChannels][]float64
	data    [layout.NumChannels][]float64
	ready   [layout.NumChannels]bool
	outputs [layout.NumLayouts][][]float64
	layers  [][][]float64

	header     types.Mdhr
	params     types.DemixingParameters
	lastParams types.DemixingParameters
	prev       float64
	prev2      float64
	w          float64
	lastW      float64
	gains      []float64
	lastGains  []float64
	lastSfAvg  [layout.NumChannels]float64
}

// New creates a demixer for chain. preSkip is the codec delay; only its remainder modulo frameSize matters.
func New(chain layout.Chain, frameSize, preSkip int) (*Demixer, error) {
	start, stop, err := Windows(frameSize, preSkip)
	if err != nil {
		return nil, err
	}

	d := &Demixer{
		chain:      chain,
		frameSize:  frameSize,
		preSkip:    preSkip % frameSize,
		flags:      gain.Flags(chain),
		start:      start,
		stop:       stop,
		header:     *types.NewMdhr(),
		params:     types.DefaultDemixingParameters(),
		lastParams: types.DefaultDemixingParameters(),
		gains:      make([]float64, chain.Len()),
		lastGains:  make([]float64, chain.Len()),
		layers:     make([][][]float64, chain.Len()),
	}

	arena := types.NewArena(layout.MaxChannels+int(layout.NumChannels), frameSize)
	for i := range layout.MaxChannels {
		d.input[i] = arena.View(i)
	}

	for ch := range layout.NumChannels {
		d.scratch[ch] = arena.View(layout.MaxChannels + int(ch))
	}

	for _, l := range chain.Layouts() {
		d.outputs[l] = make([][]float64, l.Count())
	}

	for i := range d.lastSfAvg {
		d.lastSfAvg[i] = 1
	}

	d.refreshGains()
	copy(d.lastGains, d.gains)

	slog.Debug("upmix.New", "chain", chain.String(), "frameSize", frameSize, "preSkip", d.preSkip)

	return d, nil
}

// SetHeader installs the metadata of the next frame. The previous header stays in effect before the pre-skip boundary.
func (d *Demixer) SetHeader(h *types.Mdhr) error {
	if err := h.Params.Validate(); err != nil {
		return err
	}

	d.header = *h

	// The weight state runs two frames behind: prev is the state the encoder reached one frame ago.
	d.lastParams = d.params
	d.prev2 = d.prev
	d.prev, _ = downmix.StepWeight(d.params.WeightIndex, d.prev)
	d.params = h.Params

	_, d.w = downmix.StepWeight(d.params.WeightIndex, d.prev)
	_, d.lastW = downmix.StepWeight(d.lastParams.WeightIndex, d.prev2)

	copy(d.lastGains, d.gains)
	d.refreshGains()

	return nil
}

func (d *Demixer) refreshGains() {
	for i := range d.gains {
		d.gains[i] = d.header.Layer(d.chain.Layout(i)).Gain()
	}
}

// Demix reconstructs target from the transmitted channels of every layer up to target's, concatenated in
// scalable order. The caller's planes are not modified. Returned planes, in target's playout order, stay
// valid until the next call.
func (d *Demixer) Demix(transmitted [][]float64, target layout.Layout, reconGain bool) ([][]float64, error) {
	k := d.chain.Index(target)
	if k < 0 {
		return nil, fmt.Errorf("%w: %s in %s", ErrUnsupportedTarget, target, d.chain.String())
	}

	if len(transmitted) != target.Count() {
		return nil, fmt.Errorf("%w: got %d planes for %s", ErrChannelCount, len(transmitted), target)
	}

	for i := range transmitted {
		if len(transmitted[i]) != d.frameSize {
			return nil, fmt.Errorf("%w: plane %d has %d samples, want %d", ErrFrameSize, i, len(transmitted[i]), d.frameSize)
		}
	}

	clear(d.ready[:])

	layers := d.layers[:k+1]
	pos := 0

	for i := range k + 1 {
		channels := d.chain.Transmitted(i)
		layers[i] = d.input[pos : pos+len(channels)]

		for j, ch := range channels {
			copy(d.input[pos+j], transmitted[pos+j])
			d.data[ch] = d.input[pos+j]
			d.ready[ch] = true
		}

		pos += len(channels)
	}

	gain.ApplyUp(layers, d.flags[:k+1], d.lastGains, d.gains, d.preSkip)

	out := d.outputs[target]
	for i, ch := range target.Channels() {
		out[i] = d.channel(ch)
	}

	if reconGain && k > 0 {
		header := d.header.Layer(target)

		for _, ch := range d.chain.Derived(k) {
			d.smooth(ch, recongain.Gain(header.ReconGain[target.Index(ch)]))
		}
	}

	return out, nil
}

// smooth scales ch by the moving average of its recon gain, fading from the previous average across the boundary.
func (d *Demixer) smooth(ch layout.ChannelID, sf float64) {
	avg := (2/(sfSteps+1))*sf + (1-2/(sfSteps+1))*d.lastSfAvg[ch]
	last := d.lastSfAvg[ch]
	out := d.data[ch]

	for i := range out {
		out[i] *= last*d.stop[i] + avg*d.start[i]
	}

	d.lastSfAvg[ch] = avg
}

// channel returns ch, reconstructing it from lower layers on first use within a frame.
func (d *Demixer) channel(ch layout.ChannelID) []float64 {
	if d.ready[ch] {
		return d.data[ch]
	}

	out := d.scratch[ch]
	cur := downmix.MatrixFor(d.params)
	last := downmix.MatrixFor(d.lastParams)
	split := d.preSkip

	switch ch {
	case layout.R2:
		floats.ScaleTo(out, 2, d.channel(layout.M))
		floats.Sub(out, d.channel(layout.L2))
	case layout.L3, layout.R3:
		src := d.channel(pick(ch == layout.L3, layout.L2, layout.R2))
		floats.AddScaledTo(out, src, -downmix.CenterGain, d.channel(layout.C))
	case layout.SL5, layout.SR5:
		three := d.channel(pick(ch == layout.SL5, layout.L3, layout.R3))
		five := d.channel(pick(ch == layout.SL5, layout.L5, layout.R5))
		floats.SubTo(out, three, five)
		gain.Up(out, last.Delta, cur.Delta, split)
	case layout.BL7, layout.BR7:
		surround := d.channel(pick(ch == layout.BL7, layout.SL5, layout.SR5))
		side := d.channel(pick(ch == layout.BL7, layout.SL7, layout.SR7))
		subtractScaled(out, surround, side, last.Alpha, cur.Alpha, split)
		gain.Up(out, last.Beta, cur.Beta, split)
	case layout.HL, layout.HR:
		top := d.channel(pick(ch == layout.HL, layout.TL, layout.TR))
		surround := d.channel(pick(ch == layout.HL, layout.SL5, layout.SR5))
		subtractScaled(out, top, surround, last.Delta*d.lastW, cur.Delta*d.w, split)
	case layout.HBL, layout.HBR:
		height := d.channel(pick(ch == layout.HBL, layout.HL, layout.HR))
		front := d.channel(pick(ch == layout.HBL, layout.HFL, layout.HFR))
		floats.SubTo(out, height, front)
		gain.Up(out, last.Gamma, cur.Gamma, split)
	default:
		// Transmitted channels are always bound; a validated chain never asks for anything else.
		clear(out)
	}

	d.data[ch] = out
	d.ready[ch] = true

	return out
}

// subtractScaled sets out to y - k*s, with k = last before split and k = cur from split on.
func subtractScaled(out, y, s []float64, last, cur float64, split int) {
	floats.AddScaledTo(out[:split], y[:split], -last, s[:split])
	floats.AddScaledTo(out[split:], y[split:], -cur, s[split:])
}

func pick(left bool, l, r layout.ChannelID) layout.ChannelID {
	if left {
		return l
	}

	return r
}
