// Package downmix derives every lower layout of a scalable chain from the top layout, frame by frame.
package downmix

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/farcloser/sporangium/internal/layout"
	"github.com/farcloser/sporangium/internal/types"
)

var (
	ErrUnsupportedInput = errors.New("input layout cannot be mixed down to target")
	ErrFrameSize        = errors.New("frame size mismatch")
	ErrChannelCount     = errors.New("channel count mismatch")
)

// Downmixer mixes an input layout down to a set of target layouts.
// Derived channels live in an arena sized at construction; returned planes stay valid until the next call.
type Downmixer struct {
	input      layout.Layout
	inputOrder []layout.ChannelID
	targets    []layout.Layout
	orders     [layout.NumLayouts][]layout.ChannelID
	chain      *layout.Chain
	frameSize  int

	scratch [layout.NumChannels][]float64
	data    [layout.NumChannels][]float64
	ready   [layout.NumChannels]bool
	boosted [layout.NumLayouts][layout.NumChannels]bool
	mixed   [layout.NumLayouts][][]float64
	layers  [][][]float64

	matrix  Matrix
	w       float64
	weightX float64
	lastW   float64
	lastX   float64
}

// New creates a downmixer for a scalable chain. The input is the chain's top layout.
func New(chain layout.Chain, frameSize int) (*Downmixer, error) {
	d, err := newDownmixer(chain.Top(), chain.Layouts(), frameSize)
	if err != nil {
		return nil, err
	}

	d.chain = &chain
	d.layers = make([][][]float64, chain.Len())

	for i := range chain.Len() {
		d.layers[i] = make([][]float64, len(chain.Transmitted(i)))
	}

	return d, nil
}

// NewCascade creates a downmixer from input to arbitrary targets, without scalable-chain constraints.
// Every target must fit within the input layout.
func NewCascade(input layout.Layout, frameSize int, targets ...layout.Layout) (*Downmixer, error) {
	return newDownmixer(input, targets, frameSize)
}

func newDownmixer(input layout.Layout, targets []layout.Layout, frameSize int) (*Downmixer, error) {
	if frameSize <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrFrameSize, frameSize)
	}

	if !input.Valid() {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedInput, layout.ErrUnknownLayout)
	}

	for _, target := range targets {
		if !target.Valid() || !input.Contains(target) {
			return nil, fmt.Errorf("%w: %s from %s", ErrUnsupportedInput, target, input)
		}
	}

	d := &Downmixer{
		input:      input,
		inputOrder: input.Channels(),
		targets:    append([]layout.Layout(nil), targets...),
		frameSize:  frameSize,
		matrix:     matrices[0],
	}

	arena := types.NewArena(int(layout.NumChannels), frameSize)
	for ch := range layout.NumChannels {
		d.scratch[ch] = arena.View(int(ch))
	}

	for _, target := range targets {
		d.mixed[target] = make([][]float64, target.Count())
		d.orders[target] = target.Channels()

		for _, ch := range target.GainDown() {
			d.boosted[target][ch] = !input.Has(ch)
		}
	}

	return d, nil
}

// Boosted reports whether ch of target l is a mix product that carries the layout's makeup gain.
func (d *Downmixer) Boosted(l layout.Layout, ch layout.ChannelID) bool {
	return d.boosted[l][ch]
}

// Downmix processes one frame of the input layout, planes in playout order.
// Size errors are reported before any state changes.
func (d *Downmixer) Downmix(input [][]float64, params types.DemixingParameters) error {
	if len(input) != d.input.Count() {
		return fmt.Errorf("%w: got %d planes for %s", ErrChannelCount, len(input), d.input)
	}

	for ch := range input {
		if len(input[ch]) != d.frameSize {
			return fmt.Errorf("%w: plane %d has %d samples, want %d", ErrFrameSize, ch, len(input[ch]), d.frameSize)
		}
	}

	if err := params.Validate(); err != nil {
		return err
	}

	d.matrix = MatrixFor(params)
	d.lastX, d.lastW = d.weightX, d.w
	d.weightX, d.w = StepWeight(params.WeightIndex, d.weightX)

	clear(d.ready[:])

	for i, ch := range d.inputOrder {
		d.data[ch] = input[i]
		d.ready[ch] = true
	}

	for _, target := range d.targets {
		for i, ch := range d.orders[target] {
			d.mixed[target][i] = d.channel(ch)
		}
	}

	if d.chain != nil {
		for i := range d.chain.Len() {
			for j, ch := range d.chain.Transmitted(i) {
				d.layers[i][j] = d.channel(ch)
			}
		}
	}

	return nil
}

// Rewind undoes the weight step of the last frame, so that the frame can be mixed again.
// Planes returned for that frame are left as they are.
func (d *Downmixer) Rewind() {
	d.weightX, d.w = d.lastX, d.lastW
}

// Mixed returns the planes of target l for the last frame, in playout order.
func (d *Downmixer) Mixed(l layout.Layout) [][]float64 {
	return d.mixed[l]
}

// Layer returns the planes transmitted by chain layer i for the last frame, in scalable order.
func (d *Downmixer) Layer(i int) [][]float64 {
	return d.layers[i]
}

// channel returns ch, deriving it (and whatever it depends on) on first use within a frame.
func (d *Downmixer) channel(ch layout.ChannelID) []float64 {
	if d.ready[ch] {
		return d.data[ch]
	}

	out := d.scratch[ch]
	m := d.matrix

	switch ch {
	case layout.M:
		floats.AddTo(out, d.channel(layout.L2), d.channel(layout.R2))
		floats.Scale(0.5, out)
	case layout.L2, layout.R2:
		src := d.channel(pick(ch == layout.L2, layout.L3, layout.R3))
		floats.AddScaledTo(out, src, CenterGain, d.channel(layout.C))
	case layout.L3, layout.R3:
		front := d.channel(pick(ch == layout.L3, layout.L5, layout.R5))
		surround := d.channel(pick(ch == layout.L3, layout.SL5, layout.SR5))
		floats.AddScaledTo(out, front, m.Delta, surround)
	case layout.SL5, layout.SR5:
		side := d.channel(pick(ch == layout.SL5, layout.SL7, layout.SR7))
		back := d.channel(pick(ch == layout.SL5, layout.BL7, layout.BR7))
		floats.ScaleTo(out, m.Alpha, side)
		floats.AddScaled(out, m.Beta, back)
	case layout.TL, layout.TR:
		height := d.channel(pick(ch == layout.TL, layout.HL, layout.HR))
		surround := d.channel(pick(ch == layout.TL, layout.SL5, layout.SR5))
		floats.AddScaledTo(out, height, m.Delta*d.w, surround)
	case layout.HL, layout.HR:
		front := d.channel(pick(ch == layout.HL, layout.HFL, layout.HFR))
		back := d.channel(pick(ch == layout.HL, layout.HBL, layout.HBR))
		floats.AddScaledTo(out, front, m.Gamma, back)
	default:
		// Only reachable for channels a validated target never asks for.
		clear(out)
	}

	d.data[ch] = out
	d.ready[ch] = true

	return out
}

func pick(left bool, l, r layout.ChannelID) layout.ChannelID {
	if left {
		return l
	}

	return r
}
