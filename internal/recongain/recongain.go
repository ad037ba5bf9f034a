// Package recongain computes the quantized reconstruction gains that let a decoder correct channels it
// derives from lower layouts.
package recongain

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/farcloser/sporangium/internal/layout"
	"github.com/farcloser/sporangium/internal/types"
)

var ErrMode = errors.New("unknown recon gain mode")

// Mode selects how recon gain is decided.
type Mode int

const (
	// ModeRMS only signals silence: index 15 on channels with no energy, 0 otherwise.
	ModeRMS Mode = iota
	// ModeOneShot searches the table whenever the reconstruction noise is above the threshold.
	ModeOneShot
	// ModeIncremental gates the search on the signal-to-mix ratio, with a smoothed silence floor.
	ModeIncremental
)

func ParseMode(v int) (Mode, error) {
	if v < int(ModeRMS) || v > int(ModeIncremental) {
		return 0, fmt.Errorf("%w: %d", ErrMode, v)
	}

	return Mode(v), nil
}

// ParseModeName accepts the names String returns.
func ParseModeName(name string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "rms":
		return ModeRMS, nil
	case "one-shot", "oneshot":
		return ModeOneShot, nil
	case "incremental":
		return ModeIncremental, nil
	}

	return 0, fmt.Errorf("%w: %q", ErrMode, name)
}

func (m Mode) String() string {
	switch m {
	case ModeRMS:
		return "rms"
	case ModeOneShot:
		return "one-shot"
	case ModeIncremental:
		return "incremental"
	}

	return fmt.Sprintf("mode(%d)", int(m))
}

const (
	// OneShotThreshold is the noise-to-signal ratio, in dB, above which one-shot mode signals a correction.
	OneShotThreshold = -9.0
	// IncrementalThreshold is the signal-to-mix ratio, in dB, below which incremental mode signals a correction.
	IncrementalThreshold = -6.0
	// SilenceFloor is the level, in dBFS, under which incremental mode declares a channel silent.
	SilenceFloor = -80.0

	// Silent is the table index of a zero gain.
	Silent uint8 = 15

	splSteps = 3.0
	epsilon  = 1e-20
)

// List is the quantization table. Index 15 is silence.
//
//nolint:gochecknoglobals // quantization table, effectively const
var List = [16]float64{
	1, 0.928577102, 0.857154205, 0.785731307,
	0.714308409, 0.642885512, 0.571462614, 0.500039716,
	0.428616819, 0.357193921, 0.285771023, 0.214348126,
	0.142925228, 0.071502330, 0.000079432, 0,
}

// Gain returns the linear factor a signaled byte stands for. Unsignaled and out-of-table values are unity.
func Gain(index uint8) float64 {
	if int(index) >= len(List) {
		return 1
	}

	return List[index]
}

// Factor is one quantized decision: the table index and the energy-matching gain it approximates.
type Factor struct {
	Index uint8
	Data  float64
}

// RMS holds per-channel sums of squares and RMS values for the original signal and the reconstruction noise.
type RMS struct {
	Sum      float64
	RMS      float64
	NoiseSum float64
	NoiseRMS float64
}

// Measure computes the RMS figures of orig and of recon - orig.
func Measure(orig, recon []float64) RMS {
	n := float64(max(len(orig), 1))
	noise := floats.Distance(orig, recon, 2)

	r := RMS{
		Sum:      floats.Dot(orig, orig),
		NoiseSum: noise * noise,
	}
	r.RMS = math.Sqrt(r.Sum / n)
	r.NoiseRMS = math.Sqrt(r.NoiseSum / n)

	return r
}

func rms(x []float64) float64 {
	return math.Sqrt(floats.Dot(x, x)/float64(max(len(x), 1))) + epsilon
}

// NoiseRatio is the reconstruction noise level relative to the original, in dB.
func NoiseRatio(orig, recon []float64) float64 {
	r := Measure(orig, recon)

	return 20 * math.Log10((r.NoiseRMS+2*epsilon)/(r.RMS+2*epsilon))
}

// MixRatio is the level of orig relative to the lower-layout channel it was mixed into, in dB.
func MixRatio(orig, mixed []float64) float64 {
	return 20 * math.Log10((rms(orig)+epsilon)/(rms(mixed)+epsilon))
}

// Search returns the table index minimizing the squared error between orig and the scaled reconstruction.
// Ties resolve to the smallest index.
func Search(orig, recon []float64) uint8 {
	oo := floats.Dot(orig, orig)
	or := floats.Dot(orig, recon)
	rr := floats.Dot(recon, recon)

	var best uint8

	bestErr := math.Inf(1)

	for i, g := range List {
		if e := oo - 2*g*or + g*g*rr; e < bestErr {
			best, bestErr = uint8(i), e //nolint:gosec // table has 16 entries
		}
	}

	return best
}

func search(orig, recon []float64) Factor {
	oo := floats.Dot(orig, orig)
	f := Factor{
		Index: Search(orig, recon),
		Data:  math.Sqrt((oo + epsilon) / (floats.Dot(recon, recon) + epsilon)),
	}

	// A channel with energy is never declared silent.
	if f.Index == Silent {
		if oo != 0 {
			f.Index = Silent - 1
		} else {
			f.Data = 0
		}
	}

	f.Data = min(f.Data, 1)

	return f
}

// OneShot signals a correction when the reconstruction noise ratio exceeds threshold.
func OneShot(orig, recon []float64, threshold float64) Factor {
	if NoiseRatio(orig, recon) <= threshold {
		return Factor{Data: 1}
	}

	return search(orig, recon)
}

// Incremental signals a correction when orig sits well below the mixed channel it was folded into.
// spl carries the channel's smoothed level across frames.
func Incremental(orig, mixed, recon []float64, threshold float64, spl *float64) Factor {
	level := 20 * math.Log10(rms(orig))
	*spl = (2/(splSteps+1))*level + (1-2/(splSteps+1))*(*spl)

	switch {
	case level < SilenceFloor && *spl < SilenceFloor:
		return Factor{Index: Silent}
	case MixRatio(orig, mixed) < threshold:
		return search(orig, recon)
	default:
		return Factor{Data: 1}
	}
}

// Engine decides recon gains for every layer of a chain, frame after frame.
type Engine struct {
	mode   Mode
	chain  layout.Chain
	spl    [layout.NumLayouts][layout.MaxChannels]float64
	cached [layout.NumChannels]bool
	values [layout.NumChannels]uint8
	last   int
}

func NewEngine(chain layout.Chain, mode Mode) (*Engine, error) {
	if _, err := ParseMode(int(mode)); err != nil {
		return nil, err
	}

	return &Engine{mode: mode, chain: chain, last: chain.Len()}, nil
}

// Compute returns the recon-gain bytes of chain layer i, by playout position of its layout.
// original and reconstructed are that layout's planes; lower holds the planes of the layer below.
// Only derived channels are signaled. A layer index not above the previous call's starts a new frame.
func (e *Engine) Compute(i int, original, lower, reconstructed [][]float64) [layout.MaxChannels]uint8 {
	var out [layout.MaxChannels]uint8
	for k := range out {
		out[k] = types.NotSignaled
	}

	if i <= e.last {
		clear(e.cached[:])
	}

	e.last = i

	if i == 0 {
		return out
	}

	target := e.chain.Layout(i)
	below := e.chain.Layout(i - 1)

	for _, ch := range e.chain.Derived(i) {
		pos := target.Index(ch)

		// A channel derived by several layers of the frame gets one decision.
		if e.cached[ch] {
			out[pos] = e.values[ch]

			continue
		}

		orig, recon := original[pos], reconstructed[pos]

		var index uint8

		switch e.mode {
		case ModeRMS:
			if Measure(orig, recon).Sum == 0 {
				index = Silent
			}
		case ModeOneShot:
			index = OneShot(orig, recon, OneShotThreshold).Index
		case ModeIncremental:
			mixed, ok := relevant(ch, below, lower)
			if !ok {
				break
			}

			index = Incremental(orig, mixed, recon, IncrementalThreshold, &e.spl[target][pos]).Index
		}

		out[pos] = index
		e.cached[ch] = true
		e.values[ch] = index
	}

	return out
}

// relevant finds the lower-layout channel ch was mixed into.
func relevant(ch layout.ChannelID, below layout.Layout, planes [][]float64) ([]float64, bool) {
	for {
		parent, ok := ch.Parent()
		if !ok {
			return nil, false
		}

		if pos := below.Index(parent); pos >= 0 && pos < len(planes) {
			return planes[pos], true
		}

		ch = parent
	}
}
