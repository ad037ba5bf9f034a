// Package drc implements the playback dynamics chain: a lookahead knee compressor, a lookahead true-peak limiter,
// and the loudness profiles that combine them.
package drc

import (
	"errors"
	"fmt"
)

var ErrCurve = errors.New("invalid compression curve")

// MaxKnees is the number of knee points a curve can hold.
const MaxKnees = 5

// Knee is one break point of a compression curve: above ThresholdDB, level grows at 1/Ratio.
type Knee struct {
	ThresholdDB float64
	Ratio       float64
}

// Curve is a piecewise linear input/output level mapping in dB. OffsetDB shifts every knee down.
// Knees are clamped to MarginDB and output never exceeds input. Above MarginDB output keeps rising at the
// last knee's 1/Ratio, so it can pass MarginDB for loud enough input.
type Curve struct {
	MarginDB float64
	OffsetDB float64
	Knees    []Knee
}

// DefaultCurve is the mobile profile curve.
func DefaultCurve() Curve {
	return Curve{
		MarginDB: -1,
		Knees: []Knee{
			{ThresholdDB: -16.5, Ratio: 1.5},
			{ThresholdDB: -9, Ratio: 2},
			{ThresholdDB: -6, Ratio: 3},
			{ThresholdDB: 0, Ratio: 10},
			{ThresholdDB: 0, Ratio: 10},
		},
	}
}

// Validate checks knee count, ordering and ratios.
func (c Curve) Validate() error {
	if len(c.Knees) == 0 || len(c.Knees) > MaxKnees {
		return fmt.Errorf("%w: %d knees", ErrCurve, len(c.Knees))
	}

	for i, k := range c.Knees {
		if k.Ratio < 1 {
			return fmt.Errorf("%w: knee %d ratio %v", ErrCurve, i, k.Ratio)
		}

		if i > 0 && k.ThresholdDB < c.Knees[i-1].ThresholdDB {
			return fmt.Errorf("%w: knee %d below knee %d", ErrCurve, i, i-1)
		}
	}

	return nil
}

// compiled is a curve with knees clamped to the margin and output levels precomputed at every knee.
type compiled struct {
	margin  float64
	knees   []float64
	slopes  []float64
	outKnee []float64
}

func (c Curve) compile() compiled {
	n := len(c.Knees)
	out := compiled{
		margin:  c.MarginDB,
		knees:   make([]float64, n),
		slopes:  make([]float64, n),
		outKnee: make([]float64, n),
	}

	for i, k := range c.Knees {
		out.knees[i] = min(k.ThresholdDB-c.OffsetDB, c.MarginDB)
		out.slopes[i] = 1 / k.Ratio
	}

	out.outKnee[0] = min(out.knees[0], out.margin)
	for i := 1; i < n; i++ {
		out.outKnee[i] = min(out.outKnee[i-1]+out.slopes[i-1]*(out.knees[i]-out.knees[i-1]), out.margin)
	}

	return out
}

// level maps an input level to the curve's output level, in dB.
func (c *compiled) level(in float64) float64 {
	n := len(c.knees)

	if in > c.margin {
		return c.outKnee[n-1] + c.slopes[n-1]*(in-c.margin)
	}

	if in <= c.knees[0] {
		return c.outKnee[0] + in - c.knees[0]
	}

	for i := 1; i < n; i++ {
		if in <= c.knees[i] {
			return c.outKnee[i-1] + c.slopes[i-1]*(in-c.knees[i-1])
		}
	}

	return c.outKnee[n-1] + c.slopes[n-1]*(in-c.knees[n-1])
}
