// Package gain applies the downmix makeup gain on the encoder side and removes it on the decoder side.
package gain

import (
	"slices"

	"gonum.org/v1/gonum/floats"

	"github.com/farcloser/sporangium/internal/fixed"
	"github.com/farcloser/sporangium/internal/layout"
)

// CeilingDB is the true-peak level boosted channels are attenuated to.
const CeilingDB = -1.0

// Down scales buf by g.
func Down(buf []float64, g float64) {
	floats.Scale(g, buf)
}

// Up divides buf by last for the first preSkip samples and by current afterwards.
// With gains from FromTruePeak, Up exactly undoes Down for samples of at most 29 significant bits, which covers
// every 24-bit PCM or float32 sample. Wider samples come back within one rounding of the division.
// A zero gain leaves samples untouched.
func Up(buf []float64, last, current float64, preSkip int) {
	preSkip = min(max(preSkip, 0), len(buf))

	divide(buf[:preSkip], last)
	divide(buf[preSkip:], current)
}

// divide divides by g. Scaling by 1/g does not invert Down exactly.
func divide(buf []float64, g float64) {
	if g == 0 || g == 1 {
		return
	}

	for i := range buf {
		buf[i] /= g
	}
}

// FromTruePeak derives the makeup gain of a layout from the linear true peak of its boosted channels.
// It returns the Q7.8 dB value that is signaled and the linear gain both ends apply, derived from that value.
// The Q7.8 value is rounded down, so the boosted channels never end up above CeilingDB.
func FromTruePeak(truePeak float64) (int16, float64) {
	if truePeak <= 0 {
		return 0, 1
	}

	lin := min(fixed.DBToLin(CeilingDB)/truePeak, 1)
	q8 := min(fixed.Q8Floor(fixed.LinToDB(lin)), 0)

	return q8, fixed.GainFromQ8(q8)
}

// Flags marks, for every layer of chain, the transmitted channels that carry the layer's makeup gain:
// gain-down candidates of the layer's layout that are not part of the chain's input layout.
func Flags(chain layout.Chain) [][]bool {
	top := chain.Top()
	flags := make([][]bool, chain.Len())

	for i := range chain.Len() {
		candidates := chain.Layout(i).GainDown()
		transmitted := chain.Transmitted(i)
		flags[i] = make([]bool, len(transmitted))

		for j, ch := range transmitted {
			flags[i][j] = !top.Has(ch) && slices.Contains(candidates, ch)
		}
	}

	return flags
}

// ApplyDown scales the flagged planes of every layer by that layer's gain.
func ApplyDown(layers [][][]float64, flags [][]bool, gains []float64) {
	for i, planes := range layers {
		for j, plane := range planes {
			if flags[i][j] {
				Down(plane, gains[i])
			}
		}
	}
}

// ApplyUp removes the gains applied by ApplyDown. Samples before preSkip were coded with the previous frame's gains.
func ApplyUp(layers [][][]float64, flags [][]bool, last, current []float64, preSkip int) {
	for i, planes := range layers {
		for j, plane := range planes {
			if flags[i][j] {
				Up(plane, last[i], current[i], preSkip)
			}
		}
	}
}
