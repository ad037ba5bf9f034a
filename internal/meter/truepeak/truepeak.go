// Package truepeak estimates inter-sample peaks with the ITU-R BS.1770 4x polyphase interpolator.
package truepeak

import "math"

const (
	oversample   = 4  // 4x oversampling per ITU-R BS.1770
	tapsPerPhase = 12 // filter taps per phase
)

// Polyphase coefficients from ITU-R BS.1770-4 Annex 2. Index 0 applies to the newest sample.
// Phases 2 and 3 mirror phases 1 and 0.
//
//nolint:gochecknoglobals // filter table, effectively const
var polyphaseCoeffs = func() [oversample][tapsPerPhase]float64 {
	var coeffs [oversample][tapsPerPhase]float64

	coeffs[0] = [tapsPerPhase]float64{
		0.0017089843750, 0.0109863281250, -0.0196533203125, 0.0332031250000,
		-0.0594482421875, 0.1373291015625, 0.9721679687500, -0.1022949218750,
		0.0476074218750, -0.0266113281250, 0.0148925781250, -0.0083007812500,
	}
	coeffs[1] = [tapsPerPhase]float64{
		-0.0291748046875, 0.0292968750000, -0.0517578125000, 0.0891113281250,
		-0.1665039062500, 0.4650878906250, 0.7797851562500, -0.2003173828125,
		0.1015625000000, -0.0582275390625, 0.0330810546875, -0.0189208984375,
	}

	for tap := range tapsPerPhase {
		coeffs[2][tap] = coeffs[1][tapsPerPhase-1-tap]
		coeffs[3][tap] = coeffs[0][tapsPerPhase-1-tap]
	}

	return coeffs
}()

// Meter tracks the true peak of one channel. The zero value is ready to use.
type Meter struct {
	history [tapsPerPhase]float64
	peak    float64
}

// Next feeds one sample and returns the largest absolute value among the sample and its four interpolated phases.
// The result is never below the sample's own magnitude.
func (m *Meter) Next(sample float64) float64 {
	copy(m.history[1:], m.history[:tapsPerPhase-1])
	m.history[0] = sample

	peak := math.Abs(sample)

	for phase := range oversample {
		var interp float64
		for tap := range tapsPerPhase {
			interp += m.history[tap] * polyphaseCoeffs[phase][tap]
		}

		peak = max(peak, math.Abs(interp))
	}

	m.peak = max(m.peak, peak)

	return peak
}

// Process feeds a block and returns its true peak.
func (m *Meter) Process(block []float64) float64 {
	var peak float64
	for _, s := range block {
		peak = max(peak, m.Next(s))
	}

	return peak
}

// Peak is the largest value seen since creation.
func (m *Meter) Peak() float64 {
	return m.peak
}
