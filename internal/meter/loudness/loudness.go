// Package loudness implements the ITU-R BS.1770 loudness meter: K-weighting, 100 ms steps,
// momentary (400 ms) and short-term (3 s) windows, and two-stage gated integration.
package loudness

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/farcloser/sporangium/internal/layout"
)

const (
	// NoContentLKFS is reported when nothing survives the gates, or nothing has been measured.
	NoContentLKFS = -120.0

	absoluteGate   = -70.0
	relativeGate   = -10.0
	stepsPerBlock  = 4  // 400 ms blocks, 75% overlap
	shortTermSteps = 30 // 3 s
	referenceRate  = 48000
	lkfsOffset     = -0.691
	minMeanSquare  = 1e-20
	stepsPerSecond = 10
)

// Biquad filter coefficients (a0 normalized).
type biquad struct {
	b0, b1, b2 float64
	a1, a2     float64
}

// Biquad filter state.
type biquadState struct {
	z1, z2 float64
}

func (s *biquadState) process(b *biquad, in float64) float64 {
	out := b.b0*in + s.z1
	s.z1 = b.b1*in - b.a1*out + s.z2
	s.z2 = b.b2*in - b.a2*out

	return out
}

// K-weighting: pre-filter (high shelf) + RLB weighting (high pass).
// 48 kHz uses the BS.1770 published coefficients, other rates are derived from the analog prototypes.
func getKWeightingFilters(sampleRate int) (pre, rlb biquad) {
	if sampleRate == referenceRate {
		pre = biquad{
			b0: 1.53512485958697, b1: -2.69169618940638, b2: 1.19839281085285,
			a1: -1.69065929318241, a2: 0.73248077421585,
		}
		rlb = biquad{
			b0: 1, b1: -2, b2: 1,
			a1: -1.99004745483398, a2: 0.99007225036621,
		}

		return pre, rlb
	}

	fs := float64(sampleRate)

	// Pre-filter (high shelf), models the acoustic effect of the head.
	f0 := 1681.974450955533
	G := 3.999843853973347
	Q := 0.7071752369554196

	K := math.Tan(math.Pi * f0 / fs)
	Vh := math.Pow(10, G/20)
	Vb := math.Pow(Vh, 0.4996667741545416)

	a0 := 1 + K/Q + K*K
	pre.b0 = (Vh + Vb*K/Q + K*K) / a0
	pre.b1 = 2 * (K*K - Vh) / a0
	pre.b2 = (Vh - Vb*K/Q + K*K) / a0
	pre.a1 = 2 * (K*K - 1) / a0
	pre.a2 = (1 - K/Q + K*K) / a0

	// RLB weighting (high pass).
	f0 = 38.13547087602444
	Q = 0.5003270373238773

	K = math.Tan(math.Pi * f0 / fs)

	a0 = 1 + K/Q + K*K
	rlb.b0 = 1 / a0
	rlb.b1 = -2 / a0
	rlb.b2 = 1 / a0
	rlb.a1 = 2 * (K*K - 1) / a0
	rlb.a2 = (1 - K/Q + K*K) / a0

	return pre, rlb
}

// Meter is a streaming loudness meter for a fixed set of channels.
type Meter struct {
	pre, rlb  biquad
	preState  []biquadState
	rlbState  []biquadState
	weights   []float64
	stepSize  int
	stepFill  int
	stepSum   float64
	steps     [shortTermSteps]float64
	stepPos   int
	stepCount int

	// Power of every 400 ms block above the absolute gate.
	blocks []float64

	momentaryMax float64
	shortTermMax float64
}

// New creates a meter with one weight per channel. A zero weight excludes the channel.
func New(sampleRate int, weights []float64) *Meter {
	pre, rlb := getKWeightingFilters(sampleRate)

	return &Meter{
		pre:          pre,
		rlb:          rlb,
		preState:     make([]biquadState, len(weights)),
		rlbState:     make([]biquadState, len(weights)),
		weights:      append([]float64(nil), weights...),
		stepSize:     max(sampleRate/stepsPerSecond, 1),
		momentaryMax: NoContentLKFS,
		shortTermMax: NoContentLKFS,
	}
}

// ForLayout creates a meter weighting the channels of l in playout order.
func ForLayout(sampleRate int, l layout.Layout) *Meter {
	channels := l.Channels()
	weights := make([]float64, len(channels))

	for i, ch := range channels {
		weights[i] = ch.LoudnessWeight()
	}

	return New(sampleRate, weights)
}

// Process feeds planar samples, one slice per channel, all the same length.
// Planes beyond the configured channel count are ignored.
func (m *Meter) Process(planes [][]float64) {
	channels := min(len(planes), len(m.weights))
	if channels == 0 {
		return
	}

	for i := range planes[0] {
		var power float64

		for ch := range channels {
			if m.weights[ch] == 0 {
				continue
			}

			filtered := m.preState[ch].process(&m.pre, planes[ch][i])
			filtered = m.rlbState[ch].process(&m.rlb, filtered)
			power += m.weights[ch] * filtered * filtered
		}

		m.stepSum += power
		m.stepFill++

		if m.stepFill == m.stepSize {
			m.closeStep()
		}
	}
}

func (m *Meter) closeStep() {
	m.steps[m.stepPos] = m.stepSum / float64(m.stepSize)
	m.stepPos = (m.stepPos + 1) % shortTermSteps
	m.stepCount++
	m.stepSum = 0
	m.stepFill = 0

	if m.stepCount >= stepsPerBlock {
		block := m.recentMean(stepsPerBlock)
		lkfs := toLKFS(block)
		m.momentaryMax = max(m.momentaryMax, lkfs)

		if lkfs > absoluteGate {
			m.blocks = append(m.blocks, block)
		}
	}

	if m.stepCount >= shortTermSteps {
		m.shortTermMax = max(m.shortTermMax, toLKFS(m.recentMean(shortTermSteps)))
	}
}

// recentMean averages the last n completed steps.
func (m *Meter) recentMean(n int) float64 {
	var sum float64

	for k := 1; k <= n; k++ {
		sum += m.steps[(m.stepPos-k+shortTermSteps)%shortTermSteps]
	}

	return sum / float64(n)
}

func (m *Meter) MaxMomentary() float64 { return m.momentaryMax }

func (m *Meter) MaxShortTerm() float64 { return m.shortTermMax }

// Integrated is the gated program loudness: blocks above -70 LKFS, then above the mean of those minus 10 LU.
func (m *Meter) Integrated() float64 {
	if len(m.blocks) == 0 {
		return NoContentLKFS
	}

	threshold := toLKFS(max(floats.Sum(m.blocks)/float64(len(m.blocks)), minMeanSquare)) + relativeGate

	var (
		gated float64
		count int
	)

	for _, p := range m.blocks {
		if toLKFS(p) > threshold {
			gated += p
			count++
		}
	}

	if count == 0 {
		return NoContentLKFS
	}

	return toLKFS(gated / float64(count))
}

func toLKFS(meanSquare float64) float64 {
	if meanSquare <= 0 {
		return NoContentLKFS
	}

	return max(lkfsOffset+10*math.Log10(meanSquare), NoContentLKFS)
}
