package drc

import (
	"math"

	"github.com/farcloser/sporangium/internal/fixed"
	"github.com/farcloser/sporangium/internal/meter/truepeak"
)

// LimiterOptions configures a Limiter.
type LimiterOptions struct {
	ThresholdDB float64
	Attack      float64 // seconds
	Release     float64 // seconds
	Lookahead   int     // samples
	TruePeak    bool
}

// DefaultLimiterOptions limits at -1 dBTP with 1 ms attack, 200 ms release and 5 ms lookahead at 48 kHz.
func DefaultLimiterOptions() LimiterOptions {
	return LimiterOptions{
		ThresholdDB: -1,
		Attack:      0.001,
		Release:     0.2,
		Lookahead:   240,
		TruePeak:    true,
	}
}

// Limiter is a multichannel lookahead peak limiter. One gain is shared by all channels.
// When a peak would cross the threshold, the gain ramps down over the attack time, then back to unity over
// the release time, both along an accelerating curve.
type Limiter struct {
	threshold float64
	attack    float64
	release   float64
	tick      float64

	delay  [][]float64
	peaks  []float64
	meters []truepeak.Meter
	pos    int
	maxPos int

	gain      float64
	fromGain  float64
	toGain    float64
	elapsed   float64
	ramping   bool
	truePeaks bool
}

func NewLimiter(opts LimiterOptions, sampleRate, channels int) *Limiter {
	lookahead := max(opts.Lookahead, 0)

	l := &Limiter{
		threshold: fixed.DBToLin(opts.ThresholdDB),
		attack:    opts.Attack,
		release:   opts.Release,
		tick:      1 / float64(sampleRate),
		delay:     make([][]float64, channels),
		peaks:     make([]float64, max(lookahead, 1)),
		meters:    make([]truepeak.Meter, channels),
		maxPos:    -1,
		gain:      1,
		truePeaks: opts.TruePeak,
	}

	for ch := range l.delay {
		l.delay[ch] = make([]float64, lookahead)
	}

	return l
}

// Latency is the delay, in samples, between input and output.
func (l *Limiter) Latency() int {
	if len(l.delay) == 0 {
		return 0
	}

	return len(l.delay[0])
}

// Process limits planes in place. Planes beyond the configured channel count are left untouched.
func (l *Limiter) Process(planes [][]float64) {
	if len(planes) == 0 {
		return
	}

	size := l.Latency()
	channels := min(len(planes), len(l.delay))

	for k := range planes[0] {
		gain := l.nextGain(l.lookaheadPeak())

		var peak float64

		for ch := range channels {
			in := planes[ch][k]

			if size > 0 {
				planes[ch][k] = l.delay[ch][l.pos] * gain
				l.delay[ch][l.pos] = in
			} else {
				planes[ch][k] = in * gain
			}

			if l.truePeaks {
				peak = max(peak, l.meters[ch].Next(in))
			} else {
				peak = max(peak, math.Abs(in))
			}
		}

		l.push(peak)
	}
}

// lookaheadPeak is the largest peak among the samples waiting in the delay line.
func (l *Limiter) lookaheadPeak() float64 {
	if l.maxPos < 0 {
		l.maxPos = 0
		for i, p := range l.peaks {
			if p > l.peaks[l.maxPos] {
				l.maxPos = i
			}
		}
	}

	return l.peaks[l.maxPos]
}

// push records the peak of the frame that just entered the delay line, in the slot of the one that left.
func (l *Limiter) push(peak float64) {
	old := l.peaks[l.pos]
	l.peaks[l.pos] = peak

	switch {
	case l.maxPos < 0:
	case l.pos == l.maxPos && peak < old:
		l.maxPos = -1
	case peak >= l.peaks[l.maxPos]:
		l.maxPos = l.pos
	}

	l.pos = (l.pos + 1) % len(l.peaks)
}

func (l *Limiter) nextGain(peak float64) float64 {
	switch {
	case l.ramping && l.elapsed < l.attack:
		l.elapsed += l.tick
		l.gain = l.fromGain - accel(l.elapsed/l.attack)*(l.fromGain-l.toGain)
	case l.ramping && l.elapsed < l.attack+l.release:
		l.elapsed += l.tick
		l.gain = l.toGain + accel((l.elapsed-l.attack)/l.release)*(1-l.toGain)
	default:
		l.ramping = false
		l.gain = 1
	}

	if peak*l.gain > l.threshold {
		l.fromGain = l.gain
		l.toGain = l.threshold / peak
		l.elapsed = 0
		l.ramping = true
	}

	return l.gain
}

// accel maps [0, 1] onto an ease-out curve, clamping outside.
func accel(x float64) float64 {
	switch {
	case x > 1:
		return 1
	case x < 0:
		return 0
	default:
		return 1 - (x-1)*(x-1)
	}
}
