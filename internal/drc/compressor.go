package drc

import (
	"math"

	"github.com/farcloser/sporangium/internal/fixed"
)

// releaseHysteresisDB is the level drop below which the detector and gain smoother hold instead of releasing.
const releaseHysteresisDB = 0.01

// TimeConstants are the compressor's attack and release times, in seconds.
type TimeConstants struct {
	LevelAttack  float64
	LevelRelease float64
	GainAttack   float64
	GainRelease  float64
}

func DefaultTimeConstants() TimeConstants {
	return TimeConstants{LevelAttack: 0.01, LevelRelease: 0.3, GainAttack: 0.01, GainRelease: 0.3}
}

// smoothing converts a time constant to a one-pole coefficient. Zero means instantaneous.
func smoothing(seconds float64, sampleRate int) float64 {
	if seconds == 0 {
		return 0
	}

	return math.Exp(-4 / (seconds * float64(sampleRate)))
}

// Compressor is a single-channel lookahead compressor. The output lags the input by the lookahead.
// Level is detected on the newest half of the delay line.
type Compressor struct {
	curve compiled
	delay []float64
	pos   int

	alpha, beta         float64
	attackGain, relGain float64
	peak                float64
	scale               float64
}

func NewCompressor(curve Curve, tc TimeConstants, sampleRate, lookahead int) (*Compressor, error) {
	if err := curve.Validate(); err != nil {
		return nil, err
	}

	return &Compressor{
		curve:      curve.compile(),
		delay:      make([]float64, max(lookahead, 0)),
		alpha:      smoothing(tc.LevelAttack, sampleRate),
		beta:       smoothing(tc.LevelRelease, sampleRate),
		attackGain: smoothing(tc.GainAttack, sampleRate),
		relGain:    smoothing(tc.GainRelease, sampleRate),
		scale:      1,
	}, nil
}

// Latency is the delay, in samples, between input and output.
func (c *Compressor) Latency() int { return len(c.delay) }

// Process compresses block in place.
func (c *Compressor) Process(block []float64) {
	size := len(c.delay)

	for k, in := range block {
		var level float64

		if size == 0 {
			level = math.Abs(in)
		} else {
			for i := (size + 1) / 2; i < size; i++ {
				level = max(level, math.Abs(c.delay[(c.pos+i)%size]))
			}
		}

		peakDB := fixed.LinToDB(c.peak)
		levelDB := fixed.LinToDB(level)

		switch {
		case levelDB >= peakDB:
			peakDB = c.alpha*peakDB + (1-c.alpha)*levelDB
		case peakDB-levelDB > releaseHysteresisDB:
			peakDB = c.beta*peakDB + (1-c.beta)*levelDB
		default:
			peakDB = levelDB
		}

		c.peak = fixed.DBToLin(peakDB)
		c.scale = c.smoothGain(c.curve.level(peakDB) - peakDB)

		if size == 0 {
			block[k] = in * c.scale

			continue
		}

		block[k] = c.delay[c.pos] * c.scale
		c.delay[c.pos] = in
		c.pos = (c.pos + 1) % size
	}
}

// smoothGain moves the gain toward target (dB) with attack or release smoothing and never above unity.
func (c *Compressor) smoothGain(target float64) float64 {
	prev := fixed.LinToDB(c.scale)

	switch {
	case target < prev:
		target = c.attackGain*prev + (1-c.attackGain)*target
	case target-prev > releaseHysteresisDB:
		target = c.relGain*prev + (1-c.relGain)*target
	default:
		target = prev
	}

	return min(fixed.DBToLin(target), 1)
}
