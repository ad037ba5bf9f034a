package truepeak_test

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/farcloser/sporangium/internal/meter/truepeak"
)

func TestQuarterRateSineWithinTenthOfDB(t *testing.T) {
	t.Parallel()

	for _, phase := range []float64{0, math.Pi / 4} {
		var m truepeak.Meter

		for n := range 4800 {
			m.Next(math.Sin(math.Pi/2*float64(n) + phase))
		}

		peakDb := 20 * math.Log10(m.Peak())
		if math.Abs(peakDb) > 0.1 {
			t.Errorf("phase %.3f: true peak %.4f dB, want within 0.1 dB of 0", phase, peakDb)
		}
	}
}

func TestNeverBelowSamplePeak(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(1, 2))

	for range 20 {
		block := make([]float64, 480)
		for i := range block {
			block[i] = rng.Float64()*2 - 1
		}

		// Isolated full-scale impulses sit exactly on sample boundaries.
		block[rng.IntN(len(block))] = -1

		var (
			m          truepeak.Meter
			samplePeak float64
		)

		for _, s := range block {
			samplePeak = max(samplePeak, math.Abs(s))
		}

		if got := m.Process(block); got < samplePeak {
			t.Fatalf("true peak %v below sample peak %v", got, samplePeak)
		}
	}
}
