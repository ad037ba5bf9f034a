package drc_test

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/farcloser/sporangium/internal/drc"
	"github.com/farcloser/sporangium/internal/fixed"
)

func sine(n int, amp float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amp * math.Sin(2*math.Pi*997*float64(i)/48000)
	}

	return out
}

func TestUnityCurveIsPureDelay(t *testing.T) {
	t.Parallel()

	curve := drc.Curve{
		Knees: []drc.Knee{{ThresholdDB: -20, Ratio: 1}, {ThresholdDB: 0, Ratio: 1}},
	}

	c, err := drc.NewCompressor(curve, drc.DefaultTimeConstants(), 48000, 64)
	if err != nil {
		t.Fatal(err)
	}

	rng := rand.New(rand.NewPCG(9, 9))
	input := make([]float64, 4800)

	for i := range input {
		input[i] = rng.Float64()*2 - 1
	}

	out := append([]float64(nil), input...)

	// Odd block sizes cross the delay line boundary at arbitrary points.
	for start := 0; start < len(out); start += 77 {
		c.Process(out[start:min(start+77, len(out))])
	}

	for i := range out {
		var want float64
		if i >= c.Latency() {
			want = input[i-c.Latency()]
		}

		if math.Abs(out[i]-want) > 1e-9 {
			t.Fatalf("sample %d: %v, want %v", i, out[i], want)
		}
	}
}

func TestCompressorReducesLoudSignal(t *testing.T) {
	t.Parallel()

	c, err := drc.NewCompressor(drc.DefaultCurve(), drc.DefaultTimeConstants(), 48000, 240)
	if err != nil {
		t.Fatal(err)
	}

	block := sine(48000, 0.9)
	c.Process(block)

	if c.Gain() >= 0.5 {
		t.Fatalf("gain after 1 s of -0.9 dBFS: %v", c.Gain())
	}

	var peak float64
	for _, v := range block[24000:] {
		peak = max(peak, math.Abs(v))
	}

	if peak >= 0.9 {
		t.Fatalf("output peak %v not reduced", peak)
	}
}

func TestLimiterBelowThresholdIsPureDelay(t *testing.T) {
	t.Parallel()

	opts := drc.DefaultLimiterOptions()
	l := drc.NewLimiter(opts, 48000, 2)

	left, right := sine(4800, 0.5), sine(4800, -0.5)
	planes := [][]float64{append([]float64(nil), left...), append([]float64(nil), right...)}
	l.Process(planes)

	for i := opts.Lookahead; i < len(left); i++ {
		if planes[0][i] != left[i-opts.Lookahead] || planes[1][i] != right[i-opts.Lookahead] {
			t.Fatalf("sample %d altered", i)
		}
	}

	if l.Gain() != 1 {
		t.Fatalf("gain = %v", l.Gain())
	}
}

func TestLimiterHoldsThreshold(t *testing.T) {
	t.Parallel()

	opts := drc.DefaultLimiterOptions()
	opts.TruePeak = false
	l := drc.NewLimiter(opts, 48000, 1)

	signal := sine(48000, 0.5)
	for i := 12000; i < 12480; i++ {
		signal[i] *= 4
	}

	planes := [][]float64{signal}

	// Frame-sized calls, as a decoder would make them.
	for start := 0; start < len(signal); start += 960 {
		l.Process([][]float64{planes[0][start : start+960]})
	}

	threshold := fixed.DBToLin(opts.ThresholdDB)

	for i, v := range signal {
		if math.Abs(v) > threshold*1.001 {
			t.Fatalf("sample %d: %v above %v", i, v, threshold)
		}
	}

	// Well after the burst the gain is back to unity.
	if l.Gain() != 1 {
		t.Fatalf("gain = %v", l.Gain())
	}
}

func TestTruePeakLimiterCatchesInterSamplePeaks(t *testing.T) {
	t.Parallel()

	opts := drc.DefaultLimiterOptions()
	l := drc.NewLimiter(opts, 48000, 1)

	// fs/4 at 45 degrees: samples sit at 0.707 of the true peak.
	signal := make([]float64, 9600)
	for i := range signal {
		signal[i] = math.Sin(math.Pi/2*float64(i) + math.Pi/4)
	}

	l.Process([][]float64{signal})

	// Sample peaks alone (-3 dBFS) would never trigger.
	if l.Gain() > 0.95 {
		t.Fatalf("gain %v: true peak not detected", l.Gain())
	}
}

func TestParseProfile(t *testing.T) {
	t.Parallel()

	for name, want := range map[string]drc.Profile{
		"":       drc.ProfileOff,
		"AV":     drc.ProfileAV,
		"tv":     drc.ProfileTV,
		"mobile": drc.ProfileMobile,
	} {
		got, err := drc.ParseProfile(name)
		if err != nil || got != want {
			t.Errorf("%q: %v, %v", name, got, err)
		}
	}

	if _, err := drc.ParseProfile("cinema"); !errors.Is(err, drc.ErrUnknownProfile) {
		t.Fatalf("expected ErrUnknownProfile, got %v", err)
	}
}

func TestProcessorNormalizes(t *testing.T) {
	t.Parallel()

	p, err := drc.NewProcessor(drc.ProfileTV, 48000, 1, -30)
	if err != nil {
		t.Fatal(err)
	}

	input := sine(4800, 0.01)
	planes := [][]float64{append([]float64(nil), input...)}
	p.Process(planes)

	gain := fixed.DBToLin(6)
	for i := p.Latency(); i < len(input); i++ {
		if math.Abs(planes[0][i]-gain*input[i-p.Latency()]) > 1e-12 {
			t.Fatalf("sample %d: %v", i, planes[0][i])
		}
	}
}

func TestProcessorProfiles(t *testing.T) {
	t.Parallel()

	off, err := drc.NewProcessor(drc.ProfileOff, 48000, 2, -20)
	if err != nil {
		t.Fatal(err)
	}

	planes := [][]float64{{0.5}, {2}}
	off.Process(planes)

	if planes[0][0] != 0.5 || planes[1][0] != 2 || off.Latency() != 0 {
		t.Fatal("off profile altered audio")
	}

	mobile, err := drc.NewProcessor(drc.ProfileMobile, 48000, 2, -20)
	if err != nil {
		t.Fatal(err)
	}

	if mobile.Latency() != 480 {
		t.Fatalf("mobile latency = %d", mobile.Latency())
	}

	// Silence carries no loudness to normalize against.
	tv, err := drc.NewProcessor(drc.ProfileTV, 48000, 1, -120)
	if err != nil {
		t.Fatal(err)
	}

	planes = [][]float64{make([]float64, 480)}
	planes[0][0] = 0.25
	tv.Process(planes)

	if planes[0][240] != 0.25 {
		t.Fatalf("silence-measured content was rescaled: %v", planes[0][240])
	}

	if _, err = drc.NewProcessor(drc.Profile(9), 48000, 1, -20); !errors.Is(err, drc.ErrUnknownProfile) {
		t.Fatalf("expected ErrUnknownProfile, got %v", err)
	}
}
