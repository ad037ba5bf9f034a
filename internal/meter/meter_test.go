package meter_test

import (
	"bytes"
	"errors"
	"math"
	"testing"
	"testing/iotest"

	"github.com/farcloser/sporangium/internal/layout"
	"github.com/farcloser/sporangium/internal/meter"
	"github.com/farcloser/sporangium/internal/meter/loudness"
	"github.com/farcloser/sporangium/internal/pcm"
	"github.com/farcloser/sporangium/internal/types"
)

func stereoSine(seconds int) [][]float64 {
	n := seconds * 48000
	planes := [][]float64{make([]float64, n), make([]float64, n)}

	for i := range n {
		v := 0.5 * math.Sin(2*math.Pi*997*float64(i)/48000)
		planes[0][i] = v
		planes[1][i] = v
	}

	return planes
}

func TestAnalyzeRawPCM(t *testing.T) {
	t.Parallel()

	raw, err := pcm.Encode(nil, stereoSine(4), types.Depth24)
	if err != nil {
		t.Fatal(err)
	}

	format := types.PCMFormat{SampleRate: 48000, BitDepth: types.Depth24, Channels: 2}

	// One byte at a time exercises frames split across reads.
	result, err := meter.Analyze(iotest.OneByteReader(bytes.NewReader(raw[:48000*6])), format, layout.Stereo)
	if err != nil {
		t.Fatal(err)
	}

	if result.Frames != 48000 {
		t.Errorf("frames = %d", result.Frames)
	}

	result, err = meter.Analyze(bytes.NewReader(raw), format, layout.Stereo)
	if err != nil {
		t.Fatal(err)
	}

	if math.Abs(result.IntegratedLKFS-(-6.02)) > 0.05 {
		t.Errorf("integrated = %.3f", result.IntegratedLKFS)
	}

	if math.Abs(result.SamplePeakDb-(-6.02)) > 0.01 {
		t.Errorf("sample peak = %.3f dB", result.SamplePeakDb)
	}

	if result.TruePeakDb < result.SamplePeakDb {
		t.Errorf("true peak %.3f below sample peak %.3f", result.TruePeakDb, result.SamplePeakDb)
	}
}

func TestAnalyzeRejectsLayoutMismatch(t *testing.T) {
	t.Parallel()

	format := types.PCMFormat{SampleRate: 48000, BitDepth: types.Depth16, Channels: 2}
	if _, err := meter.Analyze(bytes.NewReader(nil), format, layout.L510); !errors.Is(err, meter.ErrChannelMismatch) {
		t.Fatalf("expected ErrChannelMismatch, got %v", err)
	}
}

func TestHeaderFromSilence(t *testing.T) {
	t.Parallel()

	m := meter.New(48000, layout.Mono)
	m.Process([][]float64{make([]float64, 48000)})

	var h types.LayerHeader

	m.Header(&h)

	if h.LoudnessQ8 != int16(loudness.NoContentLKFS*256) {
		t.Errorf("loudness = %d", h.LoudnessQ8)
	}

	// Silence maps to the 16-bit floor, -90.3 dB.
	if h.TruePeakQ8 != -23119 || h.DigitalPeakQ8 != -23119 {
		t.Errorf("peaks = %d / %d", h.DigitalPeakQ8, h.TruePeakQ8)
	}
}
