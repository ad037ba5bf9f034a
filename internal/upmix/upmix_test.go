package upmix_test

import (
	"errors"
	"math"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/farcloser/sporangium/internal/downmix"
	"github.com/farcloser/sporangium/internal/gain"
	"github.com/farcloser/sporangium/internal/layout"
	"github.com/farcloser/sporangium/internal/types"
	"github.com/farcloser/sporangium/internal/upmix"
)

// encoder mirrors what the encoding side does with a frame: downmix, then makeup gain on flagged planes.
type encoder struct {
	chain layout.Chain
	dmx   *downmix.Downmixer
	flags [][]bool
}

func newEncoder(t *testing.T, chain layout.Chain, frameSize int) *encoder {
	t.Helper()

	dmx, err := downmix.New(chain, frameSize)
	if err != nil {
		t.Fatal(err)
	}

	return &encoder{chain: chain, dmx: dmx, flags: gain.Flags(chain)}
}

// encode returns copies of every transmitted plane, concatenated in scalable order.
func (e *encoder) encode(t *testing.T, input [][]float64, h *types.Mdhr) [][]float64 {
	t.Helper()

	if err := e.dmx.Downmix(input, h.Params); err != nil {
		t.Fatal(err)
	}

	var out [][]float64

	for i := range e.chain.Len() {
		g := h.Layer(e.chain.Layout(i)).Gain()

		for j, plane := range e.dmx.Layer(i) {
			c := slices.Clone(plane)
			if e.flags[i][j] {
				gain.Down(c, g)
			}

			out = append(out, c)
		}
	}

	return out
}

func noise(rng *rand.Rand, channels, frameSize int) [][]float64 {
	planes := make([][]float64, channels)
	for i := range planes {
		planes[i] = make([]float64, frameSize)
		for j := range planes[i] {
			planes[i][j] = rng.Float64() - 0.5
		}
	}

	return planes
}

func snr(orig, recon []float64) float64 {
	var sig, nse float64

	for i := range orig {
		d := orig[i] - recon[i]
		sig += orig[i] * orig[i]
		nse += d * d
	}

	if nse == 0 {
		return math.Inf(1)
	}

	return 10 * math.Log10(sig/nse)
}

func header(rng *rand.Rand, chain layout.Chain, params types.DemixingParameters) *types.Mdhr {
	h := types.NewMdhr()
	h.Params = params

	for _, l := range chain.Layouts() {
		h.Layer(l).GainQ8 = -int16(rng.IntN(1024))
	}

	return h
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	chains := []string{
		"1.0.0,2.0.0",
		"2.0.0,5.1.0,7.1.0",
		"5.1.0,7.1.0",
		"2.0.0,3.1.2,5.1.2,5.1.4,7.1.4",
		"1.0.0,2.0.0,5.1.0,5.1.2,5.1.4,7.1.4",
		"2.0.0,5.1.2,7.1.2,7.1.4",
		"3.1.2,7.1.4",
		"1.0.0,2.0.0,3.1.2,5.1.2,7.1.2",
	}

	for _, name := range chains {
		for demixType := 1; demixType <= 3; demixType++ {
			chain, err := layout.ParseChain(name)
			if err != nil {
				t.Fatal(err)
			}

			t.Run(chain.String(), func(t *testing.T) {
				t.Parallel()

				const frameSize = 256

				rng := rand.New(rand.NewPCG(uint64(demixType), 7))
				enc := newEncoder(t, chain, frameSize)

				dec, err := upmix.New(chain, frameSize, 0)
				if err != nil {
					t.Fatal(err)
				}

				for frame := range 6 {
					params := types.DemixingParameters{Type: demixType, WeightIndex: frame / 2 % 2}
					h := header(rng, chain, params)
					input := noise(rng, chain.Top().Count(), frameSize)
					transmitted := enc.encode(t, input, h)

					if err = dec.SetHeader(h); err != nil {
						t.Fatal(err)
					}

					for k, l := range chain.Layouts() {
						out, err := dec.Demix(transmitted[:l.Count()], l, false)
						if err != nil {
							t.Fatal(err)
						}

						want := enc.dmx.Mixed(l)
						if k == chain.Len()-1 {
							want = input
						}

						for ch := range out {
							if s := snr(want[ch], out[ch]); s < 20 {
								t.Fatalf("frame %d %s %s: snr %.1f dB", frame, l, l.Channels()[ch], s)
							}
						}
					}
				}
			})
		}
	}
}

// TestRoundTripAcrossPreSkip delays the transmitted stream the way a codec would:
// the head of every decoded frame belongs to the previous encoded frame, with its own parameters.
func TestRoundTripAcrossPreSkip(t *testing.T) {
	t.Parallel()

	const (
		frameSize = 64
		delay     = 8
	)

	chain, err := layout.ParseChain("2.0.0,3.1.2,5.1.2,7.1.4")
	if err != nil {
		t.Fatal(err)
	}

	rng := rand.New(rand.NewPCG(11, 12))
	enc := newEncoder(t, chain, frameSize)

	dec, err := upmix.New(chain, frameSize, delay)
	if err != nil {
		t.Fatal(err)
	}

	top := chain.Top()
	prevTx := noise(rng, top.Count(), frameSize)
	prevIn := noise(rng, top.Count(), frameSize)

	for i := range prevTx {
		clear(prevTx[i])
		clear(prevIn[i])
	}

	shift := func(prev, cur [][]float64) [][]float64 {
		out := make([][]float64, len(cur))
		for i := range cur {
			out[i] = append(slices.Clone(prev[i][frameSize-delay:]), cur[i][:frameSize-delay]...)
		}

		return out
	}

	for frame := range 8 {
		params := types.DemixingParameters{Type: frame%3 + 1, WeightIndex: frame % 2}
		h := header(rng, chain, params)
		input := noise(rng, top.Count(), frameSize)
		transmitted := enc.encode(t, input, h)

		if err = dec.SetHeader(h); err != nil {
			t.Fatal(err)
		}

		out, err := dec.Demix(shift(prevTx, transmitted), top, false)
		if err != nil {
			t.Fatal(err)
		}

		want := shift(prevIn, input)

		for ch := range out {
			for i := range out[ch] {
				if math.Abs(out[ch][i]-want[ch][i]) > 1e-9 {
					t.Fatalf("frame %d %s sample %d: %v, want %v", frame, top.Channels()[ch], i, out[ch][i], want[ch][i])
				}
			}
		}

		prevTx, prevIn = transmitted, input
	}
}

func TestScenario714(t *testing.T) {
	t.Parallel()

	const frameSize = 960

	chain, err := layout.ParseChain("1.0.0,2.0.0,3.1.2,5.1.2,7.1.2,7.1.4")
	if err != nil {
		t.Fatal(err)
	}

	rng := rand.New(rand.NewPCG(714, 48000))
	enc := newEncoder(t, chain, frameSize)

	dec, err := upmix.New(chain, frameSize, 0)
	if err != nil {
		t.Fatal(err)
	}

	params := types.DemixingParameters{Type: 2, WeightIndex: 0}

	for range 3 {
		h := types.NewMdhr()
		h.Params = params

		input := noise(rng, 12, frameSize)
		transmitted := enc.encode(t, input, h)

		if err = dec.SetHeader(h); err != nil {
			t.Fatal(err)
		}

		out, err := dec.Demix(transmitted, layout.L714, true)
		if err != nil {
			t.Fatal(err)
		}

		for _, ch := range layout.L710.Channels() {
			pos := layout.L714.Index(ch)
			if s := snr(input[pos], out[pos]); s < 20 {
				t.Errorf("%s: snr %.1f dB", ch, s)
			}
		}
	}
}

func TestWeightHistoryFollowsEncoder(t *testing.T) {
	t.Parallel()

	chain, err := layout.ParseChain("3.1.2,5.1.2")
	if err != nil {
		t.Fatal(err)
	}

	enc := newEncoder(t, chain, 32)

	dec, err := upmix.New(chain, 32, 0)
	if err != nil {
		t.Fatal(err)
	}

	rng := rand.New(rand.NewPCG(1, 1))

	var x, w, previous float64

	for frame := range 30 {
		h := types.NewMdhr()
		h.Params = types.DemixingParameters{Type: 1, WeightIndex: rng.IntN(2)}
		enc.encode(t, noise(rng, 8, 32), h)

		x, w = downmix.StepWeight(h.Params.WeightIndex, x)

		if err = dec.SetHeader(h); err != nil {
			t.Fatal(err)
		}

		current, last := dec.Weight()
		if current != w || last != previous {
			t.Fatalf("frame %d: decoder w %v/%v, encoder %v/%v", frame, current, last, w, previous)
		}

		previous = w
	}
}

func TestReconGainSmoothing(t *testing.T) {
	t.Parallel()

	chain, err := layout.ParseChain("1.0.0,2.0.0")
	if err != nil {
		t.Fatal(err)
	}

	dec, err := upmix.New(chain, 16, 0)
	if err != nil {
		t.Fatal(err)
	}

	// M = 0.5 and L2 = 0: R2 reconstructs to 1 before recon gain.
	transmitted := [][]float64{make([]float64, 16), make([]float64, 16)}
	for i := range transmitted[0] {
		transmitted[0][i] = 0.5
	}

	h := types.NewMdhr()
	h.Layer(layout.Stereo).ReconGain[1] = 7

	for _, want := range []float64{0.875, 0.78125} {
		if err = dec.SetHeader(h); err != nil {
			t.Fatal(err)
		}

		out, err := dec.Demix(transmitted, layout.Stereo, true)
		if err != nil {
			t.Fatal(err)
		}

		// The moving average works on the quantized table value.
		if math.Abs(out[1][5]-want) > 1e-4 {
			t.Errorf("R2 = %v, want %v", out[1][5], want)
		}

		if out[0][5] != 0 {
			t.Errorf("L2 = %v", out[0][5])
		}
	}

	if transmitted[0][0] != 0.5 {
		t.Error("caller planes were modified")
	}
}

func TestWindows(t *testing.T) {
	t.Parallel()

	start, stop, err := upmix.Windows(960, 312)
	if err != nil {
		t.Fatal(err)
	}

	if start[0] != 0 || stop[0] != 1 || start[312] != 1 || stop[312] != 0 || start[959] != 1 {
		t.Fatalf("window edges: start %v/%v stop %v/%v", start[0], start[312], stop[0], stop[312])
	}

	for i := 1; i < 960; i++ {
		if start[i] < start[i-1] || stop[i] > stop[i-1] {
			t.Fatalf("windows not monotonic at %d", i)
		}
	}

	wrapped, _, err := upmix.Windows(960, 960+312)
	if err != nil || !slices.Equal(wrapped, start) {
		t.Fatal("pre-skip should wrap modulo the frame size")
	}

	start, _, err = upmix.Windows(960, 0)
	if err != nil || start[0] != 1 {
		t.Fatal("zero pre-skip should switch immediately")
	}

	if _, _, err = upmix.Windows(960, 20); !errors.Is(err, upmix.ErrPreSkip) {
		t.Fatalf("short pre-skip: %v", err)
	}
}

func TestDemixRejects(t *testing.T) {
	t.Parallel()

	chain, err := layout.ParseChain("2.0.0,5.1.0")
	if err != nil {
		t.Fatal(err)
	}

	if _, err = upmix.New(chain, 960, 20); !errors.Is(err, upmix.ErrPreSkip) {
		t.Fatalf("pre-skip: %v", err)
	}

	dec, err := upmix.New(chain, 8, 0)
	if err != nil {
		t.Fatal(err)
	}

	if _, err = dec.Demix(noise(rand.New(rand.NewPCG(0, 0)), 8, 8), layout.L710, false); !errors.Is(err, upmix.ErrUnsupportedTarget) {
		t.Errorf("target: %v", err)
	}

	if _, err = dec.Demix(noise(rand.New(rand.NewPCG(0, 0)), 3, 8), layout.L510, false); !errors.Is(err, upmix.ErrChannelCount) {
		t.Errorf("channels: %v", err)
	}

	if _, err = dec.Demix(noise(rand.New(rand.NewPCG(0, 0)), 6, 4), layout.L510, false); !errors.Is(err, upmix.ErrFrameSize) {
		t.Errorf("frame size: %v", err)
	}

	h := types.NewMdhr()
	h.Params.Type = 0

	if err = dec.SetHeader(h); !errors.Is(err, types.ErrDemixingParameters) {
		t.Errorf("params: %v", err)
	}
}
