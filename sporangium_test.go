package sporangium_test

import (
	"bytes"
	"errors"
	"io"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/farcloser/sporangium"
	"github.com/farcloser/sporangium/internal/codec"
	"github.com/farcloser/sporangium/internal/drc"
	"github.com/farcloser/sporangium/internal/layout"
	"github.com/farcloser/sporangium/internal/pcm"
	"github.com/farcloser/sporangium/internal/recongain"
	"github.com/farcloser/sporangium/internal/types"
	"github.com/farcloser/sporangium/internal/upmix"
)

// factory encodes planes as 24-bit PCM and serves it for every pass.
func factory(t *testing.T, planes [][]float64) (sporangium.ReaderFactory, types.PCMFormat) {
	t.Helper()

	data, err := pcm.Encode(nil, planes, types.Depth24)
	if err != nil {
		t.Fatal(err)
	}

	format := types.PCMFormat{SampleRate: 48000, BitDepth: types.Depth24, Channels: uint(len(planes))}

	return func() (io.Reader, error) { return bytes.NewReader(data), nil }, format
}

func noise(seed uint64, channels, samples int, amp float64) [][]float64 {
	rng := rand.New(rand.NewPCG(seed, seed))
	planes := make([][]float64, channels)

	for ch := range planes {
		planes[ch] = make([]float64, samples)
		for i := range planes[ch] {
			planes[ch][i] = amp * (rng.Float64()*2 - 1)
		}
	}

	return planes
}

func sine(samples int, freq, amp float64) []float64 {
	out := make([]float64, samples)
	for i := range out {
		out[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/48000)
	}

	return out
}

func TestOptionsRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*sporangium.Options)
		want   error
	}{
		{name: "codec", mutate: func(o *sporangium.Options) { o.Codec = "opus" }, want: codec.ErrUnknownCodec},
		{name: "chain", mutate: func(o *sporangium.Options) { o.Chain = []string{"7.1.4", "2.0.0"} }, want: layout.ErrInvalidChain},
		{name: "layout", mutate: func(o *sporangium.Options) { o.Chain = []string{"6.1.0"} }, want: layout.ErrUnknownLayout},
		{name: "mode", mutate: func(o *sporangium.Options) { o.ReconGainMode = "always" }, want: recongain.ErrMode},
		{name: "drc", mutate: func(o *sporangium.Options) { o.DRC = "cinema" }, want: drc.ErrUnknownProfile},
		{name: "pre-skip", mutate: func(o *sporangium.Options) { o.PreSkip = 960 }, want: sporangium.ErrInvalidOptions},
		{name: "short pre-skip", mutate: func(o *sporangium.Options) { o.PreSkip = 20 }, want: upmix.ErrPreSkip},
		{name: "demixing", mutate: func(o *sporangium.Options) { o.Demixing.Type = 4 }, want: types.ErrDemixingParameters},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			opts := sporangium.DefaultOptions()
			tt.mutate(&opts)

			if _, err := sporangium.NewEncoder(opts); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestZeroOptionsUseDefaults(t *testing.T) {
	t.Parallel()

	enc, err := sporangium.NewEncoder(sporangium.Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer enc.Close()

	if enc.Chain().String() != "2.0.0>5.1.2>7.1.4" {
		t.Fatalf("chain %s", enc.Chain().String())
	}

	dec, err := sporangium.NewDecoder(sporangium.Options{}, "")
	if err != nil {
		t.Fatal(err)
	}
	defer dec.Close()

	if dec.Target() != layout.L714 || dec.Latency() != 0 {
		t.Fatalf("target %s, latency %d", dec.Target(), dec.Latency())
	}
}

func TestRoundTripAllLayouts(t *testing.T) {
	t.Parallel()

	opts := sporangium.DefaultOptions()
	opts.FrameSize = 480
	opts.PreSkip = 60

	const frames = 20

	read, format := factory(t, noise(7, layout.L714.Count(), frames*opts.FrameSize, 0.5))

	result, err := sporangium.RoundTrip(read, format, opts)
	if err != nil {
		t.Fatal(err)
	}

	if result.Chain != "2.0.0>5.1.2>7.1.4" || len(result.Layers) != 3 || len(result.RoundTrip) != 3 {
		t.Fatalf("result %+v", result)
	}

	for _, rt := range result.RoundTrip {
		if rt.Frames != frames {
			t.Errorf("%s: %d frames", rt.Layout, rt.Frames)
		}

		if rt.MinSNRDb <= 20 {
			t.Errorf("%s: min SNR %.1f dB", rt.Layout, rt.MinSNRDb)
		}

		if len(rt.Channels) != rt.Layout.Count() {
			t.Errorf("%s: %d channels", rt.Layout, len(rt.Channels))
		}
	}

	// Stereo is folded from twelve channels of noise: its makeup gain is an attenuation.
	if result.Layers[0].Boosted != 2 || result.Layers[0].GainDb >= 0 {
		t.Errorf("stereo layer %+v", result.Layers[0])
	}

	// The makeup gains keep every transmitted channel under full scale.
	if len(result.Clipping) != 3 {
		t.Fatalf("%d clipping reports", len(result.Clipping))
	}

	for _, clip := range result.Clipping {
		if clip.Events != 0 || clip.Samples == 0 {
			t.Errorf("%s: %+v", clip.Layout, clip)
		}
	}
}

func TestUnmeasuredFoldClips(t *testing.T) {
	t.Parallel()

	opts := sporangium.DefaultOptions()
	opts.Chain = []string{"1.0.0", "2.0.0"}
	opts.FrameSize = 480

	enc, err := sporangium.NewEncoder(opts)
	if err != nil {
		t.Fatal(err)
	}
	defer enc.Close()

	full := make([]float64, 480)
	for i := range full {
		full[i] = 1
	}

	// Without a measurement pass the makeup gain is unity and the mono fold sits at full scale.
	if _, err = enc.EncodeFrame([][]float64{full, full}, opts.Demixing); err != nil {
		t.Fatal(err)
	}

	for _, clip := range enc.Clipping() {
		if clip.Events != 1 || clip.ClippedSamples != 480 || clip.Samples != 480 {
			t.Errorf("%s: %+v", clip.Layout, clip)
		}
	}
}

func TestMakeupGain(t *testing.T) {
	t.Parallel()

	opts := sporangium.DefaultOptions()
	opts.Chain = []string{"1.0.0", "2.0.0"}

	tone := sine(48000, 997, 0.99)
	read, format := factory(t, [][]float64{tone, tone})

	result, err := sporangium.Measure(read, format, opts)
	if err != nil {
		t.Fatal(err)
	}

	mono, stereo := result.Layers[0], result.Layers[1]

	// The mono fold of two identical channels peaks at 0.99 and is brought under -1 dBTP.
	if mono.Boosted != 1 || mono.GainDb > -0.8 || mono.GainDb < -1.2 {
		t.Fatalf("mono %+v", mono)
	}

	// Stereo is the input: nothing to attenuate.
	if stereo.Boosted != 0 || stereo.GainDb != 0 {
		t.Fatalf("stereo %+v", stereo)
	}

	if stereo.Loudness.IntegratedLKFS < -10 || stereo.Loudness.IntegratedLKFS > 0 {
		t.Fatalf("stereo loudness %v", stereo.Loudness.IntegratedLKFS)
	}

	if result.RoundTrip != nil {
		t.Fatal("measurement returned round trip results")
	}
}

func TestTranscodeIsAligned(t *testing.T) {
	t.Parallel()

	for _, preSkip := range []int{0, 60} {
		opts := sporangium.DefaultOptions()
		opts.Chain = []string{"1.0.0", "2.0.0"}
		opts.FrameSize = 480
		opts.PreSkip = preSkip

		// Not a whole number of frames.
		const samples = 480*7 + 123

		input := [][]float64{sine(samples, 440, 0.3), sine(samples, 1000, 0.2)}
		read, format := factory(t, input)

		var out [2][]float64

		_, err := sporangium.Transcode(read, format, opts, "2.0.0", func(planes [][]float64) error {
			for ch := range planes {
				out[ch] = append(out[ch], planes[ch]...)
			}

			return nil
		})
		if err != nil {
			t.Fatal(err)
		}

		for ch := range input {
			if len(out[ch]) != samples {
				t.Fatalf("pre-skip %d: channel %d has %d samples", preSkip, ch, len(out[ch]))
			}

			for i := range input[ch] {
				if math.Abs(out[ch][i]-input[ch][i]) > 1e-5 {
					t.Fatalf("pre-skip %d: channel %d sample %d: %v, want %v", preSkip, ch, i, out[ch][i], input[ch][i])
				}
			}
		}
	}
}

func TestDecoderScalability(t *testing.T) {
	t.Parallel()

	opts := sporangium.DefaultOptions()
	opts.FrameSize = 480

	enc, err := sporangium.NewEncoder(opts)
	if err != nil {
		t.Fatal(err)
	}
	defer enc.Close()

	frame, err := enc.EncodeFrame(noise(3, 12, 480, 0.25), opts.Demixing)
	if err != nil {
		t.Fatal(err)
	}

	if len(frame.Payloads) != 3 {
		t.Fatalf("%d payloads", len(frame.Payloads))
	}

	stereo, err := sporangium.NewDecoder(opts, "2.0.0")
	if err != nil {
		t.Fatal(err)
	}
	defer stereo.Close()

	// A stereo decoder only needs the base layer.
	base := &sporangium.Frame{Header: frame.Header, Payloads: frame.Payloads[:1]}

	out, err := stereo.DecodeFrame(base)
	if err != nil {
		t.Fatal(err)
	}

	if len(out) != 2 || len(out[0]) != 480 {
		t.Fatalf("stereo output %d x %d", len(out), len(out[0]))
	}

	full, err := sporangium.NewDecoder(opts, "")
	if err != nil {
		t.Fatal(err)
	}
	defer full.Close()

	if _, err = full.DecodeFrame(base); !errors.Is(err, sporangium.ErrMissingLayer) {
		t.Fatalf("expected ErrMissingLayer, got %v", err)
	}

	if _, err = sporangium.NewDecoder(opts, "5.1.0"); !errors.Is(err, upmix.ErrUnsupportedTarget) {
		t.Fatalf("expected ErrUnsupportedTarget, got %v", err)
	}
}

func TestEncoderRejects(t *testing.T) {
	t.Parallel()

	opts := sporangium.DefaultOptions()
	opts.FrameSize = 480

	enc, err := sporangium.NewEncoder(opts)
	if err != nil {
		t.Fatal(err)
	}
	defer enc.Close()

	if _, err = enc.EncodeFrame(noise(1, 8, 480, 0.1), opts.Demixing); err == nil {
		t.Fatal("8 channels accepted for 7.1.4")
	}

	if err = enc.Measure(noise(1, 12, 480, 0.1), types.DemixingParameters{Type: 9}); !errors.Is(err, types.ErrDemixingParameters) {
		t.Fatalf("expected ErrDemixingParameters, got %v", err)
	}

	enc.FinishMeasure()

	if err = enc.Measure(noise(1, 12, 480, 0.1), opts.Demixing); !errors.Is(err, sporangium.ErrMeasureFinished) {
		t.Fatalf("expected ErrMeasureFinished, got %v", err)
	}

	read, format := factory(t, noise(1, 2, 480, 0.1))
	if _, err = sporangium.Measure(read, format, opts); !errors.Is(err, sporangium.ErrChannelMismatch) {
		t.Fatalf("expected ErrChannelMismatch, got %v", err)
	}
}

func TestReconGainSignaled(t *testing.T) {
	t.Parallel()

	opts := sporangium.DefaultOptions()
	opts.Chain = []string{"1.0.0", "2.0.0"}
	opts.FrameSize = 480
	opts.ReconGainMode = "rms"

	enc, err := sporangium.NewEncoder(opts)
	if err != nil {
		t.Fatal(err)
	}
	defer enc.Close()

	// Right channel silent: the derived R2 is signaled as silent in rms mode.
	input := [][]float64{sine(480, 440, 0.5), make([]float64, 480)}

	frame, err := enc.EncodeFrame(input, opts.Demixing)
	if err != nil {
		t.Fatal(err)
	}

	stereo := frame.Header.Layer(layout.Stereo)
	if stereo.ReconGain[layout.Stereo.Index(layout.R2)] != recongain.Silent {
		t.Fatalf("R2 recon gain %d", stereo.ReconGain[layout.Stereo.Index(layout.R2)])
	}

	if stereo.ReconGain[layout.Stereo.Index(layout.L2)] != types.NotSignaled {
		t.Fatal("transmitted L2 signaled")
	}

	if frame.Header.Layer(layout.Mono).ReconGain[0] != types.NotSignaled {
		t.Fatal("base layer signaled")
	}
}
