package sporangium

import (
	"fmt"
	"strings"

	"github.com/farcloser/sporangium/internal/codec"
	"github.com/farcloser/sporangium/internal/drc"
	"github.com/farcloser/sporangium/internal/layout"
	"github.com/farcloser/sporangium/internal/recongain"
	"github.com/farcloser/sporangium/internal/types"
)

/*
Usage:

opts := sporangium.DefaultOptions()
opts.Chain = []string{"2.0.0", "5.1.2", "7.1.4"}

enc, err := sporangium.NewEncoder(opts)
for each frame { enc.Measure(planes, params) }
reports := enc.FinishMeasure()
for each frame { frame, err := enc.EncodeFrame(planes, params) }

dec, err := sporangium.NewDecoder(opts, "5.1.2")
for each frame { out, err := dec.DecodeFrame(frame) }

// Or over raw PCM, with one reader per pass
reports, err := sporangium.Measure(factory, format, opts)
results, err := sporangium.RoundTrip(factory, format, opts)
*/

// DefaultChain is used when Options.Chain is empty.
const DefaultChain = "2.0.0,5.1.2,7.1.4"

// Options configures a session. Zero values are replaced by DefaultOptions.
type Options struct {
	SampleRate int // default 48000
	FrameSize  int // samples per channel per frame, default 960

	// Chain lists the layouts of the scalable chain, lowest first. The last one is the input layout.
	Chain []string

	// ReconGainMode is one of rms, one-shot, incremental (default incremental).
	ReconGainMode string
	// DisableReconGain turns off recon gain computation and application.
	DisableReconGain bool

	Codec   string // default lpcm24
	PreSkip int    // codec delay in samples, default 0

	// DRC is the playback profile: off (default), av, tv, mobile.
	DRC string

	// Demixing is used by the pipelines for every frame (default type 1, weight index 0).
	Demixing types.DemixingParameters
}

func DefaultOptions() Options {
	return Options{
		SampleRate:    48000,
		FrameSize:     960,
		Chain:         strings.Split(DefaultChain, ","),
		ReconGainMode: recongain.ModeIncremental.String(),
		Codec:         "lpcm24",
		DRC:           drc.ProfileOff.String(),
		Demixing:      types.DefaultDemixingParameters(),
	}
}

func applyDefaults(opts *Options) {
	defaults := DefaultOptions()

	if opts.SampleRate == 0 {
		opts.SampleRate = defaults.SampleRate
	}

	if opts.FrameSize == 0 {
		opts.FrameSize = defaults.FrameSize
	}

	if len(opts.Chain) == 0 {
		opts.Chain = defaults.Chain
	}

	if opts.ReconGainMode == "" {
		opts.ReconGainMode = defaults.ReconGainMode
	}

	if opts.Codec == "" {
		opts.Codec = defaults.Codec
	}

	if opts.DRC == "" {
		opts.DRC = defaults.DRC
	}

	if opts.Demixing == (types.DemixingParameters{}) {
		opts.Demixing = defaults.Demixing
	}
}

// config is Options after defaulting and parsing.
type config struct {
	opts    Options
	chain   layout.Chain
	mode    recongain.Mode
	profile drc.Profile
}

func parseOptions(opts Options) (*config, error) {
	applyDefaults(&opts)

	if opts.SampleRate < 0 {
		return nil, fmt.Errorf("%w: sample rate %d", ErrInvalidOptions, opts.SampleRate)
	}

	if opts.FrameSize < 0 {
		return nil, fmt.Errorf("%w: frame size %d", ErrInvalidOptions, opts.FrameSize)
	}

	if opts.PreSkip < 0 || opts.PreSkip >= opts.FrameSize {
		return nil, fmt.Errorf("%w: pre-skip %d outside [0, %d)", ErrInvalidOptions, opts.PreSkip, opts.FrameSize)
	}

	chain, err := layout.ParseChain(strings.Join(opts.Chain, ","))
	if err != nil {
		return nil, err
	}

	mode, err := recongain.ParseModeName(opts.ReconGainMode)
	if err != nil {
		return nil, err
	}

	profile, err := drc.ParseProfile(opts.DRC)
	if err != nil {
		return nil, err
	}

	if err = opts.Demixing.Validate(); err != nil {
		return nil, err
	}

	// Only the name is checked here; every session creates its own codec instances.
	if _, err = codec.New(opts.Codec, opts.PreSkip); err != nil {
		return nil, err
	}

	return &config{opts: opts, chain: chain, mode: mode, profile: profile}, nil
}

// newCodecs creates and initializes one codec per layer of chain, up to and including layer last.
func (c *config) newCodecs(last int) ([]codec.Codec, error) {
	codecs := make([]codec.Codec, last+1)

	for i := range codecs {
		cdc, err := codec.New(c.opts.Codec, c.opts.PreSkip)
		if err != nil {
			return nil, err
		}

		if err = cdc.Init(c.opts.SampleRate, len(c.chain.Transmitted(i)), c.opts.FrameSize); err != nil {
			return nil, err
		}

		codecs[i] = cdc
	}

	return codecs, nil
}
