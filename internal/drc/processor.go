package drc

import (
	"errors"
	"fmt"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/farcloser/sporangium/internal/fixed"
	"github.com/farcloser/sporangium/internal/meter/loudness"
)

var ErrUnknownProfile = errors.New("unknown drc profile")

// Profile selects the playback dynamics chain.
type Profile int

const (
	// ProfileOff passes audio through untouched.
	ProfileOff Profile = iota
	// ProfileAV limits only.
	ProfileAV
	// ProfileTV normalizes to TargetLKFS, then limits.
	ProfileTV
	// ProfileMobile normalizes to TargetLKFS plus MobileBoostDB, compresses, then limits.
	ProfileMobile
)

const (
	TargetLKFS    = -24.0
	MobileBoostDB = 8.0
)

func ParseProfile(name string) (Profile, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "off", "none":
		return ProfileOff, nil
	case "av":
		return ProfileAV, nil
	case "tv":
		return ProfileTV, nil
	case "mobile":
		return ProfileMobile, nil
	}

	return 0, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
}

func (p Profile) String() string {
	switch p {
	case ProfileOff:
		return "off"
	case ProfileAV:
		return "av"
	case ProfileTV:
		return "tv"
	case ProfileMobile:
		return "mobile"
	}

	return fmt.Sprintf("profile(%d)", int(p))
}

// Processor runs a profile over planar frames in place.
type Processor struct {
	profile     Profile
	gain        float64
	compressors []*Compressor
	limiter     *Limiter
}

// NewProcessor builds the chain of profile for content measured at inputLKFS.
// Content without a loudness measurement is not normalized.
func NewProcessor(profile Profile, sampleRate, channels int, inputLKFS float64) (*Processor, error) {
	p := &Processor{profile: profile, gain: 1}

	var offsetDB float64

	switch profile {
	case ProfileOff:
		return p, nil
	case ProfileAV:
	case ProfileTV:
		offsetDB = TargetLKFS - inputLKFS
	case ProfileMobile:
		offsetDB = TargetLKFS - inputLKFS + MobileBoostDB
		p.compressors = make([]*Compressor, channels)

		for ch := range p.compressors {
			c, err := NewCompressor(DefaultCurve(), DefaultTimeConstants(), sampleRate, DefaultLimiterOptions().Lookahead)
			if err != nil {
				return nil, err
			}

			p.compressors[ch] = c
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProfile, profile)
	}

	if inputLKFS > loudness.NoContentLKFS && profile != ProfileAV {
		p.gain = fixed.DBToLin(offsetDB)
	}

	p.limiter = NewLimiter(DefaultLimiterOptions(), sampleRate, channels)

	return p, nil
}

// Latency is the total delay the chain adds, in samples.
func (p *Processor) Latency() int {
	var n int
	if len(p.compressors) > 0 {
		n += p.compressors[0].Latency()
	}

	if p.limiter != nil {
		n += p.limiter.Latency()
	}

	return n
}

// Process runs one frame through the chain.
func (p *Processor) Process(planes [][]float64) {
	if p.profile == ProfileOff {
		return
	}

	if p.gain != 1 {
		for _, plane := range planes {
			floats.Scale(p.gain, plane)
		}
	}

	for ch, c := range p.compressors {
		if ch < len(planes) {
			c.Process(planes[ch])
		}
	}

	p.limiter.Process(planes)
}
