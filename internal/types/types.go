//nolint:staticcheck // too dumb on Db vs. DB
package types

import (
	"errors"
	"fmt"

	"github.com/farcloser/sporangium/internal/fixed"
	"github.com/farcloser/sporangium/internal/layout"
)

var ErrDemixingParameters = errors.New("invalid demixing parameters")

type BitDepth uint

const (
	Depth16 BitDepth = 16
	Depth24 BitDepth = 24
	Depth32 BitDepth = 32
)

// PCMFormat describes raw interleaved little-endian signed PCM.
type PCMFormat struct {
	SampleRate int
	BitDepth   BitDepth
	Channels   uint
}

/*
Demixing parameters

| Type | alpha | beta  | gamma | delta | Typical content            |
|------|-------|-------|-------|-------|----------------------------|
| 1    | 1     | 1     | 0.707 | 0.707 | Default, dense surrounds   |
| 2    | 0.707 | 0.707 | 0.707 | 0.707 | Wide, diffuse surrounds    |
| 3    | 1     | 0.866 | 0.866 | 0.866 | Strong rear, soft surround |

alpha/beta fold 7.1 side+back into 5.1 surrounds, gamma folds back heights into front heights,
delta folds surrounds into the 3.x front pair and (scaled by the height weight w) into top channels.

WeightIndex 1 ramps w up by one step (0.1 of its state) per frame, 0 ramps it down.
*/

// DemixingParameters are the per-frame matrix selection shared by encoder and decoder.
type DemixingParameters struct {
	Type        int // 1..3
	WeightIndex int // 0 or 1
}

// DefaultDemixingParameters returns type 1 with the height weight ramping down.
func DefaultDemixingParameters() DemixingParameters {
	return DemixingParameters{Type: 1}
}

func (p DemixingParameters) Validate() error {
	if p.Type < 1 || p.Type > 3 {
		return fmt.Errorf("%w: type %d", ErrDemixingParameters, p.Type)
	}

	if p.WeightIndex != 0 && p.WeightIndex != 1 {
		return fmt.Errorf("%w: weight index %d", ErrDemixingParameters, p.WeightIndex)
	}

	return nil
}

// NotSignaled marks a recon-gain slot that carries no correction.
const NotSignaled uint8 = 0xFF

// LayerHeader is the per-layout part of a frame header.
// Loudness and peaks are Q7.8 dB. GainQ8 is the downmix makeup gain, Q7.8 dB, never positive.
// ReconGain is indexed by playout position; each entry is a recon-gain table index or NotSignaled.
type LayerHeader struct {
	LoudnessQ8    int16
	DigitalPeakQ8 int16
	TruePeakQ8    int16
	GainQ8        int16
	ReconGain     [layout.MaxChannels]uint8
}

// Gain is the linear makeup gain as both ends derive it from the quantized value.
func (h *LayerHeader) Gain() float64 {
	return fixed.GainFromQ8(h.GainQ8)
}

// ClearReconGain marks every slot as not signaled.
func (h *LayerHeader) ClearReconGain() {
	for i := range h.ReconGain {
		h.ReconGain[i] = NotSignaled
	}
}

// Mdhr is the per-frame metadata header: demixing parameters plus one LayerHeader per layout.
type Mdhr struct {
	Params DemixingParameters
	Layers [layout.NumLayouts]LayerHeader
}

// NewMdhr returns a header with default parameters, unity gains and no recon gain.
func NewMdhr() *Mdhr {
	h := &Mdhr{Params: DefaultDemixingParameters()}
	for i := range h.Layers {
		h.Layers[i].ClearReconGain()
	}

	return h
}

// Layer returns the header of layout l.
func (h *Mdhr) Layer(l layout.Layout) *LayerHeader {
	return &h.Layers[l]
}

/*
Loudness interpretation (BS.1770 / EBU R128)

| IntegratedLKFS | Interpretation                                  |
|----------------|-------------------------------------------------|
| -120           | No content: nothing passed the -70 LKFS gate.   |
| < -31          | Very quiet. Likely needs normalization.         |
| -31 to -16     | Broadcast (-24/-23) to streaming (-16) targets. |
| > -16          | Loud master. DRC/limiter will work hard.        |

TruePeakDb above -1 dBTP means the downmix will be attenuated by a makeup gain.
*/

// Loudness contains measurement results for one layout.
type Loudness struct {
	IntegratedLKFS float64
	MomentaryMax   float64
	ShortTermMax   float64
	SamplePeakDb   float64
	TruePeakDb     float64
	Frames         uint64
}

// LayerReport summarizes what one layout of a chain looked like across a measurement pass.
type LayerReport struct {
	Layout   layout.Layout
	Loudness Loudness
	GainDb   float64 // makeup gain after Q7.8 quantization
	Boosted  int     // number of channels the makeup gain applies to
}

// RoundTripChannel is the reconstruction quality of one channel.
type RoundTripChannel struct {
	Channel layout.ChannelID
	SNRDb   float64
	// Frequency of the strongest residual component, 0 when the residual is silent.
	ResidualPeakHz float64
}

// RoundTrip contains reconstruction results for one decoded layout.
type RoundTrip struct {
	Layout   layout.Layout
	MinSNRDb float64
	Channels []RoundTripChannel
	Frames   uint64
}

// Clipping counts runs of two or more samples at or beyond full scale.
// For a chain layer it covers the transmitted channels after makeup gain, which is what the codec saturates.
type Clipping struct {
	Layout         layout.Layout
	Events         uint64
	ClippedSamples uint64
	LongestRun     uint64
	Samples        uint64
}
