// Package meter combines loudness, sample-peak and true-peak measurement over the channels of a layout.
package meter

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/farcloser/primordium/fault"
	"gonum.org/v1/gonum/floats"

	"github.com/farcloser/sporangium/internal/fixed"
	"github.com/farcloser/sporangium/internal/layout"
	"github.com/farcloser/sporangium/internal/meter/loudness"
	"github.com/farcloser/sporangium/internal/meter/truepeak"
	"github.com/farcloser/sporangium/internal/pcm"
	"github.com/farcloser/sporangium/internal/types"
)

var ErrChannelMismatch = errors.New("channel count does not match layout")

const readFrames = 4096

// Meter measures one layout. Planes passed to Process follow the layout's playout order.
type Meter struct {
	loudness   *loudness.Meter
	truePeak   []truepeak.Meter
	samplePeak float64
	frames     uint64
}

func New(sampleRate int, l layout.Layout) *Meter {
	return &Meter{
		loudness: loudness.ForLayout(sampleRate, l),
		truePeak: make([]truepeak.Meter, l.Count()),
	}
}

// Process measures one block of planar samples.
func (m *Meter) Process(planes [][]float64) {
	m.loudness.Process(planes)

	for ch := range min(len(planes), len(m.truePeak)) {
		if len(planes[ch]) == 0 {
			continue
		}

		m.samplePeak = max(m.samplePeak, floats.Max(planes[ch]), -floats.Min(planes[ch]))
		m.truePeak[ch].Process(planes[ch])
	}

	if len(planes) > 0 {
		m.frames += uint64(len(planes[0]))
	}
}

// TruePeak is the linear true peak over all channels.
func (m *Meter) TruePeak() float64 {
	var peak float64
	for i := range m.truePeak {
		peak = max(peak, m.truePeak[i].Peak())
	}

	return peak
}

// Result summarizes the measurement so far.
func (m *Meter) Result() types.Loudness {
	return types.Loudness{
		IntegratedLKFS: m.loudness.Integrated(),
		MomentaryMax:   m.loudness.MaxMomentary(),
		ShortTermMax:   m.loudness.MaxShortTerm(),
		SamplePeakDb:   peakDb(m.samplePeak),
		TruePeakDb:     peakDb(m.TruePeak()),
		Frames:         m.frames,
	}
}

// Header fills the loudness fields of a layer header: LKFS and both peaks as Q7.8 dB.
func (m *Meter) Header(h *types.LayerHeader) {
	h.LoudnessQ8 = fixed.Q8(m.loudness.Integrated())
	h.DigitalPeakQ8 = fixed.Q8(fixed.LinToDB(m.samplePeak))
	h.TruePeakQ8 = fixed.Q8(fixed.LinToDB(m.TruePeak()))
}

func peakDb(lin float64) float64 {
	if lin <= 0 {
		return loudness.NoContentLKFS
	}

	return 20 * math.Log10(lin)
}

// Analyze measures raw interleaved PCM read from r, interpreting channels in the playout order of l.
func Analyze(r io.Reader, format types.PCMFormat, l layout.Layout) (*types.Loudness, error) {
	if int(format.Channels) != l.Count() { //nolint:gosec // audio format values are small constants
		return nil, fmt.Errorf("%w: %d channels for %s", ErrChannelMismatch, format.Channels, l)
	}

	frameSize := pcm.FrameBytes(format.BitDepth, l.Count())
	if _, err := pcm.Scale(format.BitDepth); err != nil {
		return nil, err
	}

	m := New(format.SampleRate, l)
	arena := types.NewArena(l.Count(), readFrames)
	planes := arena.Planes(0, l.Count())
	views := make([][]float64, len(planes))
	buf := make([]byte, frameSize*readFrames)

	var pending int

	for {
		n, err := r.Read(buf[pending:])
		pending += n

		if complete := (pending / frameSize) * frameSize; complete > 0 {
			frames, decodeErr := pcm.Decode(planes, buf[:complete], format.BitDepth)
			if decodeErr != nil {
				return nil, decodeErr
			}

			for ch := range planes {
				views[ch] = planes[ch][:frames]
			}

			m.Process(views)

			pending = copy(buf, buf[complete:pending])
		}

		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("%w: %w", fault.ErrReadFailure, err)
		}
	}

	result := m.Result()

	return &result, nil
}
