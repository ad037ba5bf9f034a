// Package clipping detects saturated runs in normalized planes.
package clipping

import "github.com/farcloser/sporangium/internal/types"

// minRun is the shortest run of full-scale samples counted as an event.
const minRun = 2

// Detector accumulates clipping events across frames. Runs may span frame boundaries.
type Detector struct {
	result      types.Clipping
	consecutive []uint64
}

func New(channels int) *Detector {
	return &Detector{consecutive: make([]uint64, channels)}
}

// Process scans one frame. Planes must keep the channel count the detector was created with.
func (d *Detector) Process(planes [][]float64) {
	for ch, plane := range planes {
		d.result.Samples += uint64(len(plane))

		for _, v := range plane {
			if v >= 1 || v <= -1 {
				d.consecutive[ch]++

				continue
			}

			d.flush(&d.result, d.consecutive[ch])
			d.consecutive[ch] = 0
		}
	}
}

// Result reports the events so far, counting runs still open at the end of the last frame.
func (d *Detector) Result() types.Clipping {
	result := d.result
	for _, run := range d.consecutive {
		d.flush(&result, run)
	}

	return result
}

func (*Detector) flush(result *types.Clipping, run uint64) {
	if run < minRun {
		return
	}

	result.Events++
	result.ClippedSamples += run
	result.LongestRun = max(result.LongestRun, run)
}
