package upmix

import (
	"errors"
	"fmt"
	"math"
)

var ErrPreSkip = errors.New("pre-skip shorter than the smoothing overlap")

// Windows returns the complementary start and stop windows used to cross-fade recon gain at the pre-skip boundary.
// The fade spans the overlap samples ending at preSkip; overlap is half of frameSize/8.
// A zero pre-skip switches at the first sample.
func Windows(frameSize, preSkip int) (start, stop []float64, err error) {
	if frameSize <= 0 {
		return nil, nil, fmt.Errorf("%w: %d", ErrFrameSize, frameSize)
	}

	if preSkip < 0 {
		return nil, nil, fmt.Errorf("%w: %d", ErrPreSkip, preSkip)
	}

	preSkip %= frameSize
	windowLen := frameSize / 8
	overlap := windowLen / 2

	if preSkip != 0 && preSkip < overlap {
		return nil, nil, fmt.Errorf("%w: %d < %d", ErrPreSkip, preSkip, overlap)
	}

	hann := make([]float64, windowLen)
	for i := range hann {
		hann[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(windowLen-1)))
	}

	start = make([]float64, frameSize)
	stop = make([]float64, frameSize)

	fade := max(preSkip-overlap, 0)

	for i := range fade {
		stop[i] = 1
	}

	for i, j := fade, 0; i < preSkip; i, j = i+1, j+1 {
		start[i] = hann[j]
		stop[i] = hann[j+overlap]
	}

	for i := preSkip; i < frameSize; i++ {
		start[i] = 1
	}

	return start, stop, nil
}
