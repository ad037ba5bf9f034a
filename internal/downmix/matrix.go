package downmix

import (
	"math"

	"github.com/farcloser/sporangium/internal/types"
)

// CenterGain folds the center channel into the 2.0 pair.
const CenterGain = 0.707

// Matrix holds the coefficients of one demix type.
//
//	SL5 = Alpha*SL7 + Beta*BL7    (7.x surround to 5.x)
//	L3  = L5 + Delta*SL5          (5.x to 3.x)
//	HL  = HFL + Gamma*HBL         (4 heights to 2)
//	TL  = HL + Delta*w*SL5        (heights to 3.1.2 top pair)
type Matrix struct {
	Alpha, Beta, Gamma, Delta float64
}

//nolint:gochecknoglobals // mixing table, effectively const
var matrices = [3]Matrix{
	{Alpha: 1, Beta: 1, Gamma: 0.707, Delta: 0.707},
	{Alpha: 0.707, Beta: 0.707, Gamma: 0.707, Delta: 0.707},
	{Alpha: 1, Beta: 0.866, Gamma: 0.866, Delta: 0.866},
}

// MatrixFor returns the coefficients of a validated demix type.
func MatrixFor(p types.DemixingParameters) Matrix {
	return matrices[p.Type-1]
}

const weightStep = 0.1

// StepWeight advances the height weight state by one frame and returns the new state x and the weight w.
// Weight index 1 ramps x up, 0 ramps it down, saturating at [0, 1]; w follows a cube-root curve centered on x = 0.5.
func StepWeight(weightIndex int, prev float64) (x, w float64) {
	if weightIndex == 1 {
		x = min(prev+weightStep, 1)
	} else {
		x = max(prev-weightStep, 0)
	}

	y := math.Cbrt((x-0.5)/4) + 0.5

	return x, 0.5 * y
}
