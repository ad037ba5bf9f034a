// Package fixed converts between floating point and the fixed-point formats carried in frame headers.
package fixed

import "math"

// silenceFloor stands in for a zero linear value when converting to dB (one 16-bit LSB).
const silenceFloor = 1.0 / 32768

// floorSlack absorbs the last-bit error of the dB conversions, so values sitting on a step stay on it.
const floorSlack = 1e-9

// ToQ converts v to a signed Qx.frac value, rounding to nearest and saturating to int16.
func ToQ(v float64, frac uint) int16 {
	return saturate(math.Round(v * float64(int(1)<<frac)))
}

// ToQFloor converts v to a signed Qx.frac value, rounding toward negative infinity and saturating to int16.
// The result never stands for more than v, beyond floorSlack of a step.
func ToQFloor(v float64, frac uint) int16 {
	return saturate(math.Floor(v*float64(int(1)<<frac) + floorSlack))
}

func saturate(scaled float64) int16 {
	return int16(max(min(scaled, math.MaxInt16), math.MinInt16))
}

// FromQ converts a signed Qx.frac value back to floating point.
func FromQ(q int16, frac uint) float64 {
	return float64(q) / float64(int(1)<<frac)
}

// Q8 is the Q7.8 dB representation used for loudness, peaks and makeup gains.
func Q8(v float64) int16 { return ToQ(v, 8) }

// Q8Floor is Q8 rounded down, for gains that must not exceed v.
func Q8Floor(v float64) int16 { return ToQFloor(v, 8) }

// FromQ8 is the inverse of Q8.
func FromQ8(q int16) float64 { return FromQ(q, 8) }

// GainFromQ8 is the linear factor of a Q7.8 dB gain, cut to a 24-bit mantissa and rounded toward zero.
// Multiplying a sample of at most 29 significant bits by it is exact, so dividing by it gives the sample back.
func GainFromQ8(q int16) float64 {
	lin := DBToLin(FromQ8(q))

	short := float32(lin)
	if float64(short) > lin {
		short = math.Nextafter32(short, 0)
	}

	return float64(short)
}

// LinToDB converts a linear amplitude to dB. Zero maps to the 16-bit floor instead of -Inf.
func LinToDB(lin float64) float64 {
	if lin == 0 {
		lin = silenceFloor
	}

	return 20 * math.Log10(lin)
}

// DBToLin converts dB to a linear amplitude.
func DBToLin(db float64) float64 {
	return math.Pow(10, 0.05*db)
}
