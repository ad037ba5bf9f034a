package drc

import (
	"errors"
	"math"
	"testing"
)

func TestCurveLevels(t *testing.T) {
	t.Parallel()

	c := DefaultCurve().compile()

	// Knees above the margin are pulled down to it.
	if c.knees[3] != -1 || c.knees[4] != -1 {
		t.Fatalf("knees = %v", c.knees)
	}

	tests := []struct {
		in, want float64
	}{
		{in: -30, want: -30},
		{in: -16.5, want: -16.5},
		{in: -12, want: -13.5},
		{in: -9, want: -11.5},
		{in: -6, want: -10},
		{in: 0, want: -10 + 5.0/3 + 0.1},
	}

	for _, tt := range tests {
		if got := c.level(tt.in); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("level(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestCurveAboveMargin(t *testing.T) {
	t.Parallel()

	c := DefaultCurve().compile()
	top := c.level(c.margin)

	for _, in := range []float64{-60, -20, -1, 0, 10, 100} {
		if got := c.level(in); got > in+1e-9 {
			t.Errorf("level(%v) = %v, above input", in, got)
		}
	}

	// The last knee's 1:10 slope carries on past the margin.
	if got := c.level(100); math.Abs(got-(top+10.1)) > 1e-9 || got <= c.margin {
		t.Errorf("level(100) = %v, want %v", got, top+10.1)
	}
}

func TestCurveValidate(t *testing.T) {
	t.Parallel()

	bad := []Curve{
		{},
		{Knees: make([]Knee, MaxKnees+1)},
		{Knees: []Knee{{ThresholdDB: -10, Ratio: 0.5}}},
		{Knees: []Knee{{ThresholdDB: -10, Ratio: 2}, {ThresholdDB: -20, Ratio: 2}}},
	}

	for i, c := range bad {
		if err := c.Validate(); !errors.Is(err, ErrCurve) {
			t.Errorf("curve %d: %v", i, err)
		}
	}

	if err := DefaultCurve().Validate(); err != nil {
		t.Fatal(err)
	}
}
