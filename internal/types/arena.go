package types

// Arena is one contiguous allocation sliced into fixed-size planes.
// Sessions size it once at creation so the per-frame path does not allocate.
type Arena struct {
	data []float64
	size int
}

func NewArena(planes, size int) *Arena {
	return &Arena{
		data: make([]float64, planes*size),
		size: size,
	}
}

// View returns plane i. Views never overlap.
func (a *Arena) View(i int) []float64 {
	return a.data[i*a.size : (i+1)*a.size : (i+1)*a.size]
}

// Planes returns n consecutive views starting at plane first.
func (a *Arena) Planes(first, n int) [][]float64 {
	out := make([][]float64, n)
	for i := range n {
		out[i] = a.View(first + i)
	}

	return out
}
