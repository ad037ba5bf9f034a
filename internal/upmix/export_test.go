package upmix

// Weight returns the height weights applied after and before the pre-skip boundary.
func (d *Demixer) Weight() (current, last float64) { return d.w, d.lastW }
