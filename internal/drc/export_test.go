package drc

// Gain is the linear gain applied to the last output sample.
func (c *Compressor) Gain() float64 { return c.scale }

// Gain is the linear gain applied to the last output frame.
func (l *Limiter) Gain() float64 { return l.gain }
