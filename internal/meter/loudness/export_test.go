package loudness

// Momentary is the loudness of the last 400 ms.
func (m *Meter) Momentary() float64 {
	if m.stepCount < stepsPerBlock {
		return NoContentLKFS
	}

	return toLKFS(m.recentMean(stepsPerBlock))
}

// ShortTerm is the loudness of the last 3 s.
func (m *Meter) ShortTerm() float64 {
	if m.stepCount < shortTermSteps {
		return NoContentLKFS
	}

	return toLKFS(m.recentMean(shortTermSteps))
}
