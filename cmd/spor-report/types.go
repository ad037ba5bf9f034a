//nolint:tagliatelle
package main

import "encoding/json"

// Record is a single line in the JSONL report file.
type Record struct {
	File       string          `json:"file,omitempty"`
	Result     map[string]any  `json:"result,omitempty"`
	Probe      json.RawMessage `json:"probe,omitempty"`
	ProbeError string          `json:"probe_error,omitempty"`
	Error      string          `json:"error,omitempty"`
	Timing     *RecordTiming   `json:"timing,omitempty"`
}

// RecordTiming captures per-file processing durations in milliseconds.
type RecordTiming struct {
	DecodeMs  float64 `json:"decode_ms"`
	ProcessMs float64 `json:"process_ms"`
	TotalMs   float64 `json:"total_ms"`
}

// digestRecord holds the typed fields needed by the digest command.
type digestRecord struct {
	File   string        `json:"file,omitempty"`
	Result *digestResult `json:"result,omitempty"`
	Error  string        `json:"error,omitempty"`
}

type digestResult struct {
	Chain     string            `json:"chain"`
	Layers    []digestLayer     `json:"layers"`
	RoundTrip []digestRoundTrip `json:"round_trip"`
}

type digestLayer struct {
	Layout         string  `json:"layout"`
	IntegratedLKFS float64 `json:"integrated_lkfs"`
	TruePeakDb     float64 `json:"true_peak_db"`
	GainDb         float64 `json:"gain_db"`
	Boosted        int     `json:"boosted"`
}

type digestRoundTrip struct {
	Layout   string  `json:"layout"`
	MinSNRDb float64 `json:"min_snr_db"`
}

// layoutBreakdown aggregates one layout over every analyzed file.
type layoutBreakdown struct {
	Layout     string
	Files      int
	SumLKFS    float64
	Attenuated int
	WorstGain  float64
	RoundTrips int
	SumSNR     float64
	Degraded   int
}
