// Package output provides shared result serialization for sporangium JSON output.
package output

import (
	"github.com/farcloser/sporangium"
	"github.com/farcloser/sporangium/internal/types"
)

// ResultToMap converts a pipeline result into the canonical map structure
// used for JSON and JSONL serialization.
func ResultToMap(result *sporangium.Result) map[string]any {
	layers := make([]any, 0, len(result.Layers))
	for i := range result.Layers {
		layers = append(layers, LayerToMap(&result.Layers[i]))
	}

	meta := map[string]any{
		"chain":  result.Chain,
		"layers": layers,
	}

	if len(result.RoundTrip) > 0 {
		roundTrip := make([]any, 0, len(result.RoundTrip))
		for i := range result.RoundTrip {
			roundTrip = append(roundTrip, RoundTripToMap(&result.RoundTrip[i]))
		}

		meta["round_trip"] = roundTrip
	}

	if len(result.Clipping) > 0 {
		clipping := make([]any, 0, len(result.Clipping))
		for _, clip := range result.Clipping {
			clipping = append(clipping, map[string]any{
				"layout":          clip.Layout.String(),
				"events":          clip.Events,
				"clipped_samples": clip.ClippedSamples,
				"longest_run":     clip.LongestRun,
				"samples":         clip.Samples,
			})
		}

		meta["clipping"] = clipping
	}

	return meta
}

// LayerToMap converts the measurement of one layout to a map.
func LayerToMap(report *types.LayerReport) map[string]any {
	return map[string]any{
		"layout":          report.Layout.String(),
		"integrated_lkfs": report.Loudness.IntegratedLKFS,
		"momentary_max":   report.Loudness.MomentaryMax,
		"short_term_max":  report.Loudness.ShortTermMax,
		"sample_peak_db":  report.Loudness.SamplePeakDb,
		"true_peak_db":    report.Loudness.TruePeakDb,
		"gain_db":         report.GainDb,
		"boosted":         report.Boosted,
		"frames":          report.Loudness.Frames,
	}
}

// RoundTripToMap converts the decode comparison of one layout to a map.
func RoundTripToMap(rt *types.RoundTrip) map[string]any {
	channels := make([]any, 0, len(rt.Channels))
	for _, ch := range rt.Channels {
		channels = append(channels, map[string]any{
			"channel":          ch.Channel.String(),
			"snr_db":           ch.SNRDb,
			"residual_peak_hz": ch.ResidualPeakHz,
		})
	}

	return map[string]any{
		"layout":     rt.Layout.String(),
		"min_snr_db": rt.MinSNRDb,
		"frames":     rt.Frames,
		"channels":   channels,
	}
}
