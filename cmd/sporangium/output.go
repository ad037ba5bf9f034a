//nolint:wrapcheck
package main

import (
	"fmt"
	"os"

	"github.com/farcloser/primordium/format"

	"github.com/farcloser/sporangium"
	"github.com/farcloser/sporangium/internal/output"
)

// snrGood is the reconstruction SNR above which a layout is reported as transparent.
const snrGood = 60.0

func outputResult(object string, result *sporangium.Result, formatName string, debug bool) error {
	formatter, err := format.GetFormatter(formatName)
	if err != nil {
		return err
	}

	var meta map[string]any
	if debug {
		meta = output.ResultToMap(result)
	} else {
		meta = buildFriendlyOutput(result)
	}

	data := &format.Data{
		Object: object,
		Meta:   meta,
	}

	return formatter.PrintAll([]*format.Data{data}, os.Stdout)
}

// buildFriendlyOutput creates a user-friendly summary of the pipeline results.
func buildFriendlyOutput(result *sporangium.Result) map[string]any {
	meta := map[string]any{
		"chain": result.Chain,
	}

	layers := make(map[string]any, len(result.Layers))

	for _, report := range result.Layers {
		line := fmt.Sprintf("%.1f LKFS, true peak %.1f dBTP",
			report.Loudness.IntegratedLKFS, report.Loudness.TruePeakDb)

		if report.Boosted > 0 {
			line += fmt.Sprintf(", makeup gain %.2f dB on %d channels", report.GainDb, report.Boosted)
		}

		layers[report.Layout.String()] = line
	}

	meta["layers"] = layers

	if len(result.RoundTrip) > 0 {
		roundTrip := make(map[string]any, len(result.RoundTrip))

		for _, rt := range result.RoundTrip {
			verdict := "transparent"
			if rt.MinSNRDb < snrGood {
				verdict = "degraded"
			}

			worst := rt.Channels[0]
			for _, ch := range rt.Channels[1:] {
				if ch.SNRDb < worst.SNRDb {
					worst = ch
				}
			}

			roundTrip[rt.Layout.String()] = fmt.Sprintf("%s: min SNR %.1f dB on %s (residual peak %.0f Hz)",
				verdict, rt.MinSNRDb, worst.Channel, worst.ResidualPeakHz)
		}

		meta["round_trip"] = roundTrip
	}

	clipped := make(map[string]any)

	for _, clip := range result.Clipping {
		if clip.Events > 0 {
			clipped[clip.Layout.String()] = fmt.Sprintf("%d samples in %d runs (longest %d)",
				clip.ClippedSamples, clip.Events, clip.LongestRun)
		}
	}

	if len(clipped) > 0 {
		meta["clipping"] = clipped
	}

	return meta
}
