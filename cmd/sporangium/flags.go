package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/farcloser/sporangium"
	"github.com/farcloser/sporangium/internal/layout"
	"github.com/farcloser/sporangium/internal/source"
	"github.com/farcloser/sporangium/internal/types"
)

var (
	errInvalidArgCount = errors.New("expected exactly one argument: file path or \"-\" for stdin")
	errInvalidBitDepth = errors.New("must be 16, 24, or 32")
)

// sessionFlags configure the encoder and decoder shared by every pipeline command.
func sessionFlags() []cli.Flag {
	defaults := sporangium.DefaultOptions()

	return []cli.Flag{
		&cli.StringFlag{
			Name:    "chain",
			Aliases: []string{"c"},
			Usage:   "Comma-separated scalable chain, lowest first; the last layout is the input layout",
			Value:   sporangium.DefaultChain,
		},
		&cli.IntFlag{
			Name:  "frame-size",
			Usage: "Samples per channel per coded frame",
			Value: defaults.FrameSize,
		},
		&cli.StringFlag{
			Name:  "codec",
			Usage: "Layer codec: lpcm16, lpcm24, lpcm32",
			Value: defaults.Codec,
		},
		&cli.IntFlag{
			Name:  "pre-skip",
			Usage: "Codec delay in samples",
		},
		&cli.StringFlag{
			Name:  "recon-gain",
			Usage: "Recon gain mode: rms, one-shot, incremental",
			Value: defaults.ReconGainMode,
		},
		&cli.BoolFlag{
			Name:  "no-recon-gain",
			Usage: "Disable recon gain",
		},
		&cli.IntFlag{
			Name:  "dmix-type",
			Usage: "Down-mix parameter set (1, 2 or 3)",
			Value: defaults.Demixing.Type,
		},
		&cli.IntFlag{
			Name:  "weight-index",
			Usage: "Height weight direction: 0 decreases, 1 increases",
			Value: defaults.Demixing.WeightIndex,
		},
		&cli.StringFlag{
			Name:    "format",
			Aliases: []string{"f"},
			Usage:   "Output format: console, json, markdown",
			Value:   "console",
		},
		&cli.BoolFlag{
			Name:    "debug",
			Aliases: []string{"D"},
			Usage:   "Include all raw measurement data in output",
		},
	}
}

func parseChain(cmd *cli.Command) (layout.Chain, error) {
	return layout.ParseChain(cmd.String("chain"))
}

// parseSession builds options from the session flags. The sample rate comes from the input.
func parseSession(cmd *cli.Command, sampleRate int) sporangium.Options {
	opts := sporangium.DefaultOptions()
	opts.SampleRate = sampleRate
	opts.FrameSize = cmd.Int("frame-size")
	opts.Chain = strings.Split(cmd.String("chain"), ",")
	opts.Codec = cmd.String("codec")
	opts.PreSkip = cmd.Int("pre-skip")
	opts.ReconGainMode = cmd.String("recon-gain")
	opts.DisableReconGain = cmd.Bool("no-recon-gain")
	opts.Demixing = types.DemixingParameters{
		Type:        cmd.Int("dmix-type"),
		WeightIndex: cmd.Int("weight-index"),
	}

	return opts
}

// pcmFlags describe headerless input.
func pcmFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:    "sample-rate",
			Aliases: []string{"s"},
			Usage:   "Sample rate in Hz of raw input (e.g., 44100, 48000, 96000)",
			Value:   48000,
		},
		&cli.IntFlag{
			Name:    "bit-depth",
			Aliases: []string{"b"},
			Usage:   "Bit depth of raw input (16, 24, or 32)",
			Value:   24,
		},
	}
}

// loadInput reads WAV files natively and anything else as raw PCM in the playout order of top.
func loadInput(path string, cmd *cli.Command, top layout.Layout) (*source.Input, error) {
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		return source.WAV(path)
	}

	bitDepth, err := toBitDepth(cmd.Int("bit-depth"))
	if err != nil {
		return nil, fmt.Errorf("--bit-depth: %w", err)
	}

	return source.Raw(path, types.PCMFormat{
		SampleRate: cmd.Int("sample-rate"),
		BitDepth:   bitDepth,
		Channels:   uint(top.Count()), //nolint:gosec // channel counts are small
	})
}

func toBitDepth(v int) (types.BitDepth, error) {
	switch v {
	case 16:
		return types.Depth16, nil
	case 24:
		return types.Depth24, nil
	case 32:
		return types.Depth32, nil
	default:
		return 0, errInvalidBitDepth
	}
}
