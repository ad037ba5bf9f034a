//nolint:wrapcheck
package main

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/urfave/cli/v3"

	"github.com/farcloser/sporangium"
	"github.com/farcloser/sporangium/internal/source"
)

var errProcessArgs = errors.New("expected exactly one argument: file path")

func processCommand() *cli.Command {
	return &cli.Command{
		Name:      "process",
		Usage:     "Decode an audio file with ffmpeg, measure it and optionally round-trip it through the chain",
		ArgsUsage: "<file>",
		Flags: slices.Concat([]cli.Flag{
			&cli.IntFlag{
				Name:  "stream",
				Usage: "Audio stream index (0-based)",
				Value: 0,
			},
			&cli.BoolFlag{
				Name:    "roundtrip",
				Aliases: []string{"r"},
				Usage:   "Encode and decode every layout and report the reconstruction SNR",
			},
		}, sessionFlags()),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.NArg() != 1 {
				return fmt.Errorf("%w: got %d", errProcessArgs, cmd.NArg())
			}

			filePath := cmd.Args().First()

			chain, err := parseChain(cmd)
			if err != nil {
				return err
			}

			// Extract PCM in the chain's input layout.
			input, err := source.Container(ctx, filePath, cmd.Int("stream"), chain.Top())
			if err != nil {
				return err
			}

			opts := parseSession(cmd, input.Format.SampleRate)

			run := sporangium.Measure
			if cmd.Bool("roundtrip") {
				run = sporangium.RoundTrip
			}

			result, err := run(input.Factory, input.Format, opts)
			if err != nil {
				return fmt.Errorf("processing failed: %w", err)
			}

			return outputResult(filePath, result, cmd.String("format"), cmd.Bool("debug"))
		},
	}
}
