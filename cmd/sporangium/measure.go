//nolint:wrapcheck
package main

import (
	"context"
	"fmt"
	"slices"

	"github.com/urfave/cli/v3"

	"github.com/farcloser/sporangium"
)

func measureCommand() *cli.Command {
	return &cli.Command{
		Name:      "measure",
		Usage:     "Measure loudness and makeup gains of every layout of a chain from a WAV file or raw PCM",
		ArgsUsage: "<file | ->",
		Flags:     slices.Concat(pcmFlags(), sessionFlags()),
		Action: func(_ context.Context, cmd *cli.Command) error {
			if cmd.NArg() != 1 {
				return fmt.Errorf("%w: got %d", errInvalidArgCount, cmd.NArg())
			}

			chain, err := parseChain(cmd)
			if err != nil {
				return err
			}

			inputPath := cmd.Args().First()

			input, err := loadInput(inputPath, cmd, chain.Top())
			if err != nil {
				return err
			}

			opts := parseSession(cmd, input.Format.SampleRate)

			result, err := sporangium.Measure(input.Factory, input.Format, opts)
			if err != nil {
				return fmt.Errorf("measurement failed: %w", err)
			}

			return outputResult(inputPath, result, cmd.String("format"), cmd.Bool("debug"))
		},
	}
}
