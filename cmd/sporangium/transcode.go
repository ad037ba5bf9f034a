//nolint:wrapcheck
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/farcloser/sporangium"
	"github.com/farcloser/sporangium/internal/layout"
	"github.com/farcloser/sporangium/internal/source"
	"github.com/farcloser/sporangium/internal/types"
	"github.com/farcloser/sporangium/internal/wavio"
)

var errTranscodeArgs = errors.New("expected exactly two arguments: input file and output WAV file")

func transcodeCommand() *cli.Command {
	return &cli.Command{
		Name:      "transcode",
		Usage:     "Encode an audio file through the chain and decode one layout to WAV",
		ArgsUsage: "<input> <output.wav>",
		Flags: slices.Concat([]cli.Flag{
			&cli.StringFlag{
				Name:    "target",
				Aliases: []string{"t"},
				Usage:   "Layout to decode (default: the chain's input layout)",
			},
			&cli.StringFlag{
				Name:  "drc",
				Usage: "Playback dynamics profile: off, av, tv, mobile",
				Value: "off",
			},
			&cli.IntFlag{
				Name:  "stream",
				Usage: "Audio stream index (0-based) for non-WAV input",
			},
			&cli.IntFlag{
				Name:  "output-bit-depth",
				Usage: "Bit depth of the output WAV (16, 24, or 32)",
				Value: 24,
			},
		}, sessionFlags()),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.NArg() != 2 {
				return fmt.Errorf("%w: got %d", errTranscodeArgs, cmd.NArg())
			}

			inputPath, outputPath := cmd.Args().Get(0), cmd.Args().Get(1)

			chain, err := parseChain(cmd)
			if err != nil {
				return err
			}

			target := chain.Top()
			if name := cmd.String("target"); name != "" {
				if target, err = layout.Parse(name); err != nil {
					return err
				}
			}

			bitDepth, err := toBitDepth(cmd.Int("output-bit-depth"))
			if err != nil {
				return fmt.Errorf("--output-bit-depth: %w", err)
			}

			var input *source.Input
			if strings.EqualFold(filepath.Ext(inputPath), ".wav") {
				input, err = source.WAV(inputPath)
			} else {
				input, err = source.Container(ctx, inputPath, cmd.Int("stream"), chain.Top())
			}

			if err != nil {
				return err
			}

			opts := parseSession(cmd, input.Format.SampleRate)
			opts.DRC = cmd.String("drc")

			file, err := os.Create(outputPath) //nolint:gosec // CLI tool writes user-specified files
			if err != nil {
				return fmt.Errorf("creating output: %w", err)
			}
			defer file.Close()

			writer, err := wavio.NewWriter(file, types.PCMFormat{
				SampleRate: input.Format.SampleRate,
				BitDepth:   bitDepth,
				Channels:   uint(target.Count()), //nolint:gosec // channel counts are small
			})
			if err != nil {
				return err
			}

			result, err := sporangium.Transcode(input.Factory, input.Format, opts, target.String(), writer.Write)
			if err != nil {
				return fmt.Errorf("transcoding failed: %w", err)
			}

			if err = writer.Close(); err != nil {
				return fmt.Errorf("finalizing output: %w", err)
			}

			return outputResult(inputPath, result, cmd.String("format"), cmd.Bool("debug"))
		},
	}
}
