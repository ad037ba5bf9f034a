//nolint:wrapcheck
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/farcloser/primordium/format"
	"github.com/urfave/cli/v3"

	"github.com/farcloser/sporangium/internal/downmix"
	"github.com/farcloser/sporangium/internal/layout"
	"github.com/farcloser/sporangium/internal/meter"
	"github.com/farcloser/sporangium/internal/source"
	"github.com/farcloser/sporangium/internal/types"
	"github.com/farcloser/sporangium/internal/wavio"
)

var errDownmixArgs = errors.New("expected exactly one argument: input WAV file")

func downmixCommand() *cli.Command {
	return &cli.Command{
		Name:      "downmix",
		Usage:     "Mix a WAV file down to one WAV file per target layout",
		ArgsUsage: "<input.wav>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "layout",
				Aliases: []string{"l"},
				Usage:   "Layout of the input file, channels in playout order",
				Value:   layout.L714.String(),
			},
			&cli.StringFlag{
				Name:    "targets",
				Aliases: []string{"t"},
				Usage:   "Comma-separated target layouts",
				Value:   "2.0.0,5.1.2",
			},
			&cli.StringFlag{
				Name:    "output-dir",
				Aliases: []string{"o"},
				Usage:   "Directory receiving <input>.<layout>.wav files",
				Value:   ".",
			},
			&cli.IntFlag{
				Name:  "dmix-type",
				Usage: "Down-mix parameter set (1, 2 or 3)",
				Value: types.DefaultDemixingParameters().Type,
			},
			&cli.IntFlag{
				Name:  "weight-index",
				Usage: "Height weight direction: 0 decreases, 1 increases",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: console, json, markdown",
				Value:   "console",
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			if cmd.NArg() != 1 {
				return fmt.Errorf("%w: got %d", errDownmixArgs, cmd.NArg())
			}

			input, err := layout.Parse(cmd.String("layout"))
			if err != nil {
				return err
			}

			targets, err := layout.ParseList(cmd.String("targets"))
			if err != nil {
				return err
			}

			params := types.DemixingParameters{Type: cmd.Int("dmix-type"), WeightIndex: cmd.Int("weight-index")}
			if err = params.Validate(); err != nil {
				return err
			}

			formatter, err := format.GetFormatter(cmd.String("format"))
			if err != nil {
				return err
			}

			inputPath := cmd.Args().First()

			paths, err := runDownmix(inputPath, cmd.String("output-dir"), input, targets, params)
			if err != nil {
				return err
			}

			meta, err := measureOutputs(paths, targets)
			if err != nil {
				return err
			}

			return formatter.PrintAll([]*format.Data{{Object: inputPath, Meta: meta}}, os.Stdout)
		},
	}
}

const downmixFrame = 960

// runDownmix writes one WAV file per target and returns their paths.
func runDownmix(inputPath, outputDir string, input layout.Layout, targets []layout.Layout,
	params types.DemixingParameters,
) ([]string, error) {
	file, err := os.Open(inputPath) //nolint:gosec // CLI tool opens user-specified audio files
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader, err := wavio.NewReader(file)
	if err != nil {
		return nil, err
	}

	pcmFormat := reader.Format()
	if int(pcmFormat.Channels) != input.Count() { //nolint:gosec // channel counts are small
		return nil, fmt.Errorf("%w: %d channels for %s", wavio.ErrChannelMismatch, pcmFormat.Channels, input)
	}

	mixer, err := downmix.NewCascade(input, downmixFrame, targets...)
	if err != nil {
		return nil, err
	}

	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	writers := make([]*wavio.Writer, len(targets))
	paths := make([]string, len(targets))

	for i, target := range targets {
		paths[i] = filepath.Join(outputDir, base+"."+target.String()+".wav")

		out, createErr := os.Create(paths[i])
		if createErr != nil {
			return nil, createErr
		}
		defer out.Close()

		targetFormat := pcmFormat
		targetFormat.Channels = uint(target.Count()) //nolint:gosec // channel counts are small

		if writers[i], err = wavio.NewWriter(out, targetFormat); err != nil {
			return nil, err
		}
	}

	planes := types.NewArena(input.Count(), downmixFrame).Planes(0, input.Count())
	view := make([][]float64, layout.MaxChannels)

	for {
		n, readErr := reader.Read(planes)
		if errors.Is(readErr, io.EOF) {
			break
		}

		if readErr != nil {
			return nil, readErr
		}

		for ch := range planes {
			clear(planes[ch][n:])
		}

		if err = mixer.Downmix(planes, params); err != nil {
			return nil, err
		}

		for i, target := range targets {
			mixed := mixer.Mixed(target)
			for ch := range mixed {
				view[ch] = mixed[ch][:n]
			}

			if err = writers[i].Write(view[:len(mixed)]); err != nil {
				return nil, err
			}
		}
	}

	for _, w := range writers {
		if err = w.Close(); err != nil {
			return nil, err
		}
	}

	return paths, nil
}

// measureOutputs reads the written files back and reports the loudness of each target.
func measureOutputs(paths []string, targets []layout.Layout) (map[string]any, error) {
	meta := make(map[string]any, len(targets))

	for i, target := range targets {
		input, err := source.WAV(paths[i])
		if err != nil {
			return nil, err
		}

		r, err := input.Factory()
		if err != nil {
			return nil, err
		}

		loud, err := meter.Analyze(r, input.Format, target)
		if err != nil {
			return nil, err
		}

		meta[target.String()] = fmt.Sprintf("%s: %.1f LKFS, true peak %.1f dBTP",
			paths[i], loud.IntegratedLKFS, loud.TruePeakDb)
	}

	return meta, nil
}
