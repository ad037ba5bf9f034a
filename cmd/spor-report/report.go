//nolint:wrapcheck
package main

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/farcloser/sporangium"
	"github.com/farcloser/sporangium/internal/layout"
	"github.com/farcloser/sporangium/internal/output"
	"github.com/farcloser/sporangium/internal/source"
)

const outputFile = "sporangium-report.jsonl"

var (
	errNotDirectory = errors.New("not a directory")
	errNoAudioFiles = errors.New("no audio files found")
	errReportArgs   = errors.New("expected exactly one argument: folder path")
)

//nolint:gochecknoglobals // configuration data, effectively const
var audioExtensions = []string{".flac", ".m4a", ".wav", ".mka", ".eac3", ".ac3"}

func reportCommand() *cli.Command {
	return &cli.Command{
		Name:      "report",
		Usage:     "Scan a collection, round-trip every file through a chain and write a JSONL report",
		ArgsUsage: "<folder>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "chain",
				Aliases: []string{"c"},
				Usage:   "Comma-separated scalable chain, lowest first",
				Value:   sporangium.DefaultChain,
			},
			&cli.BoolFlag{
				Name:  "measure-only",
				Usage: "Skip encoding and decoding, only measure loudness",
			},
			&cli.BoolFlag{
				Name:  "redact-path",
				Usage: "Strip file paths from the report",
			},
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"j"},
				Usage:   "Number of concurrent workers",
				Value:   runtime.NumCPU(),
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.NArg() != 1 {
				return errReportArgs
			}

			chain, err := layout.ParseChain(cmd.String("chain"))
			if err != nil {
				return err
			}

			job := &reportJob{
				chain:       chain,
				measureOnly: cmd.Bool("measure-only"),
				redact:      cmd.Bool("redact-path"),
				workers:     max(cmd.Int("workers"), 1),
			}

			return job.run(ctx, cmd.Args().First())
		},
	}
}

type reportJob struct {
	chain       layout.Chain
	measureOnly bool
	redact      bool
	workers     int
}

func (job *reportJob) run(ctx context.Context, folder string) error {
	info, err := os.Stat(folder)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%q: %w", folder, errNotDirectory)
	}

	files, err := collectAudioFiles(folder)
	if err != nil {
		return fmt.Errorf("scanning folder: %w", err)
	}

	if len(files) == 0 {
		return fmt.Errorf("%q: %w", folder, errNoAudioFiles)
	}

	fmt.Fprintf(os.Stderr, "Found %d files to process through %s (%d workers)\n",
		len(files), job.chain.String(), job.workers)

	startTime := time.Now()
	results := make([]Record, len(files))

	var progress atomic.Int64

	// Per-file failures land in their record; workers never fail the group.
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(job.workers)

	for idx, filePath := range files {
		group.Go(func() error {
			results[idx] = job.processFile(groupCtx, filePath)

			done := progress.Add(1)
			fmt.Fprintf(os.Stderr, "[%d/%d] %s\n", done, len(files), filePath)

			return nil
		})
	}

	if err = group.Wait(); err != nil {
		return err
	}

	out, err := os.Create(outputFile)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer out.Close()

	failed := job.writeRecords(out, files, results)

	out.Close()

	if err = compressFile(outputFile); err != nil {
		slog.Error("compressing report", "error", err)
	}

	elapsed := time.Since(startTime)

	fmt.Fprintf(os.Stderr, "\nDone: %d files in %s (%d failed)\n", len(files), elapsed.Truncate(time.Second), failed)
	fmt.Fprintf(os.Stderr, "Report written to %s (and %s.gz)\n\n", outputFile, outputFile)

	return runDigest(outputFile, "")
}

func (job *reportJob) writeRecords(out *os.File, files []string, results []Record) int {
	enc := json.NewEncoder(out)
	failed := 0

	var totalDecode, totalProcess time.Duration

	for idx := range results {
		record := &results[idx]

		if record.Error != "" {
			failed++
		}

		if record.Timing != nil {
			totalDecode += millisToDuration(record.Timing.DecodeMs)
			totalProcess += millisToDuration(record.Timing.ProcessMs)
		}

		if job.redact {
			record.File = ""
			record.Probe = redactProbe(record.Probe)
		}

		if err := enc.Encode(record); err != nil {
			slog.Error("writing record", "file", files[idx], "error", err)
		}
	}

	fmt.Fprintf(os.Stderr, "\n--- Timing ---\n")
	fmt.Fprintf(os.Stderr, "  ffprobe+ffmpeg: %s (cumulative)\n", totalDecode.Truncate(time.Millisecond))
	fmt.Fprintf(os.Stderr, "  pipeline:       %s (cumulative)\n", totalProcess.Truncate(time.Millisecond))

	return failed
}

func (job *reportJob) processFile(ctx context.Context, filePath string) Record {
	fileStart := time.Now()
	timing := &RecordTiming{}

	input, err := source.Container(ctx, filePath, 0, job.chain.Top())

	timing.DecodeMs = durationMs(time.Since(fileStart))

	if err != nil {
		return Record{File: filePath, Error: fmt.Sprintf("decode failed: %v", err), Timing: timing}
	}

	opts := sporangium.DefaultOptions()
	opts.SampleRate = input.Format.SampleRate
	opts.Chain = strings.Split(job.chain.String(), ">")

	run := sporangium.RoundTrip
	if job.measureOnly {
		run = sporangium.Measure
	}

	processStart := time.Now()

	result, err := run(input.Factory, input.Format, opts)

	timing.ProcessMs = durationMs(time.Since(processStart))
	timing.TotalMs = durationMs(time.Since(fileStart))

	if err != nil {
		return Record{File: filePath, Error: fmt.Sprintf("processing failed: %v", err), Timing: timing}
	}

	record := Record{
		File:   filePath,
		Result: output.ResultToMap(result),
		Timing: timing,
	}

	probeJSON, err := json.Marshal(input.Probe)
	if err == nil {
		record.Probe = probeJSON
	} else {
		record.ProbeError = "probe serialization failed"
	}

	return record
}

func durationMs(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}

func millisToDuration(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}

func collectAudioFiles(root string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			return nil
		}

		if slices.Contains(audioExtensions, strings.ToLower(filepath.Ext(path))) {
			files = append(files, path)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.Sort(files)

	return files, nil
}

func compressFile(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // reading our own output file
	if err != nil {
		return err
	}

	gzFile, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}
	defer gzFile.Close()

	gzWriter := gzip.NewWriter(gzFile)

	if _, err := gzWriter.Write(data); err != nil {
		return err
	}

	return gzWriter.Close()
}

func redactProbe(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}

	var probe map[string]any
	if err := json.Unmarshal(raw, &probe); err != nil {
		return raw
	}

	if format, ok := probe["format"].(map[string]any); ok {
		delete(format, "filename")
	}

	redacted, err := json.Marshal(probe)
	if err != nil {
		return raw
	}

	return redacted
}
