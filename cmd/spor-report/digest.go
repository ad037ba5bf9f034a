package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/urfave/cli/v3"
)

// degradedSNR is the reconstruction SNR under which a layout counts as degraded.
const degradedSNR = 60.0

func digestCommand() *cli.Command {
	return &cli.Command{
		Name:      "digest",
		Usage:     "Produce a summary digest from a sporangium JSONL report",
		ArgsUsage: "<report.jsonl>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "layout",
				Usage: "List the files of one layout, worst reconstruction first (e.g., 5.1.2)",
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			if cmd.NArg() != 1 {
				return errors.New("expected exactly one argument: path to report.jsonl")
			}

			return runDigest(cmd.Args().First(), cmd.String("layout"))
		},
	}
}

func runDigest(reportPath, layoutFilter string) error {
	records, err := readRecords(reportPath)
	if err != nil {
		return err
	}

	printDigest(records)

	if layoutFilter != "" {
		printLayoutDetail(records, layoutFilter)
	}

	return nil
}

func readRecords(path string) ([]digestRecord, error) {
	file, err := os.Open(path) //nolint:gosec // CLI tool opens user-specified report files
	if err != nil {
		return nil, fmt.Errorf("opening report: %w", err)
	}
	defer file.Close()

	var records []digestRecord

	scanner := bufio.NewScanner(file)

	const maxLineSize = 1024 * 1024 // 1MB
	scanner.Buffer(make([]byte, 0, maxLineSize), maxLineSize)

	for scanner.Scan() {
		var rec digestRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			records = append(records, digestRecord{Error: "parse error"})

			continue
		}

		records = append(records, rec)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading report: %w", err)
	}

	return records, nil
}

func printDigest(records []digestRecord) {
	total := len(records)
	failed := 0
	stats := map[string]*layoutBreakdown{}

	var order []string

	for _, rec := range records {
		if rec.Error != "" || rec.Result == nil {
			failed++

			continue
		}

		for _, layer := range rec.Result.Layers {
			bd, ok := stats[layer.Layout]
			if !ok {
				bd = &layoutBreakdown{Layout: layer.Layout}
				stats[layer.Layout] = bd
				order = append(order, layer.Layout)
			}

			bd.Files++
			bd.SumLKFS += layer.IntegratedLKFS

			if layer.GainDb < 0 {
				bd.Attenuated++
				bd.WorstGain = min(bd.WorstGain, layer.GainDb)
			}
		}

		for _, rt := range rec.Result.RoundTrip {
			bd, ok := stats[rt.Layout]
			if !ok {
				continue
			}

			bd.RoundTrips++
			bd.SumSNR += rt.MinSNRDb

			if rt.MinSNRDb < degradedSNR {
				bd.Degraded++
			}
		}
	}

	fmt.Println("=== Sporangium Report Digest ===")
	fmt.Println()
	fmt.Printf("Total tracks:  %d\n", total)
	fmt.Printf("Failed:        %d\n", failed)
	fmt.Printf("Processed:     %d\n", total-failed)
	fmt.Println()

	fmt.Println("--- Layouts ---")

	for _, name := range order {
		bd := stats[name]

		fmt.Printf("  %s\n", bd.Layout)
		fmt.Printf("    mean loudness: %.1f LKFS\n", bd.SumLKFS/float64(bd.Files))
		fmt.Printf("    attenuated:    %d tracks (worst %.2f dB)\n", bd.Attenuated, bd.WorstGain)

		if bd.RoundTrips > 0 {
			fmt.Printf("    mean min SNR:  %.1f dB (%d degraded)\n", bd.SumSNR/float64(bd.RoundTrips), bd.Degraded)
		}
	}
}

type layoutEntry struct {
	file   string
	lkfs   float64
	gainDb float64
	snr    float64
	hasSNR bool
}

func printLayoutDetail(records []digestRecord, name string) {
	fmt.Println()

	var entries []layoutEntry

	for _, rec := range records {
		if rec.Error != "" || rec.Result == nil {
			continue
		}

		idx := slices.IndexFunc(rec.Result.Layers, func(l digestLayer) bool { return l.Layout == name })
		if idx < 0 {
			continue
		}

		entry := layoutEntry{
			file:   rec.File,
			lkfs:   rec.Result.Layers[idx].IntegratedLKFS,
			gainDb: rec.Result.Layers[idx].GainDb,
		}

		if entry.file == "" {
			entry.file = "(redacted)"
		}

		for _, rt := range rec.Result.RoundTrip {
			if rt.Layout == name {
				entry.snr, entry.hasSNR = rt.MinSNRDb, true
			}
		}

		entries = append(entries, entry)
	}

	if len(entries) == 0 {
		fmt.Printf("No tracks carry layout %s\n", name)

		return
	}

	slices.SortFunc(entries, func(a, b layoutEntry) int {
		switch {
		case a.snr < b.snr:
			return -1
		case a.snr > b.snr:
			return 1
		default:
			return 0
		}
	})

	fmt.Printf("=== %s: %d tracks ===\n\n", name, len(entries))

	for _, entry := range entries {
		fmt.Printf("  %s\n", entry.file)
		fmt.Printf("    loudness: %.1f LKFS  makeup gain: %.2f dB\n", entry.lkfs, entry.gainDb)

		if entry.hasSNR {
			fmt.Printf("    min SNR: %.1f dB\n", entry.snr)
		}

		fmt.Println()
	}
}
