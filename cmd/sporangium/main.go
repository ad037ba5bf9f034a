package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/farcloser/sporangium/version"
)

func main() {
	ctx := context.Background()

	appl := &cli.Command{
		Name:    version.Name(),
		Usage:   "Scalable channel audio encoding and decoding tool",
		Version: version.Version() + " " + version.Commit(),
		Commands: []*cli.Command{
			measureCommand(),
			processCommand(),
			transcodeCommand(),
			downmixCommand(),
		},
	}

	if err := appl.Run(ctx, os.Args); err != nil {
		slog.Error("failed to run", "error", err)
		os.Exit(1)
	}
}
