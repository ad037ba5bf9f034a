// Package version exposes build metadata, overridden at link time with -ldflags -X.
package version

//nolint:gochecknoglobals // set by the linker
var (
	name    = "sporangium"
	version = "dev"
	commit  = "unknown"
)

func Name() string { return name }

func Version() string { return version }

func Commit() string { return commit }
