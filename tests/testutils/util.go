// Package testutils provides test infrastructure for sporangium integration tests.
package testutils

import (
	"path/filepath"
	"runtime"

	"github.com/containerd/nerdctl/mod/tigron/test"

	"github.com/farcloser/agar/pkg/agar"
)

// Setup creates a test case configured to run the sporangium binary.
func Setup() *test.Case {
	_, thisFile, _, _ := runtime.Caller(0) //nolint:dogsled // runtime.Caller returns 4 values, only file is needed
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(thisFile)))
	binaryPath := filepath.Join(projectRoot, "bin", "sporangium")

	return agar.Setup(binaryPath)
}

// Sibling returns a path next to file, for command outputs.
func Sibling(file, name string) string {
	return filepath.Join(filepath.Dir(file), name)
}
