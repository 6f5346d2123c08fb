// Package version provides build and version information for rssnews.
package version

import (
	"fmt"
	"runtime"
)

// Version is set via ldflags at build time:
//
//	-X github.com/langgraphsystem/rssnews/pkg/version.Version=v1.2.3
var Version = "dev"

var (
	// Commit is the git commit hash, set via ldflags.
	Commit = "unknown"

	// Date is the build date in RFC3339 format, set via ldflags.
	Date = "unknown"

	// GoVersion is the Go toolchain that built the binary.
	GoVersion = runtime.Version()
)

// String renders the full version line.
func String() string {
	return fmt.Sprintf("rssnews %s (commit %s, built %s, %s)",
		Version, Commit, Date, GoVersion)
}
