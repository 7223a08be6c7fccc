// Package version carries build metadata injected via -ldflags.
package version

import "fmt"

var (
	// Version is the release tag, "dev" for local builds.
	Version = "dev"
	// GitSHA identifies the commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is when the binary was built.
	BuildTime = "unknown"
)

// String renders the build metadata as a single log-friendly line.
func String() string {
	return fmt.Sprintf("%s (%s, built %s)", Version, GitSHA, BuildTime)
}
