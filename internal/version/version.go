// Package version carries build metadata stamped in via -ldflags.
package version

import "fmt"

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String returns a single-line description suitable for logs and /api/healthz.
func String() string {
	return fmt.Sprintf("vegetation.report %s (%s, built %s)", Version, GitSHA, BuildTime)
}
