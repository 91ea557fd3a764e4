// Package version carries build metadata stamped in with -ldflags.
package version

import "fmt"

var (
	Version   = "dev"
	GitSHA    = "unknown"
	BuildTime = "unknown"
)

// String formats the build metadata for startup logs and -version.
func String() string {
	return fmt.Sprintf("gridmapper %s (%s, built %s)", Version, GitSHA, BuildTime)
}
