// Package version holds build-time version information.
package version

// These variables are set at build time via -ldflags.
//
// Example:
//
//	go build -ldflags "-X github.com/edgekit/device-manager/internal/version.Version=1.2.0"
var (
	// Version is the semantic version of the build.
	Version = "dev"

	// Commit is the git commit hash the binary was built from.
	Commit = "unknown"

	// BuildDate is the build timestamp in RFC3339 format.
	BuildDate = "unknown"
)
