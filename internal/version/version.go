// Package version carries the build metadata stamped into release
// binaries and reported to the venue as part of the login appName.
//
// Override the defaults with ldflags:
//
//	go build -ldflags "-X github.com/venuewire/xapi/internal/version.Version=1.0.0 \
//	                   -X github.com/venuewire/xapi/internal/version.Commit=$(git rev-parse --short HEAD) \
//	                   -X github.com/venuewire/xapi/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

var (
	// Version is the semantic version of this build.
	Version = "dev"

	// Commit is the short git commit hash the build came from.
	Commit = "unknown"

	// BuildTime is the UTC build timestamp.
	BuildTime = "unknown"
)

// String formats all three fields for human output.
func String() string {
	return Version + " (" + Commit + ") built " + BuildTime
}
