// Package version provides build-time version information.
//
// Variables are set at build time via ldflags:
//
//	go build -ldflags "-X github.com/dearvn/tradovate-go/internal/version.Version=1.0.0 \
//	                   -X github.com/dearvn/tradovate-go/internal/version.Commit=$(git rev-parse --short HEAD) \
//	                   -X github.com/dearvn/tradovate-go/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

// Build-time variables (set via ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// UserAgent identifies the client in the appVersion field and HTTP headers.
func UserAgent() string {
	return "tradovate-go/" + Version
}

// String returns a formatted version string.
func String() string {
	return Version + " (" + Commit + ") built " + BuildTime
}
