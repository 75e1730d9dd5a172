package version

import (
	"fmt"
	"runtime/debug"
)

var (
	// Version is the release tag, set with -ldflags at build time.
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String formats the build stamp for `retarget version`. Unstamped builds
// fall back to the VCS revision recorded by the Go toolchain.
func String() string {
	sha := GitSHA
	if sha == "unknown" {
		if info, ok := debug.ReadBuildInfo(); ok {
			for _, s := range info.Settings {
				if s.Key == "vcs.revision" && s.Value != "" {
					sha = s.Value
				}
			}
		}
	}
	if len(sha) > 12 {
		sha = sha[:12]
	}
	return fmt.Sprintf("retarget %s (%s, built %s)", Version, sha, BuildTime)
}
