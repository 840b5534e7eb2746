// Package version carries build metadata stamped in with -ldflags, e.g.
//
//	-X github.com/soyeahso/voicesquad/internal/version.Version=1.0.0
//	-X github.com/soyeahso/voicesquad/internal/version.Commit=abc123
//	-X github.com/soyeahso/voicesquad/internal/version.Date=2026-01-01
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Build describes the running binary.
type Build struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
}

// Get returns the build description. A binary built without ldflags falls
// back to the VCS revision recorded by the Go toolchain.
func Get() Build {
	b := Build{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if b.Commit == "unknown" {
		if rev, ok := vcsRevision(); ok {
			b.Commit = rev
		}
	}
	return b
}

func vcsRevision() (string, bool) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "", false
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			return s.Value, true
		}
	}
	return "", false
}

// Info is the one-line form printed by "voicesquad version".
func Info() string {
	b := Get()
	return fmt.Sprintf("voicesquad %s (%s, built %s) %s %s",
		b.Version, abbrev(b.Commit), b.Date, b.GoVersion, b.Platform)
}

// abbrev shortens a commit hash for display.
func abbrev(commit string) string {
	const n = 7
	if len(commit) <= n {
		return commit
	}
	return commit[:n]
}

// UserAgent is sent on outbound HTTP and WebSocket requests.
func UserAgent() string {
	return "voicesquad/" + Version + " (" + runtime.GOOS + "/" + runtime.GOARCH + ")"
}
