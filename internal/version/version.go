// Package version exposes build metadata injected at link time, with
// debug.ReadBuildInfo as the fallback for plain `go install` builds.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

// Overridden with -ldflags "-X" at release time; the zero values mark a
// development build.
var (
	// Version is the release tag.
	Version = "dev"

	// GitCommit is the full commit hash the binary was built from.
	GitCommit = "unknown"

	// BuildTime is when the binary was built, RFC3339.
	BuildTime = "unknown"
)

// BuildInfo is the resolved build metadata served by the version command
// and the /health endpoint.
type BuildInfo struct {
	Version   string    `json:"version"`
	GitCommit string    `json:"git_commit"`
	BuildTime time.Time `json:"build_time"`
	GoVersion string    `json:"go_version"`
	Platform  string    `json:"platform"`
}

// Get returns the resolved build information.
func Get() *BuildInfo {
	return &BuildInfo{
		Version:   resolvedVersion(),
		GitCommit: resolvedCommit(),
		BuildTime: parseBuildTime(BuildTime),
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// Short returns a one-line version string suitable for display.
func Short() string {
	version := resolvedVersion()
	commit := resolvedCommit()

	if commit != "unknown" && len(commit) >= 7 {
		if version != "dev" {
			return fmt.Sprintf("%s (%s)", version, commit[:7])
		}
		return "dev-" + commit[:7]
	}
	return version
}

// Detailed returns a multi-line version report.
func Detailed() string {
	info := Get()

	parts := []string{"Version: " + info.Version}
	if info.GitCommit != "unknown" {
		parts = append(parts, "Commit: "+info.GitCommit)
	}
	if !info.BuildTime.IsZero() {
		parts = append(parts, "Built: "+info.BuildTime.Format(time.RFC3339))
	}
	parts = append(parts,
		"Go: "+info.GoVersion,
		"Platform: "+info.Platform,
	)
	return strings.Join(parts, "\n")
}

// IsRelease reports whether this is a tagged release build.
func IsRelease() bool {
	v := resolvedVersion()
	return v != "dev" && !strings.HasPrefix(v, "dev-")
}

func resolvedVersion() string {
	if Version != "" && Version != "dev" {
		return Version
	}

	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			return info.Main.Version
		}
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" && len(setting.Value) >= 7 {
				return "dev-" + setting.Value[:7]
			}
		}
	}
	return "dev"
}

func resolvedCommit() string {
	if GitCommit != "" && GitCommit != "unknown" {
		return GitCommit
	}

	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" {
				return setting.Value
			}
		}
	}
	return "unknown"
}

func parseBuildTime(s string) time.Time {
	if s == "" || s == "unknown" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
		return t
	}
	return time.Time{}
}
