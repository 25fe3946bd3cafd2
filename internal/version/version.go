// Package version reports the etch build identity. The version string also
// stamps every lockfile, so a binary upgrade invalidates cached hashes.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version   string    `json:"version"`
	GitCommit string    `json:"git_commit"`
	BuildTime time.Time `json:"build_time"`
	GoVersion string    `json:"go_version"`
	Platform  string    `json:"platform"`
	Modified  bool      `json:"modified,omitempty"`
}

// Set at build time with -ldflags "-X github.com/conneroisu/etch/internal/version.Version=..."
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// readBuildInfo is swapped in tests.
var readBuildInfo = debug.ReadBuildInfo

// GetBuildInfo collects the ldflags values, falling back to the module and
// VCS data embedded by the Go toolchain.
func GetBuildInfo() *BuildInfo {
	return &BuildInfo{
		Version:   GetVersion(),
		GitCommit: GetGitCommit(),
		BuildTime: parseBuildTime(BuildTime),
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		Modified:  vcsSetting("vcs.modified") == "true",
	}
}

// GetVersion returns the semantic version, or a dev marker with the short
// revision for untagged builds.
func GetVersion() string {
	if Version != "" && Version != "dev" {
		return Version
	}

	if info, ok := readBuildInfo(); ok {
		if v := info.Main.Version; v != "" && v != "(devel)" {
			return v
		}
	}
	if rev := vcsSetting("vcs.revision"); len(rev) >= 7 {
		return "dev-" + rev[:7]
	}

	return "dev"
}

// GetGitCommit returns the full commit hash the binary was built from.
func GetGitCommit() string {
	if GitCommit != "" && GitCommit != "unknown" {
		return GitCommit
	}
	if rev := vcsSetting("vcs.revision"); rev != "" {
		return rev
	}

	return "unknown"
}

// LockfileStamp is the value written to a lockfile's version field.
func LockfileStamp() string {
	return GetVersion()
}

// IsRelease reports whether the binary carries a tagged version.
func IsRelease() bool {
	v := GetVersion()
	return v != "dev" && !strings.HasPrefix(v, "dev-")
}

// String renders the multi-line `etch version` output.
func (b *BuildInfo) String() string {
	lines := []string{"etch " + b.Version}
	if b.GitCommit != "unknown" {
		commit := b.GitCommit
		if b.Modified {
			commit += " (modified)"
		}
		lines = append(lines, "commit:   "+commit)
	}
	if !b.BuildTime.IsZero() {
		lines = append(lines, "built:    "+b.BuildTime.Format(time.RFC3339))
	}
	lines = append(lines,
		fmt.Sprintf("go:       %s", b.GoVersion),
		fmt.Sprintf("platform: %s", b.Platform),
	)

	return strings.Join(lines, "\n")
}

func vcsSetting(key string) string {
	info, ok := readBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}

	return ""
}

func parseBuildTime(s string) time.Time {
	if s == "" || s == "unknown" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}

	return time.Time{}
}
