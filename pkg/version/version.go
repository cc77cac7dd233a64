// Package version exposes build metadata injected with -ldflags.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	// Version is injected at build time via -ldflags.
	Version = "dev"
	// BuildTime is injected at build time via -ldflags.
	BuildTime = "unknown"
	// GitCommit is injected at build time via -ldflags.
	GitCommit = "unknown"
)

const appName = "guildkeeper"

// Build describes the running binary.
type Build struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	Discordgo string `json:"discordgo,omitempty"`
}

// Current returns the build metadata. When the commit was not injected it
// falls back to the VCS stamp recorded by the Go toolchain.
func Current() Build {
	b := Build{
		Version:   Version,
		Commit:    GitCommit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return b
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if b.Commit == "unknown" && len(s.Value) >= 7 {
				b.Commit = s.Value[:7]
			}
		case "vcs.time":
			if b.BuildTime == "unknown" {
				b.BuildTime = s.Value
			}
		}
	}
	for _, dep := range info.Deps {
		if dep.Path == "github.com/bwmarrin/discordgo" {
			b.Discordgo = dep.Version
		}
	}
	return b
}

// GetVersion returns the short semantic version.
func GetVersion() string {
	return Version
}

// GetFullVersion returns a user-facing build string.
func GetFullVersion() string {
	b := Current()
	if b.Version == "dev" {
		return fmt.Sprintf("%s/%s (commit: %s, built: %s)", appName, b.Version, b.Commit, b.BuildTime)
	}
	return fmt.Sprintf("%s/%s", appName, b.Version)
}

// UserAgent is sent on outbound HTTP calls made outside discordgo.
func UserAgent() string {
	return fmt.Sprintf("%s (%s)", appName, Version)
}
