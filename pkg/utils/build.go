// Build information is injected through -ldflags at link time, e.g.
//   -X github.com/nobletooth/doclist/pkg/utils.Version=v0.3.0
// CAUTION: This file shouldn't be removed or else the link flags would have nothing to set.

package utils

import (
	"log/slog"
	"strconv"
	"time"
)

var (
	TestMode   string // Should be true when running tests.
	IsTestMode bool
	Version    string
	Commit     string
	BuildTime  string
	StartTime  time.Time
)

// devVersion is used when no version was linked in; it's still a valid semantic version.
const devVersion = "v0.0.0-dev"

func init() {
	StartTime = time.Now()

	if Version == "" {
		Version = devVersion
	}
	if Commit == "" {
		Commit = "unknown"
	}
	if BuildTime == "" {
		BuildTime = "unknown"
	}
	if len(TestMode) > 0 {
		if isTestMode, err := strconv.ParseBool(TestMode); err == nil {
			IsTestMode = isTestMode
		} else {
			slog.Warn("Failed to parse TestMode build flag, defaulting to false", "error", err)
		}
	}
}

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version   string `yaml:"version"`
	Commit    string `yaml:"commit"`
	BuildTime string `yaml:"buildTime"`
	Uptime    string `yaml:"uptime"`
}

// GetBuildInfo returns the linked build information.
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		Uptime:    time.Since(StartTime).Round(time.Millisecond).String(),
	}
}
