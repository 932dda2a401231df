// Package version holds build metadata injected with ldflags:
//
//	go build -ldflags "-X github.com/rickgao/inplay-odds/internal/version.Version=1.0.0 \
//	                   -X github.com/rickgao/inplay-odds/internal/version.Commit=$(git rev-parse --short HEAD) \
//	                   -X github.com/rickgao/inplay-odds/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

import (
	"log/slog"
	"runtime"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// String returns a one-line version string.
func String() string {
	return Version + " (" + Commit + ") built " + BuildTime
}

// LogAttr groups the build metadata for a startup log line.
func LogAttr() slog.Attr {
	return slog.Group("build",
		slog.String("version", Version),
		slog.String("commit", Commit),
		slog.String("built", BuildTime),
		slog.String("go", runtime.Version()),
	)
}
