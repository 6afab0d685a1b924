package config

import "time"

// These are injected at build time via -ldflags
var (
	Version   string
	GitCommit string
	BuildTime string
)

func init() {
	if Version == "" {
		Version = "dev"
	}
	if GitCommit == "" {
		GitCommit = "local"
	}
	if BuildTime == "" {
		BuildTime = time.Now().Format("2006-01-02 15:04:05")
	}
}

// VersionString renders the build metadata on one line.
func VersionString() string {
	return "chapterd " + Version + " (" + GitCommit + ", built " + BuildTime + ")"
}
