package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Build information, set at build time via
// -ldflags "-X github.com/teranos/PTX/version.Version=v0.3.0 ...".
var (
	CommitHash = ""
	BuildTime  = "unknown"
	Version    = "dev"
)

// Info contains version and build information
type Info struct {
	Version    string `json:"version"`
	CommitHash string `json:"commit_hash"`
	BuildTime  string `json:"build_time"`
	GoVersion  string `json:"go_version"`
	Platform   string `json:"platform"`
}

// Get returns the current version information. When no commit was injected
// it falls back to the VCS stamp the Go toolchain embeds.
func Get() Info {
	commit := CommitHash
	buildTime := BuildTime
	if commit == "" {
		commit, buildTime = vcsStamp(buildTime)
	}
	return Info{
		Version:    Version,
		CommitHash: commit,
		BuildTime:  buildTime,
		GoVersion:  runtime.Version(),
		Platform:   fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

func vcsStamp(buildTime string) (string, string) {
	commit := "unknown"
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return commit, buildTime
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			commit = s.Value
		case "vcs.time":
			if buildTime == "unknown" {
				buildTime = s.Value
			}
		}
	}
	return commit, buildTime
}

// String returns a human-readable version string
func (i Info) String() string {
	return fmt.Sprintf("ptx %s (commit %s, built %s, %s %s)", i.Version, i.Short(), i.BuildTime, i.GoVersion, i.Platform)
}

// Short returns the abbreviated commit hash
func (i Info) Short() string {
	if len(i.CommitHash) >= 7 {
		return i.CommitHash[:7]
	}
	return i.CommitHash
}
