package buildinfo

import (
	"fmt"
	"runtime"
)

// Set via -ldflags "-X ...".
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Info is the build information reported by `version` and GET /health.
type Info struct {
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	BuildTime string `json:"build_time" yaml:"build_time"`
	GoVersion string `json:"go_version" yaml:"go_version"`
	Platform  string `json:"platform" yaml:"platform"`
}

// Get returns the build information of the running binary.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// String returns a one-line summary, e.g. "v1.2.0 (abc123) built at ...".
func String() string {
	return fmt.Sprintf("%s (%s) built at %s", Version, Commit, BuildTime)
}

// UserAgent returns the User-Agent for the named component,
// e.g. "metalgate-cli/v1.2.0".
func UserAgent(component string) string {
	return component + "/" + Version
}
