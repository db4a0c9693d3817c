package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Version is the release version. Override at build time with
// -ldflags "-X github.com/latoulicious/groovebox/internal/version.Version=v1.2.3".
var Version = "0.1.0"

// Info describes the running binary.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

// Get assembles Info from the release version plus the VCS metadata the
// toolchain embeds when building from a checkout.
func Get() Info {
	info := Info{
		Version:   Version,
		GitCommit: "unknown",
		BuildTime: "unknown",
		GoVersion: runtime.Version(),
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				info.GitCommit = s.Value
			case "vcs.time":
				info.BuildTime = s.Value
			}
		}
	}
	return info
}

// String renders a single line for logs and status output.
func (i Info) String() string {
	return fmt.Sprintf("groovebox v%s (commit: %s, built: %s, go: %s)",
		i.Version, i.GitCommit, i.BuildTime, i.GoVersion)
}
