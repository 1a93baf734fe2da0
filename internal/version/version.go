package version

import (
	"fmt"
	"runtime"
)

// Build-time variables set by ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Details is the build information reported by the CLI and the server.
type Details struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

// Get returns the build information.
func Get() Details {
	return Details{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
	}
}

func (d Details) String() string {
	return fmt.Sprintf("ledgerscan %s (commit %s, built %s, %s)", d.Version, d.GitCommit, d.BuildDate, d.GoVersion)
}
