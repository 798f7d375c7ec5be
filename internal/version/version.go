// Package version provides build-time metadata for the otapush binaries.
// The variables below are set with -ldflags at release build time.
package version

import (
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/google/uuid"
)

var (
	// Version is the release tag or commit hash (e.g., "v1.0.0" or "a1b2c3d").
	// Set via: -ldflags "-X otapush/internal/version.Version=..."
	Version = "unknown"

	// BuildDate is the ISO 8601 UTC build timestamp.
	// Set via: -ldflags "-X otapush/internal/version.BuildDate=..."
	BuildDate = "unknown"

	// GitCommit is the commit SHA the binary was built from.
	// Set via: -ldflags "-X otapush/internal/version.GitCommit=..."
	GitCommit = "unknown"
)

// Info holds build metadata plus a per-process identity.
type Info struct {
	Version    string `json:"version" yaml:"version"`
	GitCommit  string `json:"git_commit" yaml:"git_commit"`
	BuildDate  string `json:"build_date" yaml:"build_date"`
	GoVersion  string `json:"go_version" yaml:"go_version"`
	InstanceID string `json:"instance_id" yaml:"instance_id"`
	Hostname   string `json:"hostname" yaml:"hostname"`
}

var (
	once sync.Once
	info Info
)

// GetInfo returns build metadata. The instance ID and hostname are computed
// on first use and cached for the life of the process.
func GetInfo() Info {
	once.Do(func() {
		info = Info{
			Version:    Version,
			GitCommit:  GitCommit,
			BuildDate:  BuildDate,
			GoVersion:  runtime.Version(),
			InstanceID: uuid.New().String(),
			Hostname:   getHostname(),
		}
	})
	return info
}

func getHostname() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return hostname
}

// String formats version info for `otapush version`.
func (i Info) String() string {
	return fmt.Sprintf("otapush version %s (commit: %s, built: %s)", i.Version, i.GitCommit, i.BuildDate)
}

// UserAgent identifies otapush in outgoing requests.
func (i Info) UserAgent() string {
	return "otapush/" + i.Version
}
