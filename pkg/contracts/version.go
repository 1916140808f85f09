package contracts

import (
	"fmt"
	"runtime"
)

const (
	// Version is shared by asyncopsd and asyncopsctl
	Version = "0.3.0"

	// APIVersion is the version of the REST and WebSocket contracts
	APIVersion = "v1"
)

// Set with -ldflags "-X asyncops/pkg/contracts.GitCommit=..."
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// VersionInfo is served by GET /api/version
type VersionInfo struct {
	Version      string `json:"version"`
	APIVersion   string `json:"api_version"`
	BuildTime    string `json:"build_time"`
	GitCommit    string `json:"git_commit"`
	GoVersion    string `json:"go_version"`
	OS           string `json:"os"`
	Architecture string `json:"architecture"`
}

// GetVersionInfo describes the running binary
func GetVersionInfo() VersionInfo {
	return VersionInfo{
		Version:      Version,
		APIVersion:   APIVersion,
		BuildTime:    BuildTime,
		GitCommit:    GitCommit,
		GoVersion:    runtime.Version(),
		OS:           runtime.GOOS,
		Architecture: runtime.GOARCH,
	}
}

// String renders the info on one line for version commands
func (v VersionInfo) String() string {
	return fmt.Sprintf("%s (api %s, commit %s, built %s, %s %s/%s)",
		v.Version, v.APIVersion, v.GitCommit, v.BuildTime, v.GoVersion, v.OS, v.Architecture)
}

// UserAgent identifies component in outbound HTTP requests
func UserAgent(component string) string {
	return component + "/" + Version
}
