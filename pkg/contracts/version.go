package contracts

import (
	"fmt"
	"runtime"
)

const (
	// Version is the current version of the application
	Version = "1.0.0"

	// DatasetFormatVersion is the version of the dataset definition file format
	DatasetFormatVersion = "v1"

	// APIVersion is the version of the HTTP and WebSocket API
	APIVersion = "v1"
)

// Set during build using ldflags
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// VersionInfo contains detailed version information
type VersionInfo struct {
	Version       string `json:"version"`
	BuildTime     string `json:"build_time"`
	GitCommit     string `json:"git_commit"`
	GoVersion     string `json:"go_version"`
	OS            string `json:"os"`
	Architecture  string `json:"architecture"`
	DatasetFormat string `json:"dataset_format"`
	APIVersion    string `json:"api_version"`
}

// GetVersionInfo returns detailed version information
func GetVersionInfo() VersionInfo {
	return VersionInfo{
		Version:       Version,
		BuildTime:     BuildTime,
		GitCommit:     GitCommit,
		GoVersion:     runtime.Version(),
		OS:            runtime.GOOS,
		Architecture:  runtime.GOARCH,
		DatasetFormat: DatasetFormatVersion,
		APIVersion:    APIVersion,
	}
}

// GetFullVersionString returns a one-line version banner for CLI output
func GetFullVersionString(app string) string {
	info := GetVersionInfo()
	return fmt.Sprintf("%s v%s (built: %s, commit: %s, go: %s, os: %s/%s)",
		app, info.Version, info.BuildTime, info.GitCommit, info.GoVersion, info.OS, info.Architecture)
}
