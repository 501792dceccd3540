// Package buildinfo exposes the version stamped into mentionkit binaries.
package buildinfo

import (
	"encoding/json"
	"net/http"
	"runtime"
)

// Set at build time:
//
//	-X github.com/otherjamesbrown/mentionkit/pkg/buildinfo.Version=v0.3.0
//	-X github.com/otherjamesbrown/mentionkit/pkg/buildinfo.Commit=1f2e3d4
//	-X github.com/otherjamesbrown/mentionkit/pkg/buildinfo.BuildTime=2026-10-01T09:00:00Z
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Info describes the running binary.
type Info struct {
	Component string `json:"component" yaml:"component"`
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	BuildTime string `json:"build_time" yaml:"build_time"`
	GoVersion string `json:"go_version" yaml:"go_version"`
}

// Get returns build info for component ("cli", "server").
func Get(component string) Info {
	return Info{
		Component: component,
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
}

// String returns a one-liner like "v0.3.0 (1f2e3d4, 2026-10-01T09:00:00Z)".
func String() string {
	return Version + " (" + Commit + ", " + BuildTime + ")"
}

// UserAgent is sent by the gRPC client.
func UserAgent() string {
	return "mentionkit/" + Version
}

// Handler serves Get(component) as JSON.
func Handler(component string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Get(component))
	}
}
