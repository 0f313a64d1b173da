package handlers

import (
	"net/http"
	"runtime"

	"github.com/fulmenhq/gofulmen/crucible"
)

// VersionResponse is the body of GET /version.
type VersionResponse struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Crucible  string `json:"crucible,omitempty"`
	Gofulmen  string `json:"gofulmen,omitempty"`
}

var buildInfo = VersionResponse{Version: "dev", Commit: "unknown", BuildDate: "unknown"}

// SetBuildInfo records the values reported by VersionHandler.
func SetBuildInfo(version, commit, buildDate string) {
	buildInfo.Version = version
	buildInfo.Commit = commit
	buildInfo.BuildDate = buildDate
}

// VersionHandler reports build information.
func VersionHandler(w http.ResponseWriter, r *http.Request) {
	resp := buildInfo
	resp.GoVersion = runtime.Version()
	v := crucible.GetVersion()
	resp.Crucible = v.Crucible
	resp.Gofulmen = v.Gofulmen
	writeJSON(w, http.StatusOK, resp)
}
