package observability

// Binary versioning for logs and the version endpoint.
// Values are overwritten via -ldflags during build.
var (
	Version = "dev"  // release version
	Commit  = "none" // short commit
	Date    = ""     // ISO8601 UTC build time
)

type BuildInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

func Build() BuildInfo { return BuildInfo{Version: Version, Commit: Commit, Date: Date} }
