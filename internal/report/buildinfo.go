package report

// Version is the public version string shown to users. It is deliberately
// decoupled from the build metadata below, which identifies the exact
// build in diagnostics.
const Version = "1.2.0"

// Build identity, injected at link time:
//
//	go build -ldflags "-X albumvideo/internal/report.Commit=... \
//	    -X albumvideo/internal/report.Branch=... \
//	    -X albumvideo/internal/report.Tag=..."
var (
	Commit = "unknown"
	Branch = "unknown"
	Tag    = ""
)

// BuildInfo is the build identity attached to every report, diagnostics
// bundle, and log payload.
type BuildInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Branch  string `json:"branch"`
	Tag     string `json:"tag,omitempty"`
}

// CurrentBuild returns this binary's identity.
func CurrentBuild() BuildInfo {
	return BuildInfo{Version: Version, Commit: Commit, Branch: Branch, Tag: Tag}
}

// Packaged reports whether this is a packaged release build. Packaging
// always stamps a tag; development builds leave it empty.
func Packaged() bool {
	return Tag != ""
}
