package version

// Version contains the application version information.
// This should be set via build-time ldflags in production:
// go build -ldflags "-X github.com/pagepress/pagepress/internal/version.Version=v1.2.0".
var Version = "unknown"

// BuildInfo contains additional build metadata.
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// ToolName identifies the generator in commit messages and feed metadata.
const ToolName = "pagepress"

// CommitMessage returns the deterministic commit message used for published snapshots.
func CommitMessage() string {
	return "Update site by " + ToolName + " " + Version
}
