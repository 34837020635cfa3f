package commands

import (
	"fmt"

	"github.com/pagepress/pagepress/internal/version"
)

// VersionCmd implements the 'version' command.
type VersionCmd struct{}

func (v *VersionCmd) Run(_ *Global, _ *CLI) error {
	fmt.Printf("%s %s (commit %s, built %s)\n", version.ToolName, version.Version, version.GitCommit, version.BuildTime)
	return nil
}
