package main

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"github.com/pagepress/pagepress/cmd/pagepress/commands"
	foundationerrors "github.com/pagepress/pagepress/internal/foundation/errors"
	"github.com/pagepress/pagepress/internal/version"
)

func main() {
	cli := &commands.CLI{}
	parser := kong.Must(cli,
		kong.Name(version.ToolName),
		kong.Description("Static site generator with git publishing"),
		kong.UsageOnError(),
		kong.Vars{"version": version.Version},
	)
	ctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	global := &commands.Global{Logger: slog.Default()}
	if err := ctx.Run(global, cli); err != nil {
		foundationerrors.NewCLIErrorAdapter(cli.Verbose, slog.Default()).HandleError(err)
	}
}
