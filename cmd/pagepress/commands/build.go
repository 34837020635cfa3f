package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// BuildCmd implements the 'build' command.
type BuildCmd struct {
	Output string `short:"o" help:"Override paths.output_dir"`
}

func (b *BuildCmd) Run(_ *Global, root *CLI) error {
	a, err := loadApp(root)
	if err != nil {
		return err
	}
	if b.Output != "" {
		a.cfg.Paths.OutputDir = b.Output
	}
	if err := a.openStores(); err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	a.serveMetrics(ctx)
	_, err = a.build(ctx)
	return err
}
