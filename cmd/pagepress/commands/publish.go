package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	foundationerrors "github.com/pagepress/pagepress/internal/foundation/errors"
	"github.com/pagepress/pagepress/internal/publish"
	"github.com/pagepress/pagepress/internal/site"
)

// PublishCmd implements the 'publish' command.
type PublishCmd struct {
	Force     bool `help:"Overwrite the remote branch even when it has diverged"`
	SkipBuild bool `name:"skip-build" help:"Publish the existing output directory without rebuilding"`
}

func (p *PublishCmd) Run(_ *Global, root *CLI) error {
	a, err := loadApp(root)
	if err != nil {
		return err
	}
	if !a.cfg.Publish.Configured() {
		return foundationerrors.WrapError(publish.ErrNotConfigured, foundationerrors.CategoryConfig,
			"set publish.account and publish.repository, or publish.remote_url").UserAction().Build()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	a.serveMetrics(ctx)

	var manifest *site.Manifest
	if p.SkipBuild {
		if manifest, err = site.ScanManifest(a.cfg.Paths.OutputDir); err != nil {
			return err
		}
	} else {
		if err := a.openStores(); err != nil {
			return err
		}
		defer a.Close()
		res, err := a.build(ctx)
		if err != nil {
			return err
		}
		manifest = res.Manifest
	}
	_, err = a.publish(ctx, manifest, p.Force)
	return err
}
