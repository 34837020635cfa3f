package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pagepress/pagepress/internal/config"
	foundationerrors "github.com/pagepress/pagepress/internal/foundation/errors"
	"github.com/pagepress/pagepress/internal/store"
	"github.com/pagepress/pagepress/internal/store/filestore"
)

// ImportCmd implements the 'import' command.
type ImportCmd struct {
	Dir      string `arg:"" type:"existingdir" help:"Markdown directory to import"`
	Settings bool   `help:"Also copy site settings from the directory's settings.yaml"`
}

func (i *ImportCmd) Run(_ *Global, root *CLI) error {
	a, err := loadApp(root)
	if err != nil {
		return err
	}
	if a.cfg.Content.Driver != config.ContentSQLite {
		return foundationerrors.ConfigError("import requires content.driver: sqlite").
			WithContext("driver", string(a.cfg.Content.Driver)).Build()
	}
	src, err := filestore.Open(i.Dir)
	if err != nil {
		return foundationerrors.WrapError(err, foundationerrors.CategoryValidation, "invalid import directory").Build()
	}
	if err := a.openStores(); err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := a.sqlite.Import(ctx, src)
	if err != nil {
		return foundationerrors.WrapError(err, foundationerrors.CategoryStore, "import failed").Build()
	}
	if i.Settings {
		siteValues, err := src.Get(ctx, store.SitePath)
		if err != nil {
			return foundationerrors.WrapError(err, foundationerrors.CategoryValidation, "failed to read settings").Build()
		}
		if siteValues != nil {
			if err := a.sqlite.Set(ctx, store.SitePath, siteValues); err != nil {
				return foundationerrors.WrapError(err, foundationerrors.CategoryStore, "failed to store settings").Build()
			}
		}
	}
	_, _ = fmt.Fprintf(a.out, "Imported %d article(s), %d unchanged, %d failed\n", res.Imported, res.Unchanged, res.Failed)
	return nil
}
