package commands

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/pagepress/pagepress/internal/config"
	"github.com/pagepress/pagepress/internal/logfields"
	"github.com/pagepress/pagepress/internal/watch"
)

// WatchCmd implements the 'watch' command.
type WatchCmd struct {
	Publish bool `help:"Publish after every successful build"`
}

func (w *WatchCmd) Run(_ *Global, root *CLI) error {
	a, err := loadApp(root)
	if err != nil {
		return err
	}
	if err := a.openStores(); err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	a.serveMetrics(ctx)

	run := func(ctx context.Context) {
		var err error
		if w.Publish {
			err = a.buildAndPublish(ctx, false)
		} else {
			_, err = a.build(ctx)
		}
		if err != nil && ctx.Err() == nil {
			slog.Error("Rebuild failed", logfields.Error(err))
		}
	}
	run(ctx)

	watcher := &watch.Watcher{
		Dirs:     watchDirs(a.cfg),
		Ignore:   watchIgnored(a.cfg),
		OnChange: run,
	}
	slog.Info("Watching for changes", slog.Any("dirs", watcher.Dirs))
	return watcher.Run(ctx)
}

// watchDirs returns the existing directories whose changes affect the build.
func watchDirs(cfg *config.Config) []string {
	candidates := []string{cfg.Paths.ThemesDir}
	switch cfg.Content.Driver {
	case config.ContentFiles:
		candidates = append(candidates, cfg.Content.Dir)
	default:
		candidates = append(candidates, filepath.Dir(cfg.Content.DSN))
	}
	var dirs []string
	for _, d := range candidates {
		if fi, err := os.Stat(d); err == nil && fi.IsDir() {
			dirs = append(dirs, d)
		}
	}
	return dirs
}

// watchIgnored lists the directories the build itself writes to.
func watchIgnored(cfg *config.Config) []string {
	out := filepath.Clean(cfg.Paths.OutputDir)
	return []string{
		out,
		out + "_stage",
		out + ".prev",
		filepath.Join(cfg.Paths.DataDir, "reports"),
		filepath.Join(cfg.Paths.DataDir, "repository.git"),
	}
}
