package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/pagepress/pagepress/internal/config"
	foundationerrors "github.com/pagepress/pagepress/internal/foundation/errors"
	"github.com/pagepress/pagepress/internal/logfields"
	"github.com/pagepress/pagepress/internal/markup"
	"github.com/pagepress/pagepress/internal/metrics"
	"github.com/pagepress/pagepress/internal/progress"
	"github.com/pagepress/pagepress/internal/publish"
	"github.com/pagepress/pagepress/internal/site"
	"github.com/pagepress/pagepress/internal/store"
	"github.com/pagepress/pagepress/internal/store/filestore"
	"github.com/pagepress/pagepress/internal/store/sqlitestore"
	"github.com/pagepress/pagepress/internal/theme"
)

// app wires the configured components for one command invocation.
type app struct {
	cfg *config.Config
	out io.Writer

	content  store.ContentStore
	settings store.ConfigStore
	sqlite   *sqlitestore.Store
	themes   *theme.Store

	registry *prometheus.Registry
	recorder metrics.Recorder

	engOnce   sync.Once
	eng       *site.Engine
	engErr    error
	syncOnce  sync.Once
	syncer    *publish.Synchronizer
	syncerErr error
}

// loadApp reads the configuration and installs the configured logger. Stores are opened
// separately by openStores.
func loadApp(root *CLI) (*app, error) {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return nil, err
	}
	configureLogging(cfg, root.Verbose)
	a := &app{
		cfg:      cfg,
		out:      os.Stdout,
		themes:   theme.NewStore(cfg.Paths.ThemesDir),
		recorder: metrics.NoopRecorder{},
	}
	if cfg.Metrics.Enabled {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		a.recorder = metrics.NewPrometheusRecorder(a.registry)
	}
	return a, nil
}

// openStores opens the content and settings stores of the configured driver.
func (a *app) openStores() error {
	switch a.cfg.Content.Driver {
	case config.ContentFiles:
		fs, err := filestore.Open(a.cfg.Content.Dir)
		if err != nil {
			return foundationerrors.WrapError(err, foundationerrors.CategoryConfig, "failed to open content directory").
				WithContext("path", a.cfg.Content.Dir).UserAction().Build()
		}
		a.content, a.settings = fs, fs
	default:
		if err := os.MkdirAll(filepath.Dir(a.cfg.Content.DSN), 0o750); err != nil {
			return foundationerrors.WrapError(err, foundationerrors.CategoryFileSystem, "failed to create data directory").
				WithContext("path", filepath.Dir(a.cfg.Content.DSN)).Build()
		}
		db, err := sqlitestore.Open(a.cfg.Content.DSN)
		if err != nil {
			return foundationerrors.WrapError(err, foundationerrors.CategoryStore, "failed to open content database").
				WithContext("dsn", a.cfg.Content.DSN).Build()
		}
		a.sqlite = db
		a.content, a.settings = db, db
	}
	return nil
}

func (a *app) Close() {
	if a.sqlite != nil {
		if err := a.sqlite.Close(); err != nil {
			slog.Warn("Failed to close content database", logfields.Error(err))
		}
	}
}

func (a *app) markdown() markup.Extensions {
	md := a.cfg.Build.Markdown
	return markup.Extensions{
		Table:          config.Enabled(md.Table),
		Strikethrough:  config.Enabled(md.Strikethrough),
		TaskList:       config.Enabled(md.TaskList),
		Footnote:       config.Enabled(md.Footnote),
		Linkify:        config.Enabled(md.Linkify),
		DefinitionList: config.Enabled(md.DefinitionList),
		Typographer:    config.Enabled(md.Typographer),
		Highlight:      config.Enabled(md.Highlight),
		Math:           config.Enabled(md.Math),
		Mermaid:        config.Enabled(md.Mermaid),
		Mark:           config.Enabled(md.Mark),
		HighlightStyle: md.HighlightStyle,
	}
}

// engine returns the build engine, creating it once so concurrent triggers share its gate.
func (a *app) engine() (*site.Engine, error) {
	a.engOnce.Do(func() {
		a.eng, a.engErr = site.New(site.Options{
			OutputDir:     a.cfg.Paths.OutputDir,
			ReportDir:     filepath.Join(a.cfg.Paths.DataDir, "reports"),
			RenderWorkers: a.cfg.Build.RenderWorkers,
			Markdown:      a.markdown(),
			Content:       a.content,
			Settings:      a.settings,
			Themes:        a.themes,
			Recorder:      a.recorder,
		})
	})
	return a.eng, a.engErr
}

// synchronizer returns the publisher, creating it once.
func (a *app) synchronizer() (*publish.Synchronizer, error) {
	a.syncOnce.Do(func() {
		p := a.cfg.Publish
		a.syncer, a.syncerErr = publish.New(publish.Options{
			MetadataDir: filepath.Join(a.cfg.Paths.DataDir, "repository.git"),
			WorktreeDir: a.cfg.Paths.OutputDir,
			RemoteURL:   p.URL(),
			Branch:      p.Branch,
			AuthorName:  p.AuthorName,
			AuthorEmail: p.AuthorEmail,
			Recorder:    a.recorder,
		})
	})
	return a.syncer, a.syncerErr
}

// credentials reads the publish token from the configuration or its environment variable.
func (a *app) credentials() publish.Credentials {
	token := a.cfg.Publish.Token
	if token == "" {
		token = os.Getenv(a.cfg.Publish.TokenEnv)
	}
	return publish.Credentials{Account: a.cfg.Publish.Account, Token: token}
}

// build runs one build while printing progress.
func (a *app) build(ctx context.Context) (*site.Result, error) {
	eng, err := a.engine()
	if err != nil {
		return nil, err
	}
	stop := pollProgress(ctx, a.out, "build", eng.Progress)
	res, err := eng.Build(ctx)
	stop()
	if err != nil {
		return nil, err
	}
	_, _ = fmt.Fprintf(a.out, "Built %s: %s\n", res.OutputDir, res.Report.Summary())
	for _, w := range res.Report.Warnings {
		_, _ = fmt.Fprintf(a.out, "  warning: %s\n", w)
	}
	return res, nil
}

// publish pushes manifest, bounded by the configured timeout.
func (a *app) publish(ctx context.Context, manifest *site.Manifest, force bool) (*publish.Result, error) {
	syncer, err := a.synchronizer()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Publish.TimeoutDuration())
	defer cancel()
	stop := pollProgress(ctx, a.out, "publish", syncer.Progress)
	res, err := syncer.Publish(ctx, manifest, publish.PublishOptions{Credentials: a.credentials(), Force: force})
	stop()
	if err != nil {
		return nil, err
	}
	if res.NoChanges {
		_, _ = fmt.Fprintln(a.out, "Nothing to publish: remote is up to date")
	} else {
		c := res.Changes
		_, _ = fmt.Fprintf(a.out, "Published %s to %s (%d added, %d modified, %d deleted)\n",
			shortHash(res.Commit), a.cfg.Publish.Branch, len(c.Added), len(c.Modified), len(c.Deleted))
	}
	return res, nil
}

// buildAndPublish builds, then publishes when publishing is configured.
func (a *app) buildAndPublish(ctx context.Context, force bool) error {
	res, err := a.build(ctx)
	if err != nil {
		return err
	}
	if !a.cfg.Publish.Configured() {
		slog.Info("Publishing not configured; skipping publish")
		return nil
	}
	_, err = a.publish(ctx, res.Manifest, force)
	return err
}

// serveMetrics exposes the Prometheus registry until ctx ends.
func (a *app) serveMetrics(ctx context.Context) {
	if a.registry == nil {
		return
	}
	mux := http.NewServeMux()
	mux.Handle(a.cfg.Metrics.Path, metrics.HTTPHandler(a.registry))
	srv := &http.Server{Addr: a.cfg.Metrics.Listen, Handler: mux, ReadTimeout: 30 * time.Second, WriteTimeout: 30 * time.Second, IdleTimeout: 120 * time.Second}
	go func() {
		slog.Info("Serving metrics", slog.String("listen", a.cfg.Metrics.Listen), logfields.Path(a.cfg.Metrics.Path))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server failed", logfields.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

// pollProgress prints a line whenever the snapshot changes. The returned function stops
// polling and prints the final state.
func pollProgress(ctx context.Context, w io.Writer, label string, snap func() progress.Snapshot) func() {
	done := make(chan struct{})
	stopped := make(chan struct{})
	var last string
	report := func() {
		s := snap()
		line := formatProgress(label, s)
		if line != last {
			last = line
			_, _ = fmt.Fprintln(w, line)
		}
	}
	go func() {
		defer close(stopped)
		t := time.NewTicker(250 * time.Millisecond)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-t.C:
				report()
			}
		}
	}()
	return func() {
		close(done)
		<-stopped
		report()
	}
}

func formatProgress(label string, s progress.Snapshot) string {
	if s.Total > 0 {
		return fmt.Sprintf("[%s] %s %d/%d (%d%%) %s", label, s.Phase, s.Current, s.Total, s.Percent(), s.Message)
	}
	return fmt.Sprintf("[%s] %s %s", label, s.Phase, s.Message)
}

func shortHash(h string) string {
	if len(h) > 7 {
		return h[:7]
	}
	return h
}
