package site

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	foundationerrors "github.com/pagepress/pagepress/internal/foundation/errors"
	"github.com/pagepress/pagepress/internal/logfields"
	"github.com/pagepress/pagepress/internal/markup"
	"github.com/pagepress/pagepress/internal/metrics"
	"github.com/pagepress/pagepress/internal/progress"
	"github.com/pagepress/pagepress/internal/store"
	"github.com/pagepress/pagepress/internal/theme"
)

// ErrBuildInProgress is returned by Build while another build of the same engine runs.
var ErrBuildInProgress = errors.New("a build is already in progress")

// Phase is the externally visible state of the engine.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseInitializing Phase = "initializing"
	PhaseRendering    Phase = "rendering"
	PhaseFinalizing   Phase = "finalizing"
	PhaseSucceeded    Phase = "succeeded"
	PhaseFailed       Phase = "failed"
)

// ThemeLoader resolves a theme by name. *theme.Store implements it.
type ThemeLoader interface {
	Load(name string) (*theme.Theme, error)
}

// Options configures an Engine.
type Options struct {
	// OutputDir receives the generated site. Its sibling <OutputDir>_stage is used while
	// building.
	OutputDir string
	// ReportDir receives one JSON report per build; empty disables reports.
	ReportDir string
	// RenderWorkers bounds parallel article rendering; values below 1 mean 1.
	RenderWorkers int
	Markdown      markup.Extensions

	Content  store.ContentStore
	Settings store.ConfigStore
	Themes   ThemeLoader
	Recorder metrics.Recorder

	// Now is the clock used for timestamps; nil means time.Now.
	Now func() time.Time
}

// Result describes a successful build.
type Result struct {
	BuildID   string
	OutputDir string
	Manifest  *Manifest
	Report    *BuildReport
}

// Engine builds sites. It holds no per-build state between builds and allows one build at a
// time.
type Engine struct {
	outputDir string
	reportDir string
	workers   int

	content  store.ContentStore
	settings store.ConfigStore
	themes   ThemeLoader
	renderer *markup.Renderer
	recorder metrics.Recorder
	now      func() time.Time

	mu       sync.Mutex
	progress *progress.Tracker
}

// New validates opts and creates an engine.
func New(opts Options) (*Engine, error) {
	if opts.OutputDir == "" {
		return nil, foundationerrors.ConfigError("output directory is required").Build()
	}
	if opts.Content == nil || opts.Settings == nil || opts.Themes == nil {
		return nil, foundationerrors.InternalError("build engine requires content, settings and theme stores").Build()
	}
	out, err := filepath.Abs(opts.OutputDir)
	if err != nil {
		return nil, foundationerrors.WrapError(err, foundationerrors.CategoryConfig, "invalid output directory").
			WithContext("path", opts.OutputDir).Build()
	}
	renderer, err := markup.New(opts.Markdown)
	if err != nil {
		return nil, foundationerrors.WrapError(err, foundationerrors.CategoryConfig, "invalid markdown configuration").Build()
	}
	workers := opts.RenderWorkers
	if workers < 1 {
		workers = 1
	}
	if workers > runtime.NumCPU()*4 {
		workers = runtime.NumCPU() * 4
	}
	rec := opts.Recorder
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		outputDir: filepath.Clean(out),
		reportDir: opts.ReportDir,
		workers:   workers,
		content:   opts.Content,
		settings:  opts.Settings,
		themes:    opts.Themes,
		renderer:  renderer,
		recorder:  rec,
		now:       now,
		progress:  progress.NewTracker(string(PhaseIdle)),
	}, nil
}

// OutputDir returns the absolute output directory.
func (e *Engine) OutputDir() string { return e.outputDir }

// Progress returns a snapshot of the current or last build. Safe to call concurrently with
// Build.
func (e *Engine) Progress() progress.Snapshot {
	return e.progress.Snapshot()
}

// Build regenerates the whole site. On success the output directory holds exactly the files
// listed in the returned manifest; on failure it is left as it was before the build.
func (e *Engine) Build(ctx context.Context) (*Result, error) {
	if !e.mu.TryLock() {
		return nil, ErrBuildInProgress
	}
	defer e.mu.Unlock()

	start := e.now()
	bs := newBuildState(e, uuid.NewString(), start)
	e.progress.Start(string(PhaseInitializing), 0, "loading site configuration")
	bs.phase = PhaseInitializing
	slog.Info("Build started", logfields.BuildID(bs.id), logfields.Path(e.outputDir))

	err := runStages(ctx, bs, pipeline())
	if err == nil {
		err = e.promoteStaging(bs.stageDir)
	}
	if err == nil {
		bs.stageDir = ""
	} else {
		e.abortStaging(bs.stageDir)
	}

	end := e.now()
	bs.report.finish(end, err)
	e.recorder.ObserveBuildDuration(end.Sub(start))
	e.persistReport(bs.report)

	if err != nil {
		outcome := string(bs.report.Outcome)
		e.recorder.IncBuildOutcome(outcome)
		e.progress.SetPhase(string(PhaseFailed), err.Error())
		slog.Error("Build failed", logfields.BuildID(bs.id), logfields.Error(err),
			logfields.DurationMS(float64(end.Sub(start).Milliseconds())))
		return nil, wrapBuildError(err, bs.phase)
	}

	e.recorder.IncBuildOutcome(string(bs.report.Outcome))
	e.progress.SetPhase(string(PhaseSucceeded), fmt.Sprintf("built %d files", bs.manifest.Len()))
	slog.Info("Build completed", logfields.BuildID(bs.id), slog.String("summary", bs.report.Summary()))
	return &Result{
		BuildID:   bs.id,
		OutputDir: e.outputDir,
		Manifest:  bs.manifest,
		Report:    bs.report,
	}, nil
}

func (e *Engine) persistReport(r *BuildReport) {
	if e.reportDir == "" {
		return
	}
	if err := r.Persist(e.reportDir); err != nil {
		slog.Warn("Failed to persist build report", logfields.BuildID(r.BuildID), logfields.Error(err))
	}
}

// wrapBuildError keeps classified errors intact and adds the failing stage and phase as
// context.
func wrapBuildError(err error, phase Phase) error {
	var se *StageError
	if !errors.As(err, &se) {
		if ce, ok := foundationerrors.AsClassified(err); ok {
			return ce.WithContext("phase", string(phase))
		}
		return err
	}
	if se.Kind == StageErrorCanceled {
		return err
	}
	if ce, ok := foundationerrors.AsClassified(se.Err); ok {
		return ce.WithContext("stage", string(se.Stage)).WithContext("phase", string(phase))
	}
	return foundationerrors.WrapError(se.Err, foundationerrors.CategoryBuild, "build failed").
		WithContext("stage", string(se.Stage)).WithContext("phase", string(phase)).Fatal().Build()
}
