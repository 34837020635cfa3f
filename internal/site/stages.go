package site

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pagepress/pagepress/internal/logfields"
	"github.com/pagepress/pagepress/internal/metrics"
)

// StageName identifies one step of a build.
type StageName string

const (
	StageLoadInputs      StageName = "load_inputs"
	StagePrepareOutput   StageName = "prepare_output"
	StageConvertArticles StageName = "convert_articles"
	StageRenderPages     StageName = "render_pages"
	StageRenderArticles  StageName = "render_articles"
	StageWriteFeeds      StageName = "write_feeds"
	StageCopyAssets      StageName = "copy_assets"
	StageWriteSitemap    StageName = "write_sitemap"
	StageManifest        StageName = "collect_manifest"
)

// StageErrorKind enumerates structured stage error categories.
type StageErrorKind string

const (
	StageErrorFatal    StageErrorKind = "fatal"    // Build must abort.
	StageErrorWarning  StageErrorKind = "warning"  // Non-fatal; record and continue.
	StageErrorCanceled StageErrorKind = "canceled" // Context cancellation.
)

// StageError is a structured error carrying category and underlying cause.
type StageError struct {
	Kind  StageErrorKind
	Stage StageName
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s stage %s: %v", e.Kind, e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

func newFatalStageError(stage StageName, err error) *StageError {
	return &StageError{Kind: StageErrorFatal, Stage: stage, Err: err}
}
func newWarnStageError(stage StageName, err error) *StageError {
	return &StageError{Kind: StageErrorWarning, Stage: stage, Err: err}
}
func newCanceledStageError(stage StageName, err error) *StageError {
	return &StageError{Kind: StageErrorCanceled, Stage: stage, Err: err}
}

type stageFunc func(ctx context.Context, bs *buildState) error

type namedStage struct {
	name  StageName
	phase Phase
	fn    stageFunc
}

// pipeline returns the stages of a full build in execution order.
func pipeline() []namedStage {
	return []namedStage{
		{StageLoadInputs, PhaseInitializing, stageLoadInputs},
		{StagePrepareOutput, PhaseInitializing, stagePrepareOutput},
		{StageConvertArticles, PhaseRendering, stageConvertArticles},
		{StageRenderPages, PhaseRendering, stageRenderPages},
		{StageRenderArticles, PhaseRendering, stageRenderArticles},
		{StageWriteFeeds, PhaseRendering, stageWriteFeeds},
		{StageCopyAssets, PhaseFinalizing, stageCopyAssets},
		{StageWriteSitemap, PhaseFinalizing, stageWriteSitemap},
		{StageManifest, PhaseFinalizing, stageCollectManifest},
	}
}

// runStages executes stages in order, recording timing and stopping on the first fatal or
// canceled stage.
func runStages(ctx context.Context, bs *buildState, stages []namedStage) error {
	rec := bs.engine.recorder
	for _, st := range stages {
		select {
		case <-ctx.Done():
			se := newCanceledStageError(st.name, ctx.Err())
			bs.report.recordStage(st.name, 0, se)
			rec.IncStageResult(string(st.name), metrics.ResultCanceled)
			return se
		default:
		}
		if bs.phase != st.phase {
			bs.phase = st.phase
			bs.engine.progress.SetPhase(string(st.phase), string(st.name))
		}

		t0 := time.Now()
		err := st.fn(ctx, bs)
		dur := time.Since(t0)
		rec.ObserveStageDuration(string(st.name), dur)

		if err == nil {
			bs.report.recordStage(st.name, dur, nil)
			rec.IncStageResult(string(st.name), metrics.ResultSuccess)
			slog.Debug("Stage completed", logfields.BuildID(bs.id), logfields.Stage(string(st.name)),
				logfields.DurationMS(float64(dur.Milliseconds())))
			continue
		}

		se := classifyStageError(ctx, st.name, err)
		bs.report.recordStage(st.name, dur, se)
		switch se.Kind {
		case StageErrorWarning:
			rec.IncStageResult(string(st.name), metrics.ResultWarning)
			slog.Warn("Stage completed with warnings", logfields.BuildID(bs.id), logfields.Stage(string(st.name)), logfields.Error(se.Err))
			continue
		case StageErrorCanceled:
			rec.IncStageResult(string(st.name), metrics.ResultCanceled)
			return se
		default:
			rec.IncStageResult(string(st.name), metrics.ResultFatal)
			return se
		}
	}
	return nil
}

func classifyStageError(ctx context.Context, name StageName, err error) *StageError {
	var se *StageError
	if errors.As(err, &se) {
		return se
	}
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return newCanceledStageError(name, err)
	}
	return newFatalStageError(name, err)
}
