package metrics

import "time"

// ResultLabel enumerates stage result categories for counters.
type ResultLabel string

const (
	ResultSuccess  ResultLabel = "success"
	ResultWarning  ResultLabel = "warning"
	ResultFatal    ResultLabel = "fatal"
	ResultCanceled ResultLabel = "canceled"
)

// Recorder receives build and publish measurements. Implementations must be safe for
// concurrent use.
type Recorder interface {
	ObserveStageDuration(stage string, d time.Duration)
	ObserveBuildDuration(d time.Duration)
	IncStageResult(stage string, result ResultLabel)
	IncBuildOutcome(outcome string) // success|failed|canceled
	AddPagesRendered(kind string, n int)
	ObservePublishDuration(d time.Duration)
	IncPublishOutcome(outcome string) // success|no_changes|conflict|auth|network|failed
	AddFilesChanged(change string, n int)
}

// NoopRecorder is a Recorder that does nothing.
type NoopRecorder struct{}

func (NoopRecorder) ObserveStageDuration(string, time.Duration) {}
func (NoopRecorder) ObserveBuildDuration(time.Duration)         {}
func (NoopRecorder) IncStageResult(string, ResultLabel)         {}
func (NoopRecorder) IncBuildOutcome(string)                     {}
func (NoopRecorder) AddPagesRendered(string, int)               {}
func (NoopRecorder) ObservePublishDuration(time.Duration)       {}
func (NoopRecorder) IncPublishOutcome(string)                   {}
func (NoopRecorder) AddFilesChanged(string, int)                {}
