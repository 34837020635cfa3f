package site

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// BuildOutcome is the typed enumeration of final build result states.
type BuildOutcome string

const (
	OutcomeSuccess  BuildOutcome = "success"
	OutcomeWarning  BuildOutcome = "warning"
	OutcomeFailed   BuildOutcome = "failed"
	OutcomeCanceled BuildOutcome = "canceled"
)

// StageCount aggregates outcome counts for a stage.
type StageCount struct {
	Success  int `json:"success,omitempty"`
	Warning  int `json:"warning,omitempty"`
	Fatal    int `json:"fatal,omitempty"`
	Canceled int `json:"canceled,omitempty"`
}

// BuildReport captures high-level metrics about one build. It is persisted below the data
// directory, never inside the published output.
type BuildReport struct {
	mu sync.Mutex

	SchemaVersion   int                          `json:"schema_version"`
	BuildID         string                       `json:"build_id"`
	Theme           string                       `json:"theme,omitempty"`
	Start           time.Time                    `json:"start"`
	End             time.Time                    `json:"end"`
	Outcome         BuildOutcome                 `json:"outcome"`
	Pages           int                          `json:"pages"`
	Articles        int                          `json:"articles"`
	Resources       int                          `json:"resources"`
	Assets          int                          `json:"assets"`
	Feeds           int                          `json:"feeds"`
	Files           int                          `json:"files"`
	StageDurations  map[StageName]float64        `json:"stage_durations_ms"`
	StageErrorKinds map[StageName]StageErrorKind `json:"stage_error_kinds,omitempty"`
	StageCounts     map[StageName]StageCount     `json:"stage_counts"`
	Errors          []string                     `json:"errors,omitempty"`
	Warnings        []string                     `json:"warnings,omitempty"`
}

func newBuildReport(id string, start time.Time) *BuildReport {
	return &BuildReport{
		SchemaVersion:   1,
		BuildID:         id,
		Start:           start,
		StageDurations:  make(map[StageName]float64),
		StageErrorKinds: make(map[StageName]StageErrorKind),
		StageCounts:     make(map[StageName]StageCount),
	}
}

func (r *BuildReport) recordStage(name StageName, dur time.Duration, se *StageError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.StageDurations[name] = float64(dur.Microseconds()) / 1000
	sc := r.StageCounts[name]
	if se == nil {
		sc.Success++
		r.StageCounts[name] = sc
		return
	}
	r.StageErrorKinds[name] = se.Kind
	switch se.Kind {
	case StageErrorWarning:
		sc.Warning++
		r.Warnings = append(r.Warnings, se.Error())
	case StageErrorCanceled:
		sc.Canceled++
		r.Errors = append(r.Errors, se.Error())
	default:
		sc.Fatal++
		r.Errors = append(r.Errors, se.Error())
	}
	r.StageCounts[name] = sc
}

// addWarning records a non-fatal problem that did not fail its stage.
func (r *BuildReport) addWarning(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Warnings = append(r.Warnings, msg)
}

// finish stamps the end time and derives the outcome from the terminal error.
func (r *BuildReport) finish(end time.Time, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.End = end
	switch {
	case err != nil:
		r.Outcome = OutcomeFailed
		var se *StageError
		if errors.As(err, &se) && se.Kind == StageErrorCanceled {
			r.Outcome = OutcomeCanceled
		}
		if len(r.Errors) == 0 {
			r.Errors = append(r.Errors, err.Error())
		}
	case len(r.Warnings) > 0:
		r.Outcome = OutcomeWarning
	default:
		r.Outcome = OutcomeSuccess
	}
}

// Summary returns a human-readable single-line summary.
func (r *BuildReport) Summary() string {
	dur := r.End.Sub(r.Start)
	return fmt.Sprintf("pages=%d articles=%d resources=%d files=%d duration=%s errors=%d warnings=%d outcome=%s",
		r.Pages, r.Articles, r.Resources, r.Files, dur.Truncate(time.Millisecond), len(r.Errors), len(r.Warnings), r.Outcome)
}

// Persist writes the report atomically to <dir>/<build_id>.json.
func (r *BuildReport) Persist(dir string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensure report directory: %w", err)
	}
	jb, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report json: %w", err)
	}
	target := filepath.Join(dir, r.BuildID+".json")
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, jb, 0o644); err != nil { // #nosec G306 -- report is not secret
		return fmt.Errorf("write temp report json: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("atomic rename json: %w", err)
	}
	return nil
}
