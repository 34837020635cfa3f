package site

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	foundationerrors "github.com/pagepress/pagepress/internal/foundation/errors"
	"github.com/pagepress/pagepress/internal/logfields"
)

const (
	stageSuffix  = "_stage"
	backupSuffix = ".prev"
)

func (e *Engine) stageDir() string  { return e.outputDir + stageSuffix }
func (e *Engine) backupDir() string { return e.outputDir + backupSuffix }

// repairOutput restores a consistent output directory after an interrupted build.
//   - A leftover staging directory is discarded.
//   - A backup without an output directory means a promotion stopped between its two
//     renames; the backup is moved back into place.
//   - A backup next to an output directory is stale and removed.
func (e *Engine) repairOutput() error {
	if exists(e.stageDir()) {
		slog.Warn("Removing leftover staging directory", logfields.Path(e.stageDir()))
		if err := os.RemoveAll(e.stageDir()); err != nil {
			return fmt.Errorf("remove leftover staging directory: %w", err)
		}
	}
	if !exists(e.backupDir()) {
		return nil
	}
	if !exists(e.outputDir) {
		slog.Warn("Restoring output directory from interrupted promotion", logfields.Path(e.outputDir))
		if err := os.Rename(e.backupDir(), e.outputDir); err != nil {
			return fmt.Errorf("restore previous output: %w", err)
		}
		return nil
	}
	if err := os.RemoveAll(e.backupDir()); err != nil {
		return fmt.Errorf("remove stale backup: %w", err)
	}
	return nil
}

// beginStaging creates an empty sibling staging directory: <output>_stage.
func (e *Engine) beginStaging() (string, error) {
	stage := e.stageDir()
	if err := os.MkdirAll(filepath.Dir(stage), 0o755); err != nil {
		return "", err
	}
	if err := os.Mkdir(stage, 0o755); err != nil {
		return "", err
	}
	slog.Debug("Initialized staging directory", "staging", stage, "final", e.outputDir)
	return stage, nil
}

// promoteStaging swaps the staging directory into place.
//  1. Move the existing output directory to <output>.prev.
//  2. Rename staging -> output.
//  3. Remove the backup.
func (e *Engine) promoteStaging(stage string) error {
	if _, err := os.Stat(stage); err != nil {
		return foundationerrors.WrapError(err, foundationerrors.CategoryFileSystem, "staging directory missing").
			WithContext("staging", stage).Build()
	}
	prev := e.backupDir()
	if err := os.RemoveAll(prev); err != nil {
		return foundationerrors.WrapError(err, foundationerrors.CategoryFileSystem, "remove stale backup").
			WithContext("path", prev).Build()
	}
	hadOutput := exists(e.outputDir)
	if hadOutput {
		if err := os.Rename(e.outputDir, prev); err != nil {
			return foundationerrors.WrapError(err, foundationerrors.CategoryFileSystem, "backup existing output").
				WithContext("path", e.outputDir).Build()
		}
	}
	if err := os.Rename(stage, e.outputDir); err != nil {
		if hadOutput {
			if rerr := os.Rename(prev, e.outputDir); rerr != nil {
				slog.Error("Failed to restore previous output", logfields.Path(e.outputDir), logfields.Error(rerr))
			}
		}
		return foundationerrors.WrapError(err, foundationerrors.CategoryFileSystem, "promote staging").
			WithContext("path", e.outputDir).Build()
	}
	if hadOutput {
		if err := os.RemoveAll(prev); err != nil {
			slog.Warn("Failed to remove previous backup", logfields.Path(prev), logfields.Error(err))
		}
	}
	slog.Info("Promoted staging directory", "output", e.outputDir)
	return nil
}

// abortStaging removes the staging directory after a failed build.
func (e *Engine) abortStaging(stage string) {
	if stage == "" {
		return
	}
	if err := os.RemoveAll(stage); err != nil {
		slog.Warn("Failed to remove staging directory after abort", "staging", stage, logfields.Error(err))
		return
	}
	slog.Debug("Removed staging directory after abort", "staging", stage)
}

// writeFile writes data to rel below root, creating parent directories.
func writeFile(root, rel string, data []byte) error {
	rel = filepath.FromSlash(rel)
	if !filepath.IsLocal(rel) {
		return fmt.Errorf("refusing to write outside output directory: %s", rel)
	}
	target := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	return os.WriteFile(target, data, 0o644) // #nosec G306 -- published site files
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil || !errors.Is(err, fs.ErrNotExist)
}
