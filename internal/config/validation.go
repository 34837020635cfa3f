package config

import (
	"strings"
	"time"

	foundationerrors "github.com/pagepress/pagepress/internal/foundation/errors"
)

// maxRenderWorkers caps parallel article rendering.
const maxRenderWorkers = 64

// Validate checks a normalized, defaulted configuration.
func Validate(cfg *Config) error {
	for _, check := range []func(*Config) error{
		validatePaths,
		validateContent,
		validateBuild,
		validatePublish,
	} {
		if err := check(cfg); err != nil {
			return err
		}
	}
	return nil
}

func validatePaths(cfg *Config) error {
	if cfg.Paths.OutputDir == cfg.Paths.DataDir {
		return foundationerrors.ValidationError("paths.output_dir and paths.data_dir must differ").
			WithContext("path", cfg.Paths.OutputDir).Build()
	}
	if strings.HasSuffix(cfg.Paths.OutputDir, "_stage") || strings.HasSuffix(cfg.Paths.OutputDir, ".prev") {
		return foundationerrors.ValidationError("paths.output_dir must not end in _stage or .prev").
			WithContext("path", cfg.Paths.OutputDir).Build()
	}
	return nil
}

func validateContent(cfg *Config) error {
	switch cfg.Content.Driver {
	case ContentSQLite:
		return nil
	case ContentFiles:
		if cfg.Content.Dir == "" {
			return foundationerrors.ValidationError("content.dir is required for the files driver").Build()
		}
		return nil
	default:
		return foundationerrors.ValidationError("invalid content.driver").
			WithContext("driver", string(cfg.Content.Driver)).
			WithContext("valid", []string{string(ContentSQLite), string(ContentFiles)}).
			Build()
	}
}

func validateBuild(cfg *Config) error {
	if cfg.Build.RenderWorkers > maxRenderWorkers {
		return foundationerrors.ValidationError("build.render_workers is too large").
			WithContext("render_workers", cfg.Build.RenderWorkers).
			WithContext("max", maxRenderWorkers).Build()
	}
	return nil
}

func validatePublish(cfg *Config) error {
	p := cfg.Publish
	if d, err := time.ParseDuration(p.Timeout); err != nil || d <= 0 {
		return foundationerrors.ValidationError("publish.timeout must be a positive duration").
			WithContext("timeout", p.Timeout).Build()
	}
	if strings.ContainsAny(p.Branch, " ~^:?*[\\") {
		return foundationerrors.ValidationError("publish.branch is not a valid branch name").
			WithContext("branch", p.Branch).Build()
	}
	if (p.Account == "") != (p.Repository == "") && p.RemoteURL == "" {
		return foundationerrors.ValidationError("publish.account and publish.repository must be set together").Build()
	}
	return nil
}
