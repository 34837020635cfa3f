package config

import (
	"path/filepath"
	"strings"
	"time"
)

// DefaultPublishTimeout bounds a publish when no timeout is configured.
const DefaultPublishTimeout = 5 * time.Minute

// DefaultBranch is the remote branch published to.
const DefaultBranch = "main"

// DefaultTokenEnv names the environment variable holding the publish token.
const DefaultTokenEnv = "PAGEPRESS_TOKEN"

// normalize case-folds enumerations and trims free-form values.
func normalize(cfg *Config) {
	cfg.Content.Driver = ContentDriver(strings.ToLower(strings.TrimSpace(string(cfg.Content.Driver))))
	cfg.Logging.Level = NormalizeLogLevel(string(cfg.Logging.Level))
	cfg.Logging.Format = NormalizeLogFormat(string(cfg.Logging.Format))
	cfg.Publish.Host = strings.Trim(strings.TrimSpace(cfg.Publish.Host), "/")
	cfg.Publish.Branch = strings.TrimPrefix(strings.TrimSpace(cfg.Publish.Branch), "refs/heads/")
	cfg.Schedule.Cron = strings.TrimSpace(cfg.Schedule.Cron)
}

// applyDefaults fills every unset value. It is idempotent.
func applyDefaults(cfg *Config) {
	if cfg.Paths.DataDir == "" {
		cfg.Paths.DataDir = ".pagepress"
	}
	if cfg.Paths.OutputDir == "" {
		cfg.Paths.OutputDir = "public"
	}
	if cfg.Paths.ThemesDir == "" {
		cfg.Paths.ThemesDir = "themes"
	}

	if cfg.Content.Driver == "" {
		cfg.Content.Driver = ContentSQLite
	}
	if cfg.Content.Driver == ContentSQLite && cfg.Content.DSN == "" {
		cfg.Content.DSN = filepath.Join(cfg.Paths.DataDir, "pagepress.db")
	}

	if cfg.Build.RenderWorkers <= 0 {
		cfg.Build.RenderWorkers = 1
	}
	md := &cfg.Build.Markdown
	for _, p := range []**bool{
		&md.Table, &md.Strikethrough, &md.TaskList, &md.Footnote, &md.Linkify,
		&md.DefinitionList, &md.Typographer, &md.Highlight, &md.Math, &md.Mermaid, &md.Mark,
	} {
		if *p == nil {
			v := true
			*p = &v
		}
	}
	if md.HighlightStyle == "" {
		md.HighlightStyle = "github"
	}

	if cfg.Publish.Host == "" {
		cfg.Publish.Host = "github.com"
	}
	if cfg.Publish.Branch == "" {
		cfg.Publish.Branch = DefaultBranch
	}
	if cfg.Publish.AuthorName == "" {
		cfg.Publish.AuthorName = "pagepress"
	}
	if cfg.Publish.AuthorEmail == "" {
		cfg.Publish.AuthorEmail = "pagepress@localhost"
	}
	if cfg.Publish.Timeout == "" {
		cfg.Publish.Timeout = DefaultPublishTimeout.String()
	}
	if cfg.Publish.TokenEnv == "" {
		cfg.Publish.TokenEnv = DefaultTokenEnv
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = LogLevelInfo
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = LogFormatText
	}

	if cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = ":9464"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

// Enabled dereferences a markdown toggle; nil counts as enabled.
func Enabled(b *bool) bool {
	return b == nil || *b
}
