// Package config loads and validates pagepress.yaml.
package config

import (
	"fmt"
	"time"
)

// SupportedVersion is the only configuration schema version accepted by Load.
const SupportedVersion = "1"

// DefaultPath is the configuration file looked up when --config is not given.
const DefaultPath = "pagepress.yaml"

// Config is the root configuration document.
type Config struct {
	Version  string         `yaml:"version"`
	Paths    PathsConfig    `yaml:"paths"`
	Content  ContentConfig  `yaml:"content"`
	Build    BuildConfig    `yaml:"build"`
	Publish  PublishConfig  `yaml:"publish"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Schedule ScheduleConfig `yaml:"schedule,omitempty"`
}

// PathsConfig locates the directories pagepress reads from and writes to.
type PathsConfig struct {
	DataDir   string `yaml:"data_dir"`   // git metadata, sqlite database, build reports
	OutputDir string `yaml:"output_dir"` // generated site, doubles as the git working copy
	ThemesDir string `yaml:"themes_dir"` // user themes; the built-in theme is always available
}

// ContentDriver selects the content store implementation.
type ContentDriver string

const (
	ContentSQLite ContentDriver = "sqlite"
	ContentFiles  ContentDriver = "files"
)

// ContentConfig configures where articles, resources and settings are stored.
type ContentConfig struct {
	Driver ContentDriver `yaml:"driver"`
	DSN    string        `yaml:"dsn,omitempty"` // sqlite database path; defaults to <data_dir>/pagepress.db
	Dir    string        `yaml:"dir,omitempty"` // markdown directory for the files driver
}

// BuildConfig tunes the site build engine.
type BuildConfig struct {
	RenderWorkers int            `yaml:"render_workers"`
	Markdown      MarkdownConfig `yaml:"markdown"`
}

// MarkdownConfig toggles markup extensions. Nil means "use the default" (enabled).
type MarkdownConfig struct {
	Table          *bool  `yaml:"table,omitempty"`
	Strikethrough  *bool  `yaml:"strikethrough,omitempty"`
	TaskList       *bool  `yaml:"tasklist,omitempty"`
	Footnote       *bool  `yaml:"footnote,omitempty"`
	Linkify        *bool  `yaml:"linkify,omitempty"`
	DefinitionList *bool  `yaml:"definition_list,omitempty"`
	Typographer    *bool  `yaml:"typographer,omitempty"`
	Highlight      *bool  `yaml:"highlight,omitempty"`
	Math           *bool  `yaml:"math,omitempty"`
	Mermaid        *bool  `yaml:"mermaid,omitempty"`
	Mark           *bool  `yaml:"mark,omitempty"`
	HighlightStyle string `yaml:"highlight_style,omitempty"`
}

// PublishConfig describes the remote repository the site is pushed to.
type PublishConfig struct {
	Host        string `yaml:"host"`
	Account     string `yaml:"account"`
	Repository  string `yaml:"repository"`
	Branch      string `yaml:"branch"`
	RemoteURL   string `yaml:"remote_url,omitempty"` // overrides the URL derived from host/account/repository
	AuthorName  string `yaml:"author_name"`
	AuthorEmail string `yaml:"author_email"`
	Timeout     string `yaml:"timeout"`
	TokenEnv    string `yaml:"token_env"`
	Token       string `yaml:"token,omitempty"`
}

// LoggingConfig configures the slog handler installed by the CLI.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	Path    string `yaml:"path"`
}

// ScheduleConfig drives the schedule command.
type ScheduleConfig struct {
	Cron    string `yaml:"cron,omitempty"`
	Publish bool   `yaml:"publish,omitempty"`
}

// URL returns the remote the synchronizer clones from and pushes to.
func (p PublishConfig) URL() string {
	if p.RemoteURL != "" {
		return p.RemoteURL
	}
	if p.Account == "" || p.Repository == "" {
		return ""
	}
	return fmt.Sprintf("https://%s/%s/%s.git", p.Host, p.Account, p.Repository)
}

// TimeoutDuration returns the publish timeout; callers rely on validation having run.
func (p PublishConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(p.Timeout)
	if err != nil || d <= 0 {
		return DefaultPublishTimeout
	}
	return d
}

// Configured reports whether enough is known to publish.
func (p PublishConfig) Configured() bool {
	return p.URL() != ""
}
