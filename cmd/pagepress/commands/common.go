// Package commands implements the pagepress command line.
package commands

import (
	"log/slog"
	"os"

	"github.com/pagepress/pagepress/internal/config"
)

// Global carries state shared by every command.
type Global struct {
	Logger *slog.Logger
}

// CLI is the root command with its global flags.
type CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"pagepress.yaml" env:"PAGEPRESS_CONFIG"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Build    BuildCmd    `cmd:"" help:"Build the site into the output directory"`
	Publish  PublishCmd  `cmd:"" help:"Build the site and push it to the configured repository"`
	Themes   ThemesCmd   `cmd:"" help:"List and validate the available themes"`
	Init     InitCmd     `cmd:"" help:"Write an example configuration file"`
	Settings SettingsCmd `cmd:"" help:"Read or write stored settings"`
	Import   ImportCmd   `cmd:"" help:"Load a markdown directory into the SQLite content store"`
	Watch    WatchCmd    `cmd:"" help:"Rebuild whenever content or themes change"`
	Schedule ScheduleCmd `cmd:"" help:"Build and publish on a cron schedule"`
	Version  VersionCmd  `cmd:"" help:"Print version information"`
}

// AfterApply installs a logger before any command runs. Commands that load a configuration
// file replace it with the configured one.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	if env := os.Getenv("PAGEPRESS_LOG_LEVEL"); env != "" {
		level = config.NormalizeLogLevel(env).SlogLevel()
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

// configureLogging applies the logging section; -v and PAGEPRESS_LOG_LEVEL take precedence.
func configureLogging(cfg *config.Config, verbose bool) {
	level := cfg.Logging.Level.SlogLevel()
	if verbose {
		level = slog.LevelDebug
	}
	if env := os.Getenv("PAGEPRESS_LOG_LEVEL"); env != "" {
		level = config.NormalizeLogLevel(env).SlogLevel()
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if cfg.Logging.Format == config.LogFormatJSON {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}
