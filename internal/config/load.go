package config

import (
	"errors"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	foundationerrors "github.com/pagepress/pagepress/internal/foundation/errors"
)

// Load reads, expands, normalizes, defaults and validates a configuration file.
func Load(configPath string) (*Config, error) {
	if _, err := loadEnvFiles(); err != nil {
		return nil, foundationerrors.WrapError(err, foundationerrors.CategoryConfig, "failed to load environment file").
			UserAction().Build()
	}

	data, err := os.ReadFile(configPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, foundationerrors.ConfigError("configuration file not found").
			WithContext("path", configPath).Build()
	}
	if err != nil {
		return nil, foundationerrors.WrapError(err, foundationerrors.CategoryConfig, "failed to read config file").
			WithContext("path", configPath).Build()
	}
	return Parse(data)
}

// LoadOrDefault behaves like Load but returns the defaults when the file does not exist and
// required is false.
func LoadOrDefault(configPath string, required bool) (*Config, error) {
	if _, err := os.Stat(configPath); errors.Is(err, fs.ErrNotExist) && !required {
		if _, err := loadEnvFiles(); err != nil {
			return nil, foundationerrors.WrapError(err, foundationerrors.CategoryConfig, "failed to load environment file").Build()
		}
		return Default(), nil
	}
	return Load(configPath)
}

// Parse decodes configuration content. ${VAR} references are expanded from the environment.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, foundationerrors.WrapError(err, foundationerrors.CategoryConfig, "failed to parse config").Build()
	}
	if cfg.Version != SupportedVersion {
		return nil, foundationerrors.ConfigError("unsupported configuration version").
			WithContext("version", cfg.Version).
			WithContext("expected", SupportedVersion).
			Build()
	}

	normalize(&cfg)
	applyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a fully defaulted configuration without publish target.
func Default() *Config {
	cfg := &Config{Version: SupportedVersion}
	applyDefaults(cfg)
	return cfg
}

// Init writes an example configuration file.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return foundationerrors.ConfigError("configuration file already exists (use --force to overwrite)").
			WithContext("path", configPath).Build()
	}

	example := Config{
		Version: SupportedVersion,
		Paths: PathsConfig{
			DataDir:   "./.pagepress",
			OutputDir: "./public",
			ThemesDir: "./themes",
		},
		Content: ContentConfig{Driver: ContentSQLite},
		Build:   BuildConfig{RenderWorkers: 4},
		Publish: PublishConfig{
			Host:        "github.com",
			Account:     "your-account",
			Repository:  "your-account.github.io",
			Branch:      "main",
			AuthorName:  "pagepress",
			AuthorEmail: "pagepress@localhost",
			Timeout:     "5m",
			TokenEnv:    "PAGEPRESS_TOKEN",
		},
		Logging:  LoggingConfig{Level: LogLevelInfo, Format: LogFormatText},
		Metrics:  MetricsConfig{Enabled: false, Listen: ":9464", Path: "/metrics"},
		Schedule: ScheduleConfig{Cron: "0 */6 * * *", Publish: true},
	}

	data, err := yaml.Marshal(&example)
	if err != nil {
		return foundationerrors.WrapError(err, foundationerrors.CategoryInternal, "failed to marshal config").Build()
	}
	// #nosec G306 -- configuration is not secret; tokens come from the environment
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return foundationerrors.WrapError(err, foundationerrors.CategoryFileSystem, "failed to write config file").
			WithContext("path", configPath).Build()
	}
	return nil
}
