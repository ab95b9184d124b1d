// Package config defines vellum's configuration and loads it through Viper
// with the precedence flags > VELLUM_ environment variables > .vellum.yml >
// defaults.
//
// Configuration covers the apps root and its naming conventions, asset
// discovery directories, the preview server, logging, and metrics. Load
// validates the result; a config that loads is safe to run with.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

type Config struct {
	Apps        AppsConfig        `yaml:"apps"`
	Assets      AssetsConfig      `yaml:"assets"`
	Server      ServerConfig      `yaml:"server"`
	Development DevelopmentConfig `yaml:"development"`
	Logging     LoggingConfig     `yaml:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// AppsConfig locates and filters the project's apps.
type AppsConfig struct {
	// Root holds one subdirectory per app.
	Root string `yaml:"root"`
	// TemplatesDir is the per-app subdirectory holding templates.
	TemplatesDir string `yaml:"templates_dir"`
	// TemplateExt is the template filename extension, with dot.
	TemplateExt string `yaml:"template_ext"`
	// Base names the site-wide base template ("app/name.html"). Optional;
	// when set, chains whose root is a different template log a warning.
	Base string `yaml:"base"`
	// ExcludePatterns are doublestar globs matched against app-relative
	// paths during scanning.
	ExcludePatterns []string `yaml:"exclude_patterns"`
}

// AssetsConfig fixes the naming conventions assets are discovered by.
type AssetsConfig struct {
	StylesDir    string `yaml:"styles_dir"`
	ScriptsDir   string `yaml:"scripts_dir"`
	StaticPrefix string `yaml:"static_prefix"`
	// PayloadHistory bounds the tombstone list of expired payload ids.
	PayloadHistory int `yaml:"payload_history"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	Open           bool     `yaml:"open"`
	NoOpen         bool     `yaml:"no-open"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	Environment    string   `yaml:"environment"`
}

type DevelopmentConfig struct {
	HotReload bool `yaml:"hot_reload"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

func Load() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Unmarshal misses slice values bound through env or flags; read them
	// back explicitly when the struct came up empty.
	if viper.IsSet("apps.exclude_patterns") && len(config.Apps.ExcludePatterns) == 0 {
		patterns := viper.GetStringSlice("apps.exclude_patterns")
		if len(patterns) > 0 {
			config.Apps.ExcludePatterns = patterns
		}
	}
	if viper.IsSet("server.allowed_origins") && len(config.Server.AllowedOrigins) == 0 {
		origins := viper.GetStringSlice("server.allowed_origins")
		if len(origins) > 0 {
			config.Server.AllowedOrigins = origins
		}
	}

	// Bools need the same treatment: a false from Unmarshal is
	// indistinguishable from unset.
	if viper.IsSet("development.hot_reload") {
		config.Development.HotReload = viper.GetBool("development.hot_reload")
	}
	if viper.IsSet("metrics.enabled") {
		config.Metrics.Enabled = viper.GetBool("metrics.enabled")
	}

	applyDefaults(&config)

	// --no-open beats the open setting from file or env.
	if viper.IsSet("server.no-open") && viper.GetBool("server.no-open") {
		config.Server.Open = false
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Default returns a validated configuration with every default applied,
// bypassing viper. Tests and library embedders use this.
func Default() *Config {
	config := &Config{}
	applyDefaults(config)
	config.Development.HotReload = true
	return config
}

func applyDefaults(config *Config) {
	if config.Apps.Root == "" {
		config.Apps.Root = "./apps"
	}
	if config.Apps.TemplatesDir == "" {
		config.Apps.TemplatesDir = "templates"
	}
	if config.Apps.TemplateExt == "" {
		config.Apps.TemplateExt = ".html"
	}
	if len(config.Apps.ExcludePatterns) == 0 {
		config.Apps.ExcludePatterns = []string{"**/node_modules/**", "**/.*", "**/*.bak"}
	}

	if config.Assets.StylesDir == "" {
		config.Assets.StylesDir = "styles"
	}
	if config.Assets.ScriptsDir == "" {
		config.Assets.ScriptsDir = "scripts"
	}
	if config.Assets.StaticPrefix == "" {
		config.Assets.StaticPrefix = "/static"
	}
	if config.Assets.PayloadHistory == 0 {
		config.Assets.PayloadHistory = 1024
	}

	if config.Server.Port == 0 {
		config.Server.Port = 8080
	}
	if config.Server.Host == "" {
		config.Server.Host = "localhost"
	}
	if config.Server.Environment == "" {
		config.Server.Environment = "development"
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}
	if config.Logging.Format == "" {
		config.Logging.Format = "text"
	}

	if config.Metrics.Path == "" {
		config.Metrics.Path = "/metrics"
	}
	if !viper.IsSet("metrics.enabled") {
		config.Metrics.Enabled = true
	}

	if !viper.IsSet("development.hot_reload") {
		config.Development.HotReload = true
	}
}
