package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

// validateConfig rejects configurations that would misbehave at runtime.
func validateConfig(config *Config) error {
	if err := validateAppsConfig(&config.Apps); err != nil {
		return fmt.Errorf("apps config: %w", err)
	}
	if err := validateAssetsConfig(&config.Assets); err != nil {
		return fmt.Errorf("assets config: %w", err)
	}
	if err := validateServerConfig(&config.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	return nil
}

func validateAppsConfig(config *AppsConfig) error {
	if err := validatePath(config.Root); err != nil {
		return fmt.Errorf("invalid apps root '%s': %w", config.Root, err)
	}
	if strings.ContainsAny(config.TemplatesDir, `/\`) {
		return fmt.Errorf("templates_dir must be a bare directory name: %s", config.TemplatesDir)
	}
	if !strings.HasPrefix(config.TemplateExt, ".") {
		return fmt.Errorf("template_ext must start with a dot: %s", config.TemplateExt)
	}
	if config.Base != "" && !strings.Contains(config.Base, "/") {
		return fmt.Errorf("base must be qualified as app/name%s: %s", config.TemplateExt, config.Base)
	}
	return nil
}

func validateAssetsConfig(config *AssetsConfig) error {
	for _, dir := range []string{config.StylesDir, config.ScriptsDir} {
		if dir == "" || strings.ContainsAny(dir, `/\`) {
			return fmt.Errorf("asset subdirectory must be a bare directory name: %s", dir)
		}
	}
	if !strings.HasPrefix(config.StaticPrefix, "/") {
		return fmt.Errorf("static_prefix must start with '/': %s", config.StaticPrefix)
	}
	if config.PayloadHistory < 0 {
		return fmt.Errorf("payload_history must be non-negative: %d", config.PayloadHistory)
	}
	return nil
}

func validateServerConfig(config *ServerConfig) error {
	// Port 0 stays legal so tests can bind system-assigned ports.
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port %d is not in valid range 0-65535", config.Port)
	}

	if config.Host != "" {
		for _, char := range shellMetaChars {
			if strings.Contains(config.Host, char) {
				return fmt.Errorf("host contains dangerous character: %s", char)
			}
		}
	}

	return nil
}

// The host and apps root end up in shell-adjacent places (open-browser
// command, log lines pasted into terminals), so shell metacharacters are
// rejected outright.
var shellMetaChars = []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}

// validatePath rejects empty, traversing, and metacharacter-bearing paths.
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}

	cleanPath := filepath.Clean(path)
	if strings.Contains(cleanPath, "..") {
		return fmt.Errorf("path contains traversal: %s", path)
	}
	for _, char := range shellMetaChars {
		if strings.Contains(cleanPath, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}

	return nil
}
