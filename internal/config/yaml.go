package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// MarshalYAML renders durations as strings such as "30s" so the output
// reads back through viper unchanged.
func (c Config) MarshalYAML() (any, error) {
	return map[string]any{
		"compiler": map[string]any{
			"java":          c.Compiler.Java,
			"jar":           c.Compiler.Jar,
			"storage_path":  c.Compiler.StoragePath,
			"port":          c.Compiler.Port,
			"ready_timeout": c.Compiler.ReadyTimeout.String(),
			"crash_pattern": c.Compiler.CrashPattern,
		},
		"transport": map[string]any{
			"max_retries":    c.Transport.MaxRetries,
			"retry_interval": c.Transport.RetryInterval.String(),
			"dial_timeout":   c.Transport.DialTimeout.String(),
		},
		"requests": map[string]any{
			"timeout": c.Requests.Timeout.String(),
		},
		"session": map[string]any{
			"max_restarts":    c.Session.MaxRestarts,
			"restart_backoff": c.Session.RestartBackoff.String(),
			"max_backoff":     c.Session.MaxBackoff.String(),
			"reset_window":    c.Session.ResetWindow.String(),
		},
		"workspace": map[string]any{
			"include":  c.Workspace.Include,
			"ignore":   c.Workspace.Ignore,
			"debounce": c.Workspace.Debounce.String(),
		},
		"logging": map[string]any{
			"level": c.Logging.Level,
			"file":  c.Logging.File,
		},
	}, nil
}

// Marshal encodes cfg as YAML.
func Marshal(cfg *Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

// WriteFile writes cfg to path as YAML, creating the parent directory.
// An existing file is only replaced when overwrite is set.
func WriteFile(path string, cfg *Config, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists: %s", path)
		}
	}
	data, err := Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
