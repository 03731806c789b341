package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete flixbridge configuration
type Config struct {
	Compiler  CompilerConfig  `mapstructure:"compiler"`
	Transport TransportConfig `mapstructure:"transport"`
	Requests  RequestsConfig  `mapstructure:"requests"`
	Session   SessionConfig   `mapstructure:"session"`
	Workspace WorkspaceConfig `mapstructure:"workspace"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// CompilerConfig describes how the Flix compiler is launched
type CompilerConfig struct {
	// Java is the java executable (default: "java")
	Java string `mapstructure:"java"`
	// Jar is the compiler jar. Relative paths resolve against StoragePath.
	Jar string `mapstructure:"jar"`
	// StoragePath is the compiler's working directory. Only one compiler may
	// use a storage path at a time.
	StoragePath string `mapstructure:"storage_path"`
	// Port is the port the compiler listens on (default: 8888)
	Port int `mapstructure:"port"`
	// ReadyTimeout bounds the wait for the compiler to announce its endpoint
	ReadyTimeout time.Duration `mapstructure:"ready_timeout"`
	// CrashPattern is a regular expression; a matching stderr line counts as a crash
	CrashPattern string `mapstructure:"crash_pattern"`
}

// TransportConfig controls the WebSocket connection to the compiler
type TransportConfig struct {
	// MaxRetries is how many times a send is retried while the socket is not open
	MaxRetries    int           `mapstructure:"max_retries"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
	DialTimeout   time.Duration `mapstructure:"dial_timeout"`
}

// RequestsConfig controls caller-facing request behavior
type RequestsConfig struct {
	// Timeout bounds a synchronous request from enqueue to reply
	Timeout time.Duration `mapstructure:"timeout"`
}

// SessionConfig controls crash recovery
type SessionConfig struct {
	// MaxRestarts bounds consecutive restarts after a crash. -1 disables restarts.
	MaxRestarts    int           `mapstructure:"max_restarts"`
	RestartBackoff time.Duration `mapstructure:"restart_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	// ResetWindow is how long a session must stay up to earn a fresh restart budget
	ResetWindow time.Duration `mapstructure:"reset_window"`
}

// WorkspaceConfig selects the files sent to the compiler
type WorkspaceConfig struct {
	// Include holds glob patterns matched against paths relative to the workspace root
	Include []string `mapstructure:"include"`
	// Ignore holds directory names that are never walked or watched
	Ignore []string `mapstructure:"ignore"`
	// Debounce is how long the watcher lets a burst of file events settle
	Debounce time.Duration `mapstructure:"debounce"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error"
	Level string `mapstructure:"level"`
	// File is the log file path. Empty logs to stderr.
	File string `mapstructure:"file"`
}

// ResolveStoragePath returns the storage directory as an absolute path.
// A leading ~ expands to the user's home directory and relative paths are
// resolved against baseDir.
func (c *CompilerConfig) ResolveStoragePath(baseDir string) string {
	if c.StoragePath == "" {
		return filepath.Join(ConfigDir(), "compiler")
	}
	return expandPath(c.StoragePath, baseDir)
}

func expandPath(path, baseDir string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = home
		}
	}

	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	return path
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Compiler: CompilerConfig{
			Java:         "java",
			Jar:          "flix.jar",
			StoragePath:  filepath.Join(ConfigDir(), "compiler"),
			Port:         8888,
			ReadyTimeout: 30 * time.Second,
			CrashPattern: "Exception",
		},
		Transport: TransportConfig{
			MaxRetries:    3,
			RetryInterval: time.Second,
			DialTimeout:   5 * time.Second,
		},
		Requests: RequestsConfig{
			Timeout: 10 * time.Second,
		},
		Session: SessionConfig{
			MaxRestarts:    3,
			RestartBackoff: time.Second,
			MaxBackoff:     30 * time.Second,
			ResetWindow:    5 * time.Minute,
		},
		Workspace: WorkspaceConfig{
			Include:  []string{"**/*.flix", "**/*.fpkg", "**/*.jar"},
			Ignore:   []string{".git", "build", "artifact", ".flixbridge"},
			Debounce: 50 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Compiler defaults
	viper.SetDefault("compiler.java", defaults.Compiler.Java)
	viper.SetDefault("compiler.jar", defaults.Compiler.Jar)
	viper.SetDefault("compiler.storage_path", defaults.Compiler.StoragePath)
	viper.SetDefault("compiler.port", defaults.Compiler.Port)
	viper.SetDefault("compiler.ready_timeout", defaults.Compiler.ReadyTimeout)
	viper.SetDefault("compiler.crash_pattern", defaults.Compiler.CrashPattern)

	// Transport defaults
	viper.SetDefault("transport.max_retries", defaults.Transport.MaxRetries)
	viper.SetDefault("transport.retry_interval", defaults.Transport.RetryInterval)
	viper.SetDefault("transport.dial_timeout", defaults.Transport.DialTimeout)

	viper.SetDefault("requests.timeout", defaults.Requests.Timeout)

	// Session defaults
	viper.SetDefault("session.max_restarts", defaults.Session.MaxRestarts)
	viper.SetDefault("session.restart_backoff", defaults.Session.RestartBackoff)
	viper.SetDefault("session.max_backoff", defaults.Session.MaxBackoff)
	viper.SetDefault("session.reset_window", defaults.Session.ResetWindow)

	// Workspace defaults
	viper.SetDefault("workspace.include", defaults.Workspace.Include)
	viper.SetDefault("workspace.ignore", defaults.Workspace.Ignore)
	viper.SetDefault("workspace.debounce", defaults.Workspace.Debounce)

	// Logging defaults
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.file", defaults.Logging.File)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "flixbridge")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".flixbridge"
	}
	return filepath.Join(home, ".config", "flixbridge")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
