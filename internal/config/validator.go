package config

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/gobwas/glob"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "compiler.port")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateCompiler()...)
	errors = append(errors, c.validateTransport()...)
	errors = append(errors, c.validateRequests()...)
	errors = append(errors, c.validateSession()...)
	errors = append(errors, c.validateWorkspace()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validateCompiler validates the CompilerConfig
func (c *Config) validateCompiler() []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(c.Compiler.Java) == "" {
		errors = append(errors, ValidationError{
			Field:   "compiler.java",
			Value:   c.Compiler.Java,
			Message: "must not be empty",
		})
	}
	if strings.TrimSpace(c.Compiler.Jar) == "" {
		errors = append(errors, ValidationError{
			Field:   "compiler.jar",
			Value:   c.Compiler.Jar,
			Message: "must not be empty",
		})
	}

	if c.Compiler.Port < 1 || c.Compiler.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "compiler.port",
			Value:   c.Compiler.Port,
			Message: "must be between 1 and 65535",
		})
	}

	// The compiler needs a few seconds to boot the JVM
	const minReadyTimeout = time.Second
	const maxReadyTimeout = 10 * time.Minute
	if c.Compiler.ReadyTimeout < minReadyTimeout {
		errors = append(errors, ValidationError{
			Field:   "compiler.ready_timeout",
			Value:   c.Compiler.ReadyTimeout,
			Message: fmt.Sprintf("must be at least %s", minReadyTimeout),
		})
	}
	if c.Compiler.ReadyTimeout > maxReadyTimeout {
		errors = append(errors, ValidationError{
			Field:   "compiler.ready_timeout",
			Value:   c.Compiler.ReadyTimeout,
			Message: fmt.Sprintf("exceeds maximum of %s", maxReadyTimeout),
		})
	}

	if c.Compiler.CrashPattern == "" {
		errors = append(errors, ValidationError{
			Field:   "compiler.crash_pattern",
			Value:   c.Compiler.CrashPattern,
			Message: "must not be empty",
		})
	} else if _, err := regexp.Compile(c.Compiler.CrashPattern); err != nil {
		errors = append(errors, ValidationError{
			Field:   "compiler.crash_pattern",
			Value:   c.Compiler.CrashPattern,
			Message: fmt.Sprintf("invalid regular expression: %v", err),
		})
	}

	return errors
}

// validateTransport validates the TransportConfig
func (c *Config) validateTransport() []ValidationError {
	var errors []ValidationError

	const maxRetries = 100
	if c.Transport.MaxRetries < 0 || c.Transport.MaxRetries > maxRetries {
		errors = append(errors, ValidationError{
			Field:   "transport.max_retries",
			Value:   c.Transport.MaxRetries,
			Message: fmt.Sprintf("must be between 0 and %d", maxRetries),
		})
	}

	const minRetryInterval = 10 * time.Millisecond
	if c.Transport.RetryInterval < minRetryInterval {
		errors = append(errors, ValidationError{
			Field:   "transport.retry_interval",
			Value:   c.Transport.RetryInterval,
			Message: fmt.Sprintf("must be at least %s", minRetryInterval),
		})
	}

	if c.Transport.DialTimeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "transport.dial_timeout",
			Value:   c.Transport.DialTimeout,
			Message: "must be positive",
		})
	}

	return errors
}

// validateRequests validates the RequestsConfig
func (c *Config) validateRequests() []ValidationError {
	if c.Requests.Timeout <= 0 {
		return []ValidationError{{
			Field:   "requests.timeout",
			Value:   c.Requests.Timeout,
			Message: "must be positive",
		}}
	}
	return nil
}

// validateSession validates the SessionConfig
func (c *Config) validateSession() []ValidationError {
	var errors []ValidationError

	// -1 disables restarts; 0 falls back to the bridge default
	if c.Session.MaxRestarts < -1 {
		errors = append(errors, ValidationError{
			Field:   "session.max_restarts",
			Value:   c.Session.MaxRestarts,
			Message: "must be -1 (disabled) or non-negative",
		})
	}

	if c.Session.RestartBackoff <= 0 {
		errors = append(errors, ValidationError{
			Field:   "session.restart_backoff",
			Value:   c.Session.RestartBackoff,
			Message: "must be positive",
		})
	}
	if c.Session.MaxBackoff < c.Session.RestartBackoff {
		errors = append(errors, ValidationError{
			Field:   "session.max_backoff",
			Value:   c.Session.MaxBackoff,
			Message: "must not be less than session.restart_backoff",
		})
	}
	if c.Session.ResetWindow <= 0 {
		errors = append(errors, ValidationError{
			Field:   "session.reset_window",
			Value:   c.Session.ResetWindow,
			Message: "must be positive",
		})
	}

	return errors
}

// validateWorkspace validates the WorkspaceConfig
func (c *Config) validateWorkspace() []ValidationError {
	var errors []ValidationError

	if len(c.Workspace.Include) == 0 {
		errors = append(errors, ValidationError{
			Field:   "workspace.include",
			Value:   c.Workspace.Include,
			Message: "must contain at least one pattern",
		})
	}
	for i, pattern := range c.Workspace.Include {
		if _, err := glob.Compile(pattern, '/'); err != nil {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("workspace.include[%d]", i),
				Value:   pattern,
				Message: fmt.Sprintf("invalid glob: %v", err),
			})
		}
	}

	for i, name := range c.Workspace.Ignore {
		if name == "" || strings.ContainsAny(name, `/\`) {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("workspace.ignore[%d]", i),
				Value:   name,
				Message: "must be a directory name without path separators",
			})
		}
	}

	if c.Workspace.Debounce < 0 {
		errors = append(errors, ValidationError{
			Field:   "workspace.debounce",
			Value:   c.Workspace.Debounce,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	return errors
}
