package config

import (
	"strings"
	"testing"
	"time"
)

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{
		Field:   "test.field",
		Value:   123,
		Message: "must be greater than zero",
	}

	expected := "test.field: must be greater than zero (got: 123)"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestValidationErrors_Error(t *testing.T) {
	t.Run("empty errors", func(t *testing.T) {
		var errs ValidationErrors
		if errs.Error() != "" {
			t.Errorf("Error() for empty = %q, want empty string", errs.Error())
		}
	})

	t.Run("single error", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "test.field", Value: 123, Message: "is invalid"},
		}
		expected := "test.field: is invalid (got: 123)"
		if errs.Error() != expected {
			t.Errorf("Error() = %q, want %q", errs.Error(), expected)
		}
	})

	t.Run("multiple errors", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "field1", Value: "bad", Message: "is invalid"},
			{Field: "field2", Value: -1, Message: "must be positive"},
		}
		result := errs.Error()
		if !strings.Contains(result, "2 validation errors") {
			t.Errorf("Error() should mention 2 errors: %s", result)
		}
		if !strings.Contains(result, "field1") || !strings.Contains(result, "field2") {
			t.Errorf("Error() should mention both fields: %s", result)
		}
	})
}

func TestConfig_Validate_DefaultConfig(t *testing.T) {
	cfg := Default()
	errs := cfg.Validate()
	if len(errs) != 0 {
		t.Errorf("Default config should be valid, got errors: %v", errs)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"empty java", func(c *Config) { c.Compiler.Java = " " }, "compiler.java"},
		{"empty jar", func(c *Config) { c.Compiler.Jar = "" }, "compiler.jar"},
		{"port zero", func(c *Config) { c.Compiler.Port = 0 }, "compiler.port"},
		{"port too large", func(c *Config) { c.Compiler.Port = 70000 }, "compiler.port"},
		{"ready timeout too short", func(c *Config) { c.Compiler.ReadyTimeout = 100 * time.Millisecond }, "compiler.ready_timeout"},
		{"ready timeout too long", func(c *Config) { c.Compiler.ReadyTimeout = time.Hour }, "compiler.ready_timeout"},
		{"empty crash pattern", func(c *Config) { c.Compiler.CrashPattern = "" }, "compiler.crash_pattern"},
		{"bad crash pattern", func(c *Config) { c.Compiler.CrashPattern = "(" }, "compiler.crash_pattern"},
		{"negative retries", func(c *Config) { c.Transport.MaxRetries = -1 }, "transport.max_retries"},
		{"too many retries", func(c *Config) { c.Transport.MaxRetries = 1000 }, "transport.max_retries"},
		{"retry interval too short", func(c *Config) { c.Transport.RetryInterval = time.Millisecond }, "transport.retry_interval"},
		{"zero dial timeout", func(c *Config) { c.Transport.DialTimeout = 0 }, "transport.dial_timeout"},
		{"zero request timeout", func(c *Config) { c.Requests.Timeout = 0 }, "requests.timeout"},
		{"max restarts below -1", func(c *Config) { c.Session.MaxRestarts = -2 }, "session.max_restarts"},
		{"zero restart backoff", func(c *Config) { c.Session.RestartBackoff = 0 }, "session.restart_backoff"},
		{"max backoff below initial", func(c *Config) { c.Session.MaxBackoff = 500 * time.Millisecond }, "session.max_backoff"},
		{"zero reset window", func(c *Config) { c.Session.ResetWindow = 0 }, "session.reset_window"},
		{"no include patterns", func(c *Config) { c.Workspace.Include = nil }, "workspace.include"},
		{"bad include pattern", func(c *Config) { c.Workspace.Include = []string{"**/*.flix", "[a"} }, "workspace.include[1]"},
		{"ignore with separator", func(c *Config) { c.Workspace.Ignore = []string{"a/b"} }, "workspace.ignore[0]"},
		{"empty ignore entry", func(c *Config) { c.Workspace.Ignore = []string{""} }, "workspace.ignore[0]"},
		{"negative debounce", func(c *Config) { c.Workspace.Debounce = -time.Second }, "workspace.debounce"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			errs := cfg.Validate()
			if len(errs) != 1 {
				t.Fatalf("Validate() returned %d errors, want 1: %v", len(errs), errs)
			}
			if errs[0].Field != tt.field {
				t.Errorf("Field = %q, want %q", errs[0].Field, tt.field)
			}
		})
	}
}

func TestConfig_Validate_AcceptedEdgeValues(t *testing.T) {
	cfg := Default()
	cfg.Session.MaxRestarts = -1
	cfg.Transport.MaxRetries = 0
	cfg.Workspace.Ignore = nil
	cfg.Workspace.Debounce = 0
	cfg.Logging.Level = ""

	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("Validate() = %v, want no errors", errs)
	}
}

func TestValidLogLevels(t *testing.T) {
	levels := ValidLogLevels()
	for _, want := range []string{"debug", "info", "warn", "error"} {
		found := false
		for _, l := range levels {
			if l == want {
				found = true
			}
		}
		if !found {
			t.Errorf("ValidLogLevels() missing %q", want)
		}
	}
}
