package config

import (
	"fmt"
	"slices"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		issues = append(issues, ValidationIssue{
			Path:    "server.port",
			Message: fmt.Sprintf("port must be 0-65535, got %d", cfg.Server.Port),
		})
	}

	validBinds := []string{"loopback", "lan", "custom"}
	if cfg.Server.Bind != "" && !slices.Contains(validBinds, cfg.Server.Bind) {
		issues = append(issues, ValidationIssue{
			Path:    "server.bind",
			Message: fmt.Sprintf("must be one of %v, got %q", validBinds, cfg.Server.Bind),
		})
	}

	validAuthModes := []string{"token", "none"}
	if cfg.Server.Auth.Mode != "" && !slices.Contains(validAuthModes, cfg.Server.Auth.Mode) {
		issues = append(issues, ValidationIssue{
			Path:    "server.auth.mode",
			Message: fmt.Sprintf("must be one of %v, got %q", validAuthModes, cfg.Server.Auth.Mode),
		})
	}

	if cfg.Pipeline.Workers < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "pipeline.workers",
			Message: fmt.Sprintf("must not be negative, got %d", cfg.Pipeline.Workers),
		})
	}
	if cfg.Pipeline.QueueSize < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "pipeline.queueSize",
			Message: fmt.Sprintf("must not be negative, got %d", cfg.Pipeline.QueueSize),
		})
	}
	if cfg.Pipeline.MaxUtteranceSeconds < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "pipeline.maxUtteranceSeconds",
			Message: fmt.Sprintf("must not be negative, got %d", cfg.Pipeline.MaxUtteranceSeconds),
		})
	}

	validVADModes := []string{"rms"}
	if cfg.VAD.Mode != "" && !slices.Contains(validVADModes, cfg.VAD.Mode) {
		issues = append(issues, ValidationIssue{
			Path:    "vad.mode",
			Message: fmt.Sprintf("must be one of %v, got %q", validVADModes, cfg.VAD.Mode),
		})
	}

	if cfg.Session.IdleSeconds < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "session.idleSeconds",
			Message: fmt.Sprintf("must not be negative, got %d", cfg.Session.IdleSeconds),
		})
	}

	if cfg.Report.Enabled && len(cfg.Report.Kafka.Brokers) > 0 && cfg.Report.Kafka.Topic == "" {
		issues = append(issues, ValidationIssue{
			Path:    "report.kafka.topic",
			Message: "topic is required when brokers are configured",
		})
	}

	validLogLevels := []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.level",
			Message: fmt.Sprintf("must be one of %v, got %q", validLogLevels, cfg.Logging.Level),
		})
	}

	validStyles := []string{"pretty", "json"}
	if cfg.Logging.Style != "" && !slices.Contains(validStyles, cfg.Logging.Style) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.style",
			Message: fmt.Sprintf("must be one of %v, got %q", validStyles, cfg.Logging.Style),
		})
	}

	return issues
}
