package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 18900,
			Bind: "loopback",
			Auth: ServerAuth{
				Mode: "token",
			},
		},
		Pipeline: PipelineConfig{
			Workers:             4,
			QueueSize:           16,
			AudioQueueSize:      64,
			StageTimeoutSeconds: 15,
			MaxUtteranceSeconds: 30,
		},
		VAD: VADConfig{
			Mode: "rms",
		},
		Session: SessionConfig{
			IdleSeconds:  120,
			HistoryLimit: 10,
		},
		Report: ReportConfig{
			BatchSize:      16,
			BatchTimeoutMs: 5000,
			QueueCap:       1024,
			Kafka: KafkaConfig{
				Topic: "vox.session.events",
			},
		},
		Logging: LoggingConfig{
			Level: "info",
			Style: "pretty",
		},
	}
}
