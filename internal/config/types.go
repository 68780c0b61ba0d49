package config

// Config is the root configuration for the vox server.
type Config struct {
	Server   ServerConfig   `yaml:"server,omitempty"`
	Pipeline PipelineConfig `yaml:"pipeline,omitempty"`
	VAD      VADConfig      `yaml:"vad,omitempty"`
	Session  SessionConfig  `yaml:"session,omitempty"`
	Report   ReportConfig   `yaml:"report,omitempty"`
	Store    StoreConfig    `yaml:"store,omitempty"`
	Logging  LoggingConfig  `yaml:"logging,omitempty"`
}

// ServerConfig controls the HTTP/WebSocket server devices connect to.
type ServerConfig struct {
	Port           int        `yaml:"port,omitempty"`
	Bind           string     `yaml:"bind,omitempty"` // "loopback" | "lan" | "custom"
	CustomBindHost string     `yaml:"customBindHost,omitempty"`
	Auth           ServerAuth `yaml:"auth,omitempty"`
	AllowedOrigins []string   `yaml:"allowedOrigins,omitempty"`
}

// ServerAuth configures device authentication.
type ServerAuth struct {
	Mode  string `yaml:"mode,omitempty"` // "token" | "none"
	Token string `yaml:"token,omitempty"`
}

// PipelineConfig tunes the per-session processing pipeline.
type PipelineConfig struct {
	Workers             int `yaml:"workers,omitempty"`
	QueueSize           int `yaml:"queueSize,omitempty"`
	AudioQueueSize      int `yaml:"audioQueueSize,omitempty"`
	StageTimeoutSeconds int `yaml:"stageTimeoutSeconds,omitempty"`
	MaxUtteranceSeconds int `yaml:"maxUtteranceSeconds,omitempty"`
}

// VADConfig selects and tunes the voice activity detector.
type VADConfig struct {
	Mode string `yaml:"mode,omitempty"` // "rms" (built-in energy detector)
}

// SessionConfig defines per-device session behavior.
type SessionConfig struct {
	IdleSeconds  int    `yaml:"idleSeconds,omitempty"`
	Greeting     string `yaml:"greeting,omitempty"`
	Farewell     string `yaml:"farewell,omitempty"`
	Fallback     string `yaml:"fallback,omitempty"`
	HistoryLimit int    `yaml:"historyLimit,omitempty"` // turns primed from storage on connect
}

// ReportConfig controls the telemetry batcher and its Kafka sink.
type ReportConfig struct {
	Enabled        bool        `yaml:"enabled,omitempty"`
	BatchSize      int         `yaml:"batchSize,omitempty"`
	BatchTimeoutMs int         `yaml:"batchTimeoutMs,omitempty"`
	QueueCap       int         `yaml:"queueCap,omitempty"`
	Kafka          KafkaConfig `yaml:"kafka,omitempty"`
}

// KafkaConfig identifies the telemetry topic. Empty brokers fall back to
// a log-only sink.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers,omitempty"`
	Topic   string   `yaml:"topic,omitempty"`
}

// StoreConfig configures the SQLite conversation store.
type StoreConfig struct {
	Path string `yaml:"path,omitempty"` // defaults to <data dir>/vox.db
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	File  string `yaml:"file,omitempty"`
	Style string `yaml:"style,omitempty"` // "pretty" | "json"
}
