package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	assert.Equal(t, 18900, cfg.Server.Port)
	assert.Equal(t, "loopback", cfg.Server.Bind)
	assert.Equal(t, "token", cfg.Server.Auth.Mode)
	assert.Equal(t, 4, cfg.Pipeline.Workers)
	assert.Equal(t, 16, cfg.Pipeline.QueueSize)
	assert.Equal(t, 30, cfg.Pipeline.MaxUtteranceSeconds)
	assert.Equal(t, "rms", cfg.VAD.Mode)
	assert.Equal(t, 120, cfg.Session.IdleSeconds)
	assert.Equal(t, 16, cfg.Report.BatchSize)
	assert.Equal(t, 5000, cfg.Report.BatchTimeoutMs)
	assert.Equal(t, "vox.session.events", cfg.Report.Kafka.Topic)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_MissingFile_ReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 18900, cfg.Server.Port)
}

func TestLoad_ParsesYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
  bind: lan
session:
  idleSeconds: 45
  greeting: "Hi there!"
report:
  enabled: true
  batchSize: 8
  kafka:
    brokers: ["kafka-1:9092", "kafka-2:9092"]
    topic: telemetry
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "lan", cfg.Server.Bind)
	assert.Equal(t, 45, cfg.Session.IdleSeconds)
	assert.Equal(t, "Hi there!", cfg.Session.Greeting)
	assert.True(t, cfg.Report.Enabled)
	assert.Equal(t, 8, cfg.Report.BatchSize)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Report.Kafka.Brokers)
	assert.Equal(t, "telemetry", cfg.Report.Kafka.Topic)

	// Unspecified fields still get defaults.
	assert.Equal(t, 4, cfg.Pipeline.Workers)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [not a map")
	_, err := Load(path)
	require.Error(t, err)
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("VOX_PORT", "7777")
	t.Setenv("VOX_LOG_LEVEL", "DEBUG")
	t.Setenv("VOX_KAFKA_BROKERS", "broker-a:9092, broker-b:9092")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, []string{"broker-a:9092", "broker-b:9092"}, cfg.Report.Kafka.Brokers)
	assert.True(t, cfg.Report.Enabled)
}

func TestLoad_ExpandsTokenEnvVar(t *testing.T) {
	t.Setenv("MY_SECRET_TOKEN", "s3cret")
	path := writeConfig(t, `
server:
  auth:
    token: ${MY_SECRET_TOKEN}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Server.Auth.Token)
}

func TestLoad_UnsetEnvVarLeftVerbatim(t *testing.T) {
	path := writeConfig(t, `
server:
  auth:
    token: ${DEFINITELY_NOT_SET_12345}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "${DEFINITELY_NOT_SET_12345}", cfg.Server.Auth.Token)
}

func TestLoadRaw_And_SaveRaw_Roundtrip(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9000\n")

	raw, err := LoadRaw(path)
	require.NoError(t, err)

	SetValueAtPath(raw, []string{"logging", "level"}, "debug")
	require.NoError(t, SaveRaw(path, raw))

	raw2, err := LoadRaw(path)
	require.NoError(t, err)
	val, ok := GetValueAtPath(raw2, []string{"logging", "level"})
	require.True(t, ok)
	assert.Equal(t, "debug", val)
}
