package app

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "telemetryd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
settings:
  logLevel: debug
storage:
  path: /var/lib/leo/telemetry.sqlite
  maxBatchSize: 50
http:
  listen: "127.0.0.1:8080"
  allowOrigin: "http://127.0.0.1:5500"
  defaultLimit: 64
  readTimeout: 3s
push:
  interval: 500ms
ingest:
  serial:
    enabled: true
    device: /dev/ttyUSB0
  mqtt:
    enabled: true
    broker: tcp://broker:1883
    clientID: ground-station
    topic: leo/telemetry
    qos: 2
`)

	config, err := LoadConfig(path)
	require.NoError(t, err)

	level, err := config.Settings.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	assert.Equal(t, "/var/lib/leo/telemetry.sqlite", config.Storage.Path)
	assert.Equal(t, 50, config.Storage.MaxBatchSize)
	assert.Equal(t, "127.0.0.1:8080", config.HTTP.Listen)
	assert.Equal(t, "http://127.0.0.1:5500", config.HTTP.AllowOrigin)
	assert.Equal(t, 64, config.HTTP.DefaultLimit)
	assert.Equal(t, 3*time.Second, config.HTTP.ReadTimeout.Duration())
	assert.Equal(t, 500*time.Millisecond, config.Push.Interval.Duration())

	assert.True(t, config.Ingest.Serial.Enabled)
	assert.Equal(t, "/dev/ttyUSB0", config.Ingest.Serial.Device)

	assert.True(t, config.Ingest.MQTT.Enabled)
	assert.Equal(t, "tcp://broker:1883", config.Ingest.MQTT.Broker)
	assert.Equal(t, "ground-station", config.Ingest.MQTT.ClientID)
	assert.Equal(t, "leo/telemetry", config.Ingest.MQTT.Topic)
	assert.Equal(t, byte(2), config.Ingest.MQTT.QoS)
}

func TestLoadConfig_Defaults(t *testing.T) {
	config, err := LoadConfig(writeConfig(t, "settings:\n  logLevel: warn\n"))
	require.NoError(t, err)

	assert.Equal(t, defaultDBPath, config.Storage.Path)
	assert.Equal(t, ":5000", config.HTTP.Listen)
	assert.Equal(t, "*", config.HTTP.AllowOrigin)
	assert.Equal(t, 32, config.HTTP.DefaultLimit)
	assert.Equal(t, time.Second, config.Push.Interval.Duration())
	assert.Equal(t, "telemetryd", config.Ingest.MQTT.ClientID)
	assert.False(t, config.Ingest.Serial.Enabled)
	assert.False(t, config.Ingest.MQTT.Enabled)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "log level", content: "settings:\n  logLevel: loud\n"},
		{name: "duration", content: "push:\n  interval: soon\n"},
		{name: "push interval", content: "push:\n  interval: 1ms\n"},
		{name: "limit", content: "http:\n  defaultLimit: 1000\n"},
		{name: "listen", content: "http:\n  listen: \"\"\n"},
		{name: "storage", content: "storage:\n  path: \"\"\n"},
		{name: "serial without input", content: "ingest:\n  serial:\n    enabled: true\n"},
		{name: "serial with both inputs", content: "ingest:\n  serial:\n    enabled: true\n    device: /dev/ttyUSB0\n    command: [cat]\n"},
		{name: "mqtt without topic", content: "ingest:\n  mqtt:\n    enabled: true\n    broker: tcp://b:1883\n"},
		{name: "yaml", content: "settings: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestCreateProviders(t *testing.T) {
	config := NewConfig()
	assert.Empty(t, createProviders(&config.Ingest, slog.Default()))

	config.Ingest.Serial = SerialConfig{Enabled: true, Command: []string{"cat", "/dev/ttyACM0"}}
	config.Ingest.MQTT.Enabled = true
	config.Ingest.MQTT.Topic = "leo/telemetry"

	providers := createProviders(&config.Ingest, slog.Default())
	require.Len(t, providers, 2)
	assert.Equal(t, "command:cat /dev/ttyACM0", providers[0].Name())
	assert.Equal(t, "mqtt:leo/telemetry", providers[1].Name())
}
