package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/leo-telemetry/internal/api"
	"github.com/roman-kulish/leo-telemetry/internal/ingest"
	"github.com/roman-kulish/leo-telemetry/internal/relay"
)

const (
	defaultDBPath      = "data/telemetry.sqlite"
	defaultListen      = ":5000"
	defaultClientID    = "telemetryd"
	defaultBatchSize   = 100
	defaultReadTimeout = 10 * time.Second
)

type TimeDuration time.Duration

func (d *TimeDuration) UnmarshalYAML(value *yaml.Node) error {
	duration, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("app.TimeDuration: failed to parse: %s", err)
	}

	*d = TimeDuration(duration)
	return nil
}

func (d TimeDuration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d TimeDuration) Duration() time.Duration {
	return time.Duration(d)
}

// Config represents the main application configuration
type Config struct {
	Settings Settings      `yaml:"settings"`
	Storage  StorageConfig `yaml:"storage"`
	HTTP     HTTPConfig    `yaml:"http"`
	Push     PushConfig    `yaml:"push"`
	Ingest   IngestConfig  `yaml:"ingest"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel string `yaml:"logLevel"`
}

// Level returns the configured log level, info when unset.
func (s *Settings) Level() (slog.Level, error) {
	var level slog.Level
	if s.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return 0, fmt.Errorf("app.Settings: invalid log level: %s", s.LogLevel)
	}
	return level, nil
}

// StorageConfig represents storage settings
type StorageConfig struct {
	Path         string `yaml:"path"`
	MaxBatchSize int    `yaml:"maxBatchSize"`
}

// HTTPConfig represents the API server settings
type HTTPConfig struct {
	Listen       string       `yaml:"listen"`
	AllowOrigin  string       `yaml:"allowOrigin"`
	DefaultLimit int          `yaml:"defaultLimit"`
	ReadTimeout  TimeDuration `yaml:"readTimeout"`
}

// PushConfig represents the push relay settings
type PushConfig struct {
	Interval TimeDuration `yaml:"interval"`
}

// IngestConfig represents the telemetry sources
type IngestConfig struct {
	Serial SerialConfig `yaml:"serial"`
	MQTT   MQTTConfig   `yaml:"mqtt"`
}

// SerialConfig describes the line source: either a device to read from or a
// command whose stdout yields device lines.
type SerialConfig struct {
	Enabled bool     `yaml:"enabled"`
	Device  string   `yaml:"device"`
	Command []string `yaml:"command"`
}

// MQTTConfig enables the MQTT source
type MQTTConfig struct {
	Enabled           bool `yaml:"enabled"`
	ingest.MQTTConfig `yaml:",inline"`
}

// NewConfig returns the configuration defaults
func NewConfig() *Config {
	return &Config{
		Settings: Settings{LogLevel: "info"},
		Storage: StorageConfig{
			Path:         defaultDBPath,
			MaxBatchSize: defaultBatchSize,
		},
		HTTP: HTTPConfig{
			Listen:       defaultListen,
			AllowOrigin:  "*",
			DefaultLimit: api.DefaultLimit,
			ReadTimeout:  TimeDuration(defaultReadTimeout),
		},
		Push: PushConfig{
			Interval: TimeDuration(relay.DefaultInterval),
		},
		Ingest: IngestConfig{
			MQTT: MQTTConfig{
				MQTTConfig: ingest.MQTTConfig{ClientID: defaultClientID, QoS: 1},
			},
		},
	}
}

// LoadConfig reads the YAML configuration file at path over the defaults
func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	config := NewConfig()
	if err = yaml.Unmarshal(b, config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err = config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) Validate() error {
	if _, err := c.Settings.Level(); err != nil {
		return err
	}
	if c.Storage.Path == "" {
		return errors.New("app.StorageConfig: path is required")
	}
	if c.Storage.MaxBatchSize < 0 {
		return fmt.Errorf("app.StorageConfig: maxBatchSize must not be negative: %d", c.Storage.MaxBatchSize)
	}
	if c.HTTP.Listen == "" {
		return errors.New("app.HTTPConfig: listen is required")
	}
	if c.HTTP.DefaultLimit < 0 || c.HTTP.DefaultLimit > api.MaxLimit {
		return fmt.Errorf("app.HTTPConfig: defaultLimit must be between 1 and %d: %d", api.MaxLimit, c.HTTP.DefaultLimit)
	}
	if c.HTTP.ReadTimeout < 0 {
		return fmt.Errorf("app.HTTPConfig: readTimeout must not be negative: %s", c.HTTP.ReadTimeout.Duration())
	}
	if c.Push.Interval.Duration() < 10*time.Millisecond {
		return fmt.Errorf("app.PushConfig: interval must be at least 10ms: %s", c.Push.Interval.Duration())
	}

	if serial := c.Ingest.Serial; serial.Enabled {
		if (serial.Device == "") == (len(serial.Command) == 0) {
			return errors.New("app.SerialConfig: exactly one of device or command is required")
		}
	}
	if c.Ingest.MQTT.Enabled {
		if err := c.Ingest.MQTT.MQTTConfig.Validate(); err != nil {
			return err
		}
	}

	return nil
}
