package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/roman-kulish/leo-telemetry/internal/telemetry"
)

const (
	mqttConnectTimeout = 10 * time.Second
	mqttQuiesce        = 250 // ms to wait for in-flight work on disconnect
)

// MQTTConfig describes the broker connection and the subscription delivering
// device payloads.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"clientID"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Topic    string `yaml:"topic"`
	QoS      byte   `yaml:"qos"`
}

func (c *MQTTConfig) Validate() error {
	if c.Broker == "" {
		return errors.New("ingest.MQTTConfig: broker is required")
	}
	if c.Topic == "" {
		return errors.New("ingest.MQTTConfig: topic is required")
	}
	if c.QoS > 2 {
		return fmt.Errorf("ingest.MQTTConfig: invalid QoS: %d", c.QoS)
	}
	return nil
}

// WithMQTTLogger sets the logger for the MQTT source
func WithMQTTLogger(logger *slog.Logger) func(s *MQTTSource) {
	return func(s *MQTTSource) {
		s.logger = logger.With(slog.String("source", s.Name()))
	}
}

// MQTTSource subscribes to a topic and turns every message into a reading.
// Payloads are device lines or JSON readings, see ParsePayload.
type MQTTSource struct {
	config MQTTConfig
	logger *slog.Logger
	now    func() time.Time
}

var _ telemetry.Provider = (*MQTTSource)(nil)

// NewMQTTSource creates a new MQTT source.
func NewMQTTSource(config MQTTConfig, options ...func(s *MQTTSource)) *MQTTSource {
	s := MQTTSource{
		config: config,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
	}

	for _, option := range options {
		option(&s)
	}

	return &s
}

func (s *MQTTSource) Name() string {
	return "mqtt:" + s.config.Topic
}

// Run connects to the broker and forwards readings until the context is
// cancelled. The client reconnects on its own after a lost connection.
func (s *MQTTSource) Run(ctx context.Context, readings chan<- telemetry.Reading) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(s.config.Broker)
	opts.SetClientID(s.config.ClientID)

	if s.config.Username != "" {
		opts.SetUsername(s.config.Username)
	}
	if s.config.Password != "" {
		opts.SetPassword(s.config.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.logger.Warn(fmt.Sprintf("connection lost: %s", err.Error()))
	})
	// subscriptions do not survive a clean session reconnect
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		token := c.Subscribe(s.config.Topic, s.config.QoS, func(_ mqtt.Client, msg mqtt.Message) {
			s.handleMessage(ctx, msg.Topic(), msg.Payload(), readings)
		})
		if token.WaitTimeout(mqttConnectTimeout) && token.Error() != nil {
			s.logger.Error(fmt.Sprintf("failed to subscribe: %s", token.Error().Error()))
			return
		}
		s.logger.Info("subscribed", slog.String("broker", s.config.Broker))
	})

	client := mqtt.NewClient(opts)

	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return fmt.Errorf("connecting to MQTT broker %s: timed out", s.config.Broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connecting to MQTT broker %s: %w", s.config.Broker, err)
	}

	<-ctx.Done()

	client.Unsubscribe(s.config.Topic).WaitTimeout(time.Second)
	client.Disconnect(mqttQuiesce)

	return nil
}

func (s *MQTTSource) handleMessage(ctx context.Context, topic string, payload []byte, readings chan<- telemetry.Reading) {
	reading, err := ParsePayload(payload)
	if err != nil {
		s.logger.Warn(fmt.Sprintf("error parsing reading: %s", err.Error()), slog.String("topic", topic))
		return
	}
	if reading.Timestamp.IsZero() {
		reading.Timestamp = s.now()
	}

	select {
	case readings <- *reading:
	case <-ctx.Done():
	}
}
