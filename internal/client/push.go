package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roman-kulish/leo-telemetry/internal/relay"
	"github.com/roman-kulish/leo-telemetry/internal/telemetry"
)

// DefaultRedialDelay is the pause between two connection attempts.
const DefaultRedialDelay = 2 * time.Second

// WithPushLogger sets the logger for the push subscriber
func WithPushLogger(logger *slog.Logger) func(s *PushSubscriber) {
	return func(s *PushSubscriber) {
		s.logger = logger
	}
}

// WithRedialDelay sets the pause between two connection attempts
func WithRedialDelay(d time.Duration) func(s *PushSubscriber) {
	return func(s *PushSubscriber) {
		if d > 0 {
			s.redialDelay = d
		}
	}
}

// PushSubscriber receives pushed readings from the relay. Delivery is best
// effort: failed connections and undecodable events are dropped and the
// subscriber dials again.
type PushSubscriber struct {
	endpoint    string
	dialer      *websocket.Dialer
	redialDelay time.Duration
	logger      *slog.Logger
}

// NewPushSubscriber creates a subscriber of the relay of the API at baseURL.
func NewPushSubscriber(baseURL string, options ...func(s *PushSubscriber)) (*PushSubscriber, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing server URL: %w", err)
	}

	switch base.Scheme {
	case "http", "ws":
		base.Scheme = "ws"
	case "https", "wss":
		base.Scheme = "wss"
	default:
		return nil, fmt.Errorf("unsupported server URL scheme %q", base.Scheme)
	}

	s := PushSubscriber{
		endpoint: base.JoinPath("ws").String(),
		dialer: &websocket.Dialer{
			HandshakeTimeout: defaultTimeout,
		},
		redialDelay: DefaultRedialDelay,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&s)
	}

	return &s, nil
}

// Run forwards pushed readings to out until the context is cancelled.
func (s *PushSubscriber) Run(ctx context.Context, out chan<- telemetry.Reading) error {
	for {
		if err := s.receive(ctx, out); err != nil && ctx.Err() == nil {
			s.logger.Debug(fmt.Sprintf("push subscription dropped: %s", err.Error()))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.redialDelay):
		}
	}
}

// receive reads events from a single connection until it fails.
func (s *PushSubscriber) receive(ctx context.Context, out chan<- telemetry.Reading) error {
	conn, _, err := s.dialer.DialContext(ctx, s.endpoint, nil)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", s.endpoint, err)
	}
	defer conn.Close()

	// unblock the pending read on cancellation
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	s.logger.Debug("push subscription connected", slog.String("endpoint", s.endpoint))

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("reading event: %w", err)
		}

		var event relay.Event
		if err = json.Unmarshal(msg, &event); err != nil {
			s.logger.Debug(fmt.Sprintf("dropping undecodable event: %s", err.Error()))
			continue
		}

		if event.Event != relay.EventNewData {
			continue
		}

		select {
		case out <- event.Data:
		case <-ctx.Done():
			return nil
		}
	}
}
