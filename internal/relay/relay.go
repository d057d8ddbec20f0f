// Package relay pushes the latest stored reading to websocket clients at a
// fixed cadence. Every connection owns its own timer; nothing is shared
// between connections.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roman-kulish/leo-telemetry/internal/storage"
	"github.com/roman-kulish/leo-telemetry/internal/telemetry"
)

const (
	// DefaultInterval is the push cadence of a connection.
	DefaultInterval = time.Second

	// EventNewData is the event name of a pushed reading.
	EventNewData = "newData"

	writeTimeout = 5 * time.Second
	readLimit    = 512
)

// LatestReader is the part of the telemetry store the relay reads from.
type LatestReader interface {
	Latest(ctx context.Context) (*telemetry.Reading, error)
}

// Event is a message written to a client.
type Event struct {
	Event string            `json:"event"`
	Data  telemetry.Reading `json:"data"`
}

// WithLogger sets the logger for the relay
func WithLogger(logger *slog.Logger) func(r *Relay) {
	return func(r *Relay) {
		r.logger = logger
	}
}

// WithInterval sets the push cadence
func WithInterval(interval time.Duration) func(r *Relay) {
	return func(r *Relay) {
		if interval > 0 {
			r.interval = interval
		}
	}
}

// WithAllowOrigin sets the origin allowed to open a connection, "*" allows
// any origin.
func WithAllowOrigin(origin string) func(r *Relay) {
	return func(r *Relay) {
		r.allowOrigin = origin
	}
}

// Relay is an http.Handler upgrading requests to websocket connections and
// pushing the latest reading on every tick.
type Relay struct {
	store       LatestReader
	interval    time.Duration
	allowOrigin string
	upgrader    websocket.Upgrader
	logger      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	active atomic.Int64
}

// New creates a new Relay
func New(store LatestReader, options ...func(r *Relay)) *Relay {
	ctx, cancel := context.WithCancel(context.Background())

	r := Relay{
		store:       store,
		interval:    DefaultInterval,
		allowOrigin: "*",
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		ctx:         ctx,
		cancel:      cancel,
	}

	for _, option := range options {
		option(&r)
	}

	r.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     r.checkOrigin,
	}

	return &r
}

// Connections returns the number of open connections.
func (r *Relay) Connections() int {
	return int(r.active.Load())
}

// Close stops every connection. Hijacked connections are not tracked by
// http.Server, so they have to be stopped here on shutdown.
func (r *Relay) Close() {
	r.cancel()
}

func (r *Relay) checkOrigin(req *http.Request) bool {
	if r.allowOrigin == "" || r.allowOrigin == "*" {
		return true
	}

	origin := req.Header.Get("Origin")
	return origin == "" || origin == r.allowOrigin
}

func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		// the upgrader has already replied with an HTTP error
		r.logger.Debug(fmt.Sprintf("websocket upgrade failed: %s", err.Error()))
		return
	}

	r.active.Add(1)
	defer r.active.Add(-1)

	logger := r.logger.With(slog.String("remote", req.RemoteAddr))
	logger.Info("client connected")

	r.serve(conn, logger)

	logger.Info("client disconnected")
}

func (r *Relay) serve(conn *websocket.Conn, logger *slog.Logger) {
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.ctx)
	defer cancel()

	// the client never sends anything meaningful, reading only detects
	// disconnects and processes control frames
	go func() {
		defer cancel()

		conn.SetReadLimit(readLimit)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeTimeout))
			return

		case <-ticker.C:
			if err := r.push(ctx, conn); err != nil {
				logger.Debug(err.Error())
				return
			}
		}
	}
}

// push writes the latest reading. A failing or empty store skips the tick,
// only write errors end the connection.
func (r *Relay) push(ctx context.Context, conn *websocket.Conn) error {
	reading, err := r.store.Latest(ctx)
	if err != nil {
		if !errors.Is(err, storage.ErrNoData) && ctx.Err() == nil {
			r.logger.Error(fmt.Sprintf("error fetching latest reading: %s", err.Error()))
		}
		return nil
	}

	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err = conn.WriteJSON(Event{Event: EventNewData, Data: *reading}); err != nil {
		return fmt.Errorf("writing event: %w", err)
	}

	return nil
}
