// Package api serves stored telemetry over HTTP: the recent readings query,
// the latest reading, a chart of a reading field and the push relay mount.
package api

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/roman-kulish/leo-telemetry/internal/chart"
	"github.com/roman-kulish/leo-telemetry/internal/telemetry"
)

const (
	DefaultLimit = 32
	MaxLimit     = 500

	shutdownTimeout = 10 * time.Second
)

// Store is the part of the telemetry store the API reads from.
type Store interface {
	Recent(ctx context.Context, n int) ([]telemetry.Reading, error)
	Latest(ctx context.Context) (*telemetry.Reading, error)
}

// ChartRenderer draws a chart of one field of the readings.
type ChartRenderer interface {
	Render(readings []telemetry.Reading, field chart.Field) (*image.RGBA, error)
}

// Config holds the HTTP server settings.
type Config struct {
	Listen       string
	AllowOrigin  string
	DefaultLimit int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// WithLogger sets the logger for the server
func WithLogger(logger *slog.Logger) func(s *Server) {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithChartRenderer enables the chart endpoint
func WithChartRenderer(renderer ChartRenderer) func(s *Server) {
	return func(s *Server) {
		s.renderer = renderer
	}
}

// WithPushHandler mounts the push relay at /ws
func WithPushHandler(h http.Handler) func(s *Server) {
	return func(s *Server) {
		s.push = h
	}
}

// Server represents the HTTP API server.
type Server struct {
	config   Config
	store    Store
	renderer ChartRenderer
	push     http.Handler
	logger   *slog.Logger

	httpServer *http.Server
}

// NewServer creates a new API server.
func NewServer(config Config, store Store, options ...func(s *Server)) *Server {
	if config.DefaultLimit <= 0 || config.DefaultLimit > MaxLimit {
		config.DefaultLimit = DefaultLimit
	}
	if config.AllowOrigin == "" {
		config.AllowOrigin = "*"
	}

	s := Server{
		config: config,
		store:  store,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&s)
	}

	return &s
}

// Handler returns the routes wrapped into the server middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	return s.logRequests(s.cors(mux))
}

// Run serves HTTP until the context is cancelled, then shuts the server down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
		BaseContext:  func(_ net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server started", slog.String("listen", s.config.Listen))

		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("failed to start HTTP server: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	s.logger.Info("HTTP server stopped")
	return <-errCh
}
