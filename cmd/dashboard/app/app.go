package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roman-kulish/leo-telemetry/internal/client"
	"github.com/roman-kulish/leo-telemetry/internal/session"
)

// Run polls the API and redraws the view on every update until the context
// is cancelled. Poll failures are shown as warnings; the session carries on.
func Run(ctx context.Context, config *Config, logger *slog.Logger, out io.Writer) error {
	poller, err := client.NewPoller(config.Server,
		client.WithLimit(config.Limit),
		client.WithLogger(logger.With(slog.String("component", "poller"))))
	if err != nil {
		return fmt.Errorf("failed to create poller: %w", err)
	}

	view := NewView(out, config.Window, !config.Plain)

	options := []func(*session.Session){
		session.WithLogger(logger.With(slog.String("component", "session"))),
		session.OnUpdate(func(st session.State) {
			if err := view.Render(st); err != nil {
				logger.Error(fmt.Sprintf("failed to render view: %s", err.Error()))
			}
		}),
		session.OnError(func(err error) {
			logger.Warn("Failed to fetch data", slog.String("error", err.Error()))
		}),
	}

	if !config.NoPush {
		sub, err := client.NewPushSubscriber(config.Server,
			client.WithPushLogger(logger.With(slog.String("component", "push"))))
		if err != nil {
			return fmt.Errorf("failed to create push subscriber: %w", err)
		}
		options = append(options, session.WithPushSource(sub))
	}

	s := session.New(poller, session.Config{
		PollInterval: config.PollInterval,
		WindowSize:   config.Window,
	}, options...)

	if err = view.Render(s.Snapshot()); err != nil {
		return fmt.Errorf("failed to render view: %w", err)
	}

	return s.Run(ctx)
}
