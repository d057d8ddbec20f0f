package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/roman-kulish/leo-telemetry/internal/api"
	"github.com/roman-kulish/leo-telemetry/internal/chart"
	"github.com/roman-kulish/leo-telemetry/internal/ingest"
	"github.com/roman-kulish/leo-telemetry/internal/relay"
	"github.com/roman-kulish/leo-telemetry/internal/storage"
	"github.com/roman-kulish/leo-telemetry/internal/telemetry"
)

// Run ingests readings from the configured sources and serves them until the
// context is cancelled.
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	store, err := createStorage(&config.Storage)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}
	defer store.Close()

	renderer, err := chart.NewRenderer(chart.RenderConfig{})
	if err != nil {
		return fmt.Errorf("failed to create chart renderer: %w", err)
	}

	push := relay.New(store,
		relay.WithInterval(config.Push.Interval.Duration()),
		relay.WithAllowOrigin(config.HTTP.AllowOrigin),
		relay.WithLogger(logger.With(slog.String("component", "relay"))))

	server := api.NewServer(api.Config{
		Listen:       config.HTTP.Listen,
		AllowOrigin:  config.HTTP.AllowOrigin,
		DefaultLimit: config.HTTP.DefaultLimit,
		ReadTimeout:  config.HTTP.ReadTimeout.Duration(),
	}, store,
		api.WithLogger(logger.With(slog.String("component", "api"))),
		api.WithChartRenderer(renderer),
		api.WithPushHandler(push))

	providers := createProviders(&config.Ingest, logger)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		push.Close()
		return nil
	})

	if len(providers) > 0 {
		pipeline := ingest.NewPipeline(
			ingest.NewRecorder(store,
				ingest.WithMaxBatchSize(config.Storage.MaxBatchSize),
				ingest.WithRecorderLogger(logger.With(slog.String("component", "recorder")))),
			ingest.WithPipelineLogger(logger.With(slog.String("component", "ingest"))))

		for _, p := range providers {
			if err = pipeline.AddProvider(p); err != nil {
				return fmt.Errorf("failed to add provider: %w", err)
			}
		}

		g.Go(func() error {
			if err := pipeline.Run(ctx); err != nil {
				return fmt.Errorf("ingest stopped: %w", err)
			}
			return nil
		})
	} else {
		logger.Warn("no telemetry sources enabled, serving stored readings only")
	}

	return g.Wait()
}

func createProviders(config *IngestConfig, logger *slog.Logger) []telemetry.Provider {
	var providers []telemetry.Provider

	if config.Serial.Enabled {
		if len(config.Serial.Command) > 0 {
			providers = append(providers, ingest.NewCommandSource(config.Serial.Command, ingest.WithLogger(logger)))
		} else {
			providers = append(providers, ingest.NewDeviceSource(config.Serial.Device, ingest.WithLogger(logger)))
		}
	}

	if config.MQTT.Enabled {
		providers = append(providers, ingest.NewMQTTSource(config.MQTT.MQTTConfig, ingest.WithMQTTLogger(logger)))
	}

	return providers
}

func createStorage(config *StorageConfig) (*storage.SqliteStore, error) {
	dir := filepath.Dir(config.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage directory '%s': %w", dir, err)
	}

	store, err := storage.OpenSqliteStore(config.Path)
	if err != nil {
		return nil, fmt.Errorf("opening storage '%s': %w", config.Path, err)
	}

	return store, nil
}
