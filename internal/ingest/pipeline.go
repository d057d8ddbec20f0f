package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/roman-kulish/leo-telemetry/internal/telemetry"
)

// WithPipelineLogger sets the logger for the pipeline
func WithPipelineLogger(logger *slog.Logger) func(*Pipeline) {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// Pipeline runs telemetry providers concurrently and funnels their readings
// into a single recorder.
type Pipeline struct {
	providers []telemetry.Provider
	recorder  *Recorder
	logger    *slog.Logger
}

// NewPipeline creates a new Pipeline
func NewPipeline(recorder *Recorder, options ...func(*Pipeline)) *Pipeline {
	p := Pipeline{
		recorder: recorder,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&p)
	}

	return &p
}

// AddProvider registers a provider with the pipeline
func (p *Pipeline) AddProvider(provider telemetry.Provider) error {
	for _, existing := range p.providers {
		if existing.Name() == provider.Name() {
			return fmt.Errorf("provider %s already exists", provider.Name())
		}
	}

	p.providers = append(p.providers, provider)
	return nil
}

// Run starts all providers and blocks until every provider has stopped and
// the recorder has stored everything they produced. A provider failing does
// not stop the others; the errors are joined and returned.
func (p *Pipeline) Run(ctx context.Context) error {
	if len(p.providers) == 0 {
		return fmt.Errorf("no telemetry providers configured")
	}

	readings := make(chan telemetry.Reading, len(p.providers)*maxBatchSize)

	recorded := make(chan struct{})
	go func() {
		defer close(recorded)
		p.recorder.Run(readings)
	}()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, provider := range p.providers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			logger := p.logger.With(slog.String("provider", provider.Name()))
			logger.Info("provider started")

			if err := provider.Run(ctx, readings); err != nil {
				logger.Error(err.Error())

				mu.Lock()
				errs = append(errs, fmt.Errorf("provider %s: %w", provider.Name(), err))
				mu.Unlock()
				return
			}

			logger.Info("provider stopped")
		}()
	}

	wg.Wait()
	close(readings) // all producers are gone, let the recorder drain

	<-recorded
	return errors.Join(errs...)
}
