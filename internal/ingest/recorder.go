package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roman-kulish/leo-telemetry/internal/telemetry"
)

const (
	maxBatchSize = 100
	storeTimeout = 5 * time.Second
)

// BatchStore is the part of the telemetry store the recorder writes to.
type BatchStore interface {
	StoreReadings(ctx context.Context, rs []telemetry.Reading) ([]telemetry.Reading, error)
}

// WithMaxBatchSize sets the maximum number of queued readings to store
// within a single database transaction.
func WithMaxBatchSize(size int) func(*Recorder) {
	return func(r *Recorder) {
		if size > 0 {
			r.maxBatchSize = size
		}
	}
}

// WithRecorderLogger sets the logger for the recorder
func WithRecorderLogger(logger *slog.Logger) func(*Recorder) {
	return func(r *Recorder) {
		r.logger = logger
	}
}

// Recorder is the single consumer of the readings channel. It stores every
// reading as soon as it arrives, grouping readings that queued up meanwhile
// into one transaction.
type Recorder struct {
	store        BatchStore
	logger       *slog.Logger
	maxBatchSize int
}

// NewRecorder creates a new Recorder
func NewRecorder(store BatchStore, options ...func(*Recorder)) *Recorder {
	r := Recorder{
		store:        store,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		maxBatchSize: maxBatchSize,
	}

	for _, option := range options {
		option(&r)
	}

	return &r
}

// Run stores readings until the channel is closed. Store failures are logged
// and the affected readings dropped, recording carries on with the next
// reading.
func (r *Recorder) Run(readings <-chan telemetry.Reading) {
	batch := make([]telemetry.Reading, 0, r.maxBatchSize)

	for reading := range readings {
		batch = append(batch[:0], reading)

	drain:
		for len(batch) < r.maxBatchSize {
			select {
			case next, ok := <-readings:
				if !ok {
					break drain
				}
				batch = append(batch, next)
			default:
				break drain
			}
		}

		if err := r.flush(batch); err != nil {
			r.logger.Error(err.Error())
		}
	}
}

func (r *Recorder) flush(batch []telemetry.Reading) error {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	stored, err := r.store.StoreReadings(ctx, batch)
	if err != nil {
		return fmt.Errorf("storing %d readings: %w", len(batch), err)
	}

	if skipped := len(batch) - len(stored); skipped > 0 {
		r.logger.Debug("duplicate readings skipped", slog.Int("count", skipped))
	}

	if len(stored) == 0 {
		return nil
	}

	last := stored[len(stored)-1]
	r.logger.Debug("readings stored",
		slog.Int("count", len(stored)),
		slog.String("lastID", last.ID),
		slog.Time("lastTimestamp", last.Timestamp))

	return nil
}
