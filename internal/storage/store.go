package storage

import (
	"context"
	"errors"

	"github.com/roman-kulish/leo-telemetry/internal/telemetry"
)

var (
	// ErrNoData indicates that no readings have been stored yet.
	ErrNoData = errors.New("no data available")

	// ErrDuplicateReading is returned by StoreReading when a reading with the
	// same ID is already stored.
	ErrDuplicateReading = errors.New("reading already stored")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store is closed")
)

// Store provides an interface for persisting satellite telemetry readings and
// querying them by recency. Readings are append-only: once stored they are
// never updated or deleted through this interface.
type Store interface {
	// StoreReading saves a single reading.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - r: Reading to store. An empty ID is replaced with a new unique
	//     identifier, a zero Timestamp with the current time
	//
	// Returns:
	//   - reading: The reading as stored, with ID and Timestamp populated
	//   - error: If storage fails or context is cancelled
	StoreReading(ctx context.Context, r *telemetry.Reading) (reading telemetry.Reading, err error)

	// StoreReadings saves multiple readings in a single atomic transaction.
	// ID and Timestamp are populated the same way as StoreReading does.
	// Readings whose ID is already stored are skipped and left out of the
	// result.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - rs: Readings to store
	//
	// Returns:
	//   - readings: The readings inserted, in input order
	//   - error: If storage fails or context is cancelled
	StoreReadings(ctx context.Context, rs []telemetry.Reading) (readings []telemetry.Reading, err error)

	// Recent returns up to n most recent readings ordered by timestamp,
	// newest first. Readings sharing a timestamp are returned in reverse
	// insertion order.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - n: Maximum number of readings to return
	//
	// Returns:
	//   - readings: Newest first, empty if nothing is stored
	//   - error: If retrieval fails or context is cancelled
	Recent(ctx context.Context, n int) (readings []telemetry.Reading, err error)

	// Latest returns the single most recent reading.
	//
	// Returns:
	//   - reading: The most recent reading
	//   - error: ErrNoData if nothing is stored, or if retrieval fails
	Latest(ctx context.Context) (reading *telemetry.Reading, err error)

	// Close releases all database connections and resources.
	// After Close is called, the store instance cannot be reused.
	// It is safe to call Close multiple times.
	Close() error
}
