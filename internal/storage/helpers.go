package storage

import (
	"time"

	"github.com/google/uuid"

	"github.com/roman-kulish/leo-telemetry/internal/telemetry"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && *err == nil {
		*err = cErr
	}
}

// prepareReading fills in the fields the store is responsible for.
func prepareReading(r telemetry.Reading, now func() time.Time) telemetry.Reading {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = now()
	}
	r.Timestamp = r.Timestamp.UTC()
	return r
}

func toReadingData(r *telemetry.Reading) *readingData {
	return &readingData{
		ID:        r.ID,
		Timestamp: r.Timestamp.UTC().UnixNano(),
		AccX:      r.AccX,
		AccY:      r.AccY,
		AccZ:      r.AccZ,
		GyroX:     r.GyroX,
		GyroY:     r.GyroY,
		GyroZ:     r.GyroZ,
		Temp:      r.Temp,
		Hum:       r.Hum,
		Lat:       r.Lat,
		Lon:       r.Lon,
		Current:   r.Current,
	}
}

func fromReadingData(d *readingData) telemetry.Reading {
	return telemetry.Reading{
		ID:        d.ID,
		Timestamp: time.Unix(0, d.Timestamp).UTC(),
		AccX:      d.AccX,
		AccY:      d.AccY,
		AccZ:      d.AccZ,
		GyroX:     d.GyroX,
		GyroY:     d.GyroY,
		GyroZ:     d.GyroZ,
		Temp:      d.Temp,
		Hum:       d.Hum,
		Lat:       d.Lat,
		Lon:       d.Lon,
		Current:   d.Current,
	}
}
