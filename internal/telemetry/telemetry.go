package telemetry

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidReading is returned by Validate when a reading carries values
// that cannot be stored or charted.
var ErrInvalidReading = errors.New("invalid reading")

// Reading is a single telemetry record from the satellite sensors. Readings
// are immutable once created: the store assigns ID and Timestamp, nothing
// downstream modifies them.
type Reading struct {
	ID        string    `json:"_id"`       // Opaque identifier assigned by the store
	Timestamp time.Time `json:"timestamp"` // Time the reading was recorded
	AccX      float64   `json:"accX"`      // X-axis acceleration in m/s²
	AccY      float64   `json:"accY"`      // Y-axis acceleration in m/s²
	AccZ      float64   `json:"accZ"`      // Z-axis acceleration in m/s²
	GyroX     float64   `json:"gyroX"`     // X-axis angular rate in deg/s
	GyroY     float64   `json:"gyroY"`     // Y-axis angular rate in deg/s
	GyroZ     float64   `json:"gyroZ"`     // Z-axis angular rate in deg/s
	Temp      float64   `json:"temp"`      // Temperature in °C
	Hum       float64   `json:"hum"`       // Relative humidity in %
	Lat       float64   `json:"lat"`       // GPS latitude in degrees
	Lon       float64   `json:"lon"`       // GPS longitude in degrees
	Current   float64   `json:"current"`   // Current draw in mA
}

// Values returns the sensor fields in wire order:
// accX, accY, accZ, gyroX, gyroY, gyroZ, temp, hum, lat, lon, current.
func (r *Reading) Values() []float64 {
	return []float64{
		r.AccX, r.AccY, r.AccZ,
		r.GyroX, r.GyroY, r.GyroZ,
		r.Temp, r.Hum,
		r.Lat, r.Lon,
		r.Current,
	}
}

// Validate checks that all sensor values are finite and the position is
// within the valid coordinate range.
func (r *Reading) Validate() error {
	for i, v := range r.Values() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: field %d is not a finite number", ErrInvalidReading, i)
		}
	}
	if r.Lat < -90 || r.Lat > 90 {
		return fmt.Errorf("%w: latitude out of range: %0.6f", ErrInvalidReading, r.Lat)
	}
	if r.Lon < -180 || r.Lon > 180 {
		return fmt.Errorf("%w: longitude out of range: %0.6f", ErrInvalidReading, r.Lon)
	}
	return nil
}

func (r *Reading) String() string {
	return fmt.Sprintf("%s acc=(%.2f, %.2f, %.2f) gyro=(%.2f, %.2f, %.2f) temp=%.1f°C hum=%.1f%% pos=(%.5f, %.5f) current=%.2fmA",
		r.Timestamp.UTC().Format(time.RFC3339),
		r.AccX, r.AccY, r.AccZ,
		r.GyroX, r.GyroY, r.GyroZ,
		r.Temp, r.Hum,
		r.Lat, r.Lon,
		r.Current)
}
