package telemetry

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReading_JSONFieldNames(t *testing.T) {
	r := Reading{
		ID:        "abc",
		Timestamp: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		AccX:      0.1,
		GyroZ:     -2,
		Temp:      21.5,
		Lat:       51.5,
		Lon:       -0.12,
		Current:   0.35,
	}

	p, err := json.Marshal(&r)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(p, &m))

	for _, key := range []string{"_id", "timestamp", "accX", "accY", "accZ", "gyroX", "gyroY", "gyroZ", "temp", "hum", "lat", "lon", "current"} {
		assert.Contains(t, m, key)
	}
	assert.Equal(t, "2025-03-01T10:00:00Z", m["timestamp"])
}

func TestReading_Validate(t *testing.T) {
	tests := []struct {
		name    string
		reading Reading
		wantErr bool
	}{
		{name: "valid", reading: Reading{Lat: 10, Lon: 20}},
		{name: "nan", reading: Reading{Temp: math.NaN()}, wantErr: true},
		{name: "inf", reading: Reading{Current: math.Inf(1)}, wantErr: true},
		{name: "latitude", reading: Reading{Lat: 91}, wantErr: true},
		{name: "longitude", reading: Reading{Lon: -181}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.reading.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidReading))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestReading_Values(t *testing.T) {
	r := Reading{AccX: 1, AccY: 2, AccZ: 3, GyroX: 4, GyroY: 5, GyroZ: 6, Temp: 7, Hum: 8, Lat: 9, Lon: 10, Current: 11}
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}, r.Values())
}
