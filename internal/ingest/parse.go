// Package ingest turns raw device output into telemetry readings and records
// them in the store.
package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/roman-kulish/leo-telemetry/internal/telemetry"
)

// NumFields is the number of comma separated values the device sends per
// line: accX, accY, accZ, gyroX, gyroY, gyroZ, temp, hum, lat, lon, current.
const NumFields = 11

// ErrInvalidFormat is returned when a line does not have the expected shape.
var ErrInvalidFormat = errors.New("invalid data format")

// ParseLine parses a device line of NumFields comma separated numbers. The
// returned reading has neither ID nor Timestamp, the store assigns both.
func ParseLine(line string) (*telemetry.Reading, error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) != NumFields {
		return nil, fmt.Errorf("%w: expected %d fields, got %d", ErrInvalidFormat, NumFields, len(fields))
	}

	var values [NumFields]float64
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: field %d: %w", ErrInvalidFormat, i, err)
		}
		values[i] = v
	}

	r := telemetry.Reading{
		AccX:    values[0],
		AccY:    values[1],
		AccZ:    values[2],
		GyroX:   values[3],
		GyroY:   values[4],
		GyroZ:   values[5],
		Temp:    values[6],
		Hum:     values[7],
		Lat:     values[8],
		Lon:     values[9],
		Current: values[10],
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}

	return &r, nil
}

// ParsePayload parses a message payload which is either a device line or a
// JSON encoded reading. ID and Timestamp of a JSON reading are kept, so a
// gateway may stamp readings at the source.
func ParsePayload(payload []byte) (*telemetry.Reading, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidFormat)
	}

	if payload[0] != '{' {
		return ParseLine(string(payload))
	}

	var r telemetry.Reading
	if err := json.Unmarshal(payload, &r); err != nil {
		return nil, fmt.Errorf("%w: decoding JSON: %w", ErrInvalidFormat, err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}

	return &r, nil
}
