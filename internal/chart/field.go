package chart

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roman-kulish/leo-telemetry/internal/telemetry"
)

// Field is a plottable sensor field of a reading. The name matches the JSON
// name of the field.
type Field string

const (
	FieldAccX    Field = "accX"
	FieldAccY    Field = "accY"
	FieldAccZ    Field = "accZ"
	FieldGyroX   Field = "gyroX"
	FieldGyroY   Field = "gyroY"
	FieldGyroZ   Field = "gyroZ"
	FieldTemp    Field = "temp"
	FieldHum     Field = "hum"
	FieldLat     Field = "lat"
	FieldLon     Field = "lon"
	FieldCurrent Field = "current"
)

// Fields lists every field in wire order.
var Fields = []Field{
	FieldAccX, FieldAccY, FieldAccZ,
	FieldGyroX, FieldGyroY, FieldGyroZ,
	FieldTemp, FieldHum,
	FieldLat, FieldLon,
	FieldCurrent,
}

// ParseField returns the field named s.
func ParseField(s string) (Field, error) {
	f := Field(strings.TrimSpace(s))
	if !slices.Contains(Fields, f) {
		return "", fmt.Errorf("unknown field %q", s)
	}
	return f, nil
}

// Value extracts the field value from r.
func (f Field) Value(r telemetry.Reading) float64 {
	switch f {
	case FieldAccX:
		return r.AccX
	case FieldAccY:
		return r.AccY
	case FieldAccZ:
		return r.AccZ
	case FieldGyroX:
		return r.GyroX
	case FieldGyroY:
		return r.GyroY
	case FieldGyroZ:
		return r.GyroZ
	case FieldTemp:
		return r.Temp
	case FieldHum:
		return r.Hum
	case FieldLat:
		return r.Lat
	case FieldLon:
		return r.Lon
	case FieldCurrent:
		return r.Current
	default:
		return 0
	}
}

// Unit returns the unit symbol of the field values.
func (f Field) Unit() string {
	switch f {
	case FieldAccX, FieldAccY, FieldAccZ:
		return "m/s²"
	case FieldGyroX, FieldGyroY, FieldGyroZ:
		return "°/s"
	case FieldTemp:
		return "°C"
	case FieldHum:
		return "%"
	case FieldLat, FieldLon:
		return "°"
	case FieldCurrent:
		return "mA"
	default:
		return ""
	}
}

// Title is the human readable name of the field.
func (f Field) Title() string {
	switch f {
	case FieldAccX:
		return "Acceleration X"
	case FieldAccY:
		return "Acceleration Y"
	case FieldAccZ:
		return "Acceleration Z"
	case FieldGyroX:
		return "Gyroscope X"
	case FieldGyroY:
		return "Gyroscope Y"
	case FieldGyroZ:
		return "Gyroscope Z"
	case FieldTemp:
		return "Temperature"
	case FieldHum:
		return "Humidity"
	case FieldLat:
		return "Latitude"
	case FieldLon:
		return "Longitude"
	case FieldCurrent:
		return "Current"
	default:
		return string(f)
	}
}
