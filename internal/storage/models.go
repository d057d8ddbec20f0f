package storage

type readingData struct {
	ID        string
	Timestamp int64 // Unix nanoseconds
	AccX      float64
	AccY      float64
	AccZ      float64
	GyroX     float64
	GyroY     float64
	GyroZ     float64
	Temp      float64
	Hum       float64
	Lat       float64
	Lon       float64
	Current   float64
}

func (d *readingData) args() []any {
	return []any{
		d.ID,
		d.Timestamp,
		d.AccX,
		d.AccY,
		d.AccZ,
		d.GyroX,
		d.GyroY,
		d.GyroZ,
		d.Temp,
		d.Hum,
		d.Lat,
		d.Lon,
		d.Current,
	}
}

func (d *readingData) dest() []any {
	return []any{
		&d.ID,
		&d.Timestamp,
		&d.AccX,
		&d.AccY,
		&d.AccZ,
		&d.GyroX,
		&d.GyroY,
		&d.GyroZ,
		&d.Temp,
		&d.Hum,
		&d.Lat,
		&d.Lon,
		&d.Current,
	}
}
