package storage

import (
	_ "embed"
)

const (
	readingColumns = `
    id,
    timestamp,
    acc_x,
    acc_y,
    acc_z,
    gyro_x,
    gyro_y,
    gyro_z,
    temp,
    hum,
    lat,
    lon,
    current_ma`

	insertReadingSQL = `
INSERT INTO readings (` + readingColumns + `)
VALUES `

	readingPlaceholder = "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"

	insertReadingConflictSQL = `
ON CONFLICT (id) DO NOTHING
RETURNING id`

	selectRecentReadingsSQL = `
SELECT ` + readingColumns + `
FROM readings
ORDER BY
    timestamp DESC,
    seq DESC
LIMIT ?`

	// maxRowsPerInsert keeps multi-row inserts well below the SQLite bound
	// variables limit
	maxRowsPerInsert = 500
)

//go:embed schema.sql
var initSchemaSQL string
