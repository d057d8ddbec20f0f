package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roman-kulish/leo-telemetry/internal/telemetry"
)

// WithClock sets the function used to timestamp readings stored without a
// timestamp.
func WithClock(now func() time.Time) func(*SqliteStore) {
	return func(s *SqliteStore) {
		s.now = now
	}
}

// SqliteStore handles database operations
type SqliteStore struct {
	dbPath string
	now    func() time.Time

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	// mu guards closed: operations hold it shared, Close exclusively
	mu       sync.RWMutex
	closed   bool
	closeErr error
}

var _ Store = (*SqliteStore)(nil)

// NewSqliteStore creates a new store backed by the Sqlite database at dbPath.
// Connections are opened lazily, the schema is created on first write.
func NewSqliteStore(dbPath string, options ...func(*SqliteStore)) *SqliteStore {
	s := SqliteStore{
		dbPath: dbPath,
		now:    time.Now,
	}

	for _, option := range options {
		option(&s)
	}

	return &s
}

// OpenSqliteStore creates a new store and initializes the database file and
// schema, so that read-only queries succeed before the first reading is
// written.
func OpenSqliteStore(dbPath string, options ...func(*SqliteStore)) (*SqliteStore, error) {
	s := NewSqliteStore(dbPath, options...)
	if _, err := s.getWriteDB(); err != nil {
		return nil, err
	}
	return s, nil
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}
		db.SetMaxOpenConns(1) // single writer

		if err = runSQLCommand(db, initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro&_busy_timeout=5000"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

func (s *SqliteStore) StoreReading(ctx context.Context, r *telemetry.Reading) (reading telemetry.Reading, err error) {
	if r == nil {
		err = errors.New("cannot store nil reading")
		return
	}

	stored, err := s.StoreReadings(ctx, []telemetry.Reading{*r})
	if err != nil {
		return
	}
	if len(stored) == 0 {
		err = fmt.Errorf("%w: %s", ErrDuplicateReading, r.ID)
		return
	}
	return stored[0], nil
}

// StoreReadings inserts the readings in one transaction. A reading whose ID
// is already stored is skipped, it is a redelivery of the same record.
func (s *SqliteStore) StoreReadings(ctx context.Context, rs []telemetry.Reading) (readings []telemetry.Reading, err error) {
	if len(rs) == 0 {
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	prepared := make([]telemetry.Reading, len(rs))
	for i, r := range rs {
		prepared[i] = prepareReading(r, s.now)
	}

	db, err := s.getWriteDB()
	if err != nil {
		return nil, fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			rollbackWithError(tx, &err)
			readings = nil
		}
	}()

	inserted := make(map[string]struct{}, len(prepared))

	for chunk := range slices.Chunk(prepared, maxRowsPerInsert) {
		values := make([]any, 0, len(chunk)*13)

		var sb strings.Builder
		sb.WriteString(insertReadingSQL)

		for i := range chunk {
			values = append(values, toReadingData(&chunk[i]).args()...)

			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(readingPlaceholder)
		}
		sb.WriteString(insertReadingConflictSQL)

		if err = insertChunk(ctx, tx, sb.String(), values, inserted); err != nil {
			return nil, fmt.Errorf("batch inserting readings: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}

	// the first occurrence of an ID is the one inserted
	readings = make([]telemetry.Reading, 0, len(inserted))
	for _, r := range prepared {
		if _, ok := inserted[r.ID]; ok {
			readings = append(readings, r)
			delete(inserted, r.ID)
		}
	}

	return readings, nil
}

// insertChunk runs a multi-row insert and collects the IDs of the rows that
// were actually inserted.
func insertChunk(ctx context.Context, tx *sql.Tx, query string, values []any, inserted map[string]struct{}) (err error) {
	rows, err := tx.QueryContext(ctx, query, values...)
	if err != nil {
		return err
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var id string
		if err = rows.Scan(&id); err != nil {
			return err
		}
		inserted[id] = struct{}{}
	}
	return rows.Err()
}

func (s *SqliteStore) Recent(ctx context.Context, n int) (readings []telemetry.Reading, err error) {
	if n <= 0 {
		return []telemetry.Reading{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectRecentReadingsSQL, n)
	if err != nil {
		err = fmt.Errorf("querying readings: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	readings = make([]telemetry.Reading, 0, n)
	for rows.Next() {
		var data readingData
		if err = rows.Scan(data.dest()...); err != nil {
			err = fmt.Errorf("scanning reading: %w", err)
			return
		}
		readings = append(readings, fromReadingData(&data))
	}
	if err = rows.Err(); err != nil {
		err = fmt.Errorf("iterating readings: %w", err)
	}
	return
}

func (s *SqliteStore) Latest(ctx context.Context) (*telemetry.Reading, error) {
	readings, err := s.Recent(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(readings) == 0 {
		return nil, ErrNoData
	}
	return &readings[0], nil
}

// Close waits for running operations and closes the connections. Later calls
// fail with ErrClosed.
func (s *SqliteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return s.closeErr
	}
	s.closed = true

	var writeErr, readErr error

	if s.writeDB != nil {
		writeErr = s.writeDB.Close()
		s.writeDB = nil
	}

	if s.readDB != nil {
		readErr = s.readDB.Close()
		s.readDB = nil
	}

	s.closeErr = errors.Join(writeErr, readErr)
	return s.closeErr
}
