package storage

import (
	"database/sql"
	"fmt"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"passages.dev/gtfs/model"
)

type SQLiteConfig struct {
	OnDisk    bool
	Directory string
}

type SQLiteStorage struct {
	sqlStorage
	SQLiteConfig
}

// Trips and stop_times are written inside a transaction with a
// prepared insert, which is orders of magnitude faster than
// autocommitting each row.
type SQLiteFeedWriter struct {
	sqlFeedWriter

	tx   *sql.Tx
	stmt *sql.Stmt
}

func NewSQLiteStorage(cfg ...SQLiteConfig) (*SQLiteStorage, error) {
	config := SQLiteConfig{}
	if len(cfg) > 0 {
		config = cfg[0]
	}

	sourceName := ":memory:"
	if config.OnDisk {
		sourceName = filepath.Join(config.Directory, "gtfs.db")
	}

	db, err := sql.Open("sqlite3", sourceName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Each connection to :memory: gets its own database.
	if !config.OnDisk {
		db.SetMaxOpenConns(1)
	}

	_, err = db.Exec(`
CREATE TABLE IF NOT EXISTS feed (
    hash TEXT NOT NULL,
    url TEXT NOT NULL,
    retrieved_at TIMESTAMP NOT NULL,
    calendar_start TEXT NOT NULL,
    calendar_end TEXT NOT NULL,
    timezone TEXT NOT NULL,
    max_departure TEXT NOT NULL,
    agencies INTEGER NOT NULL DEFAULT 0,
    routes INTEGER NOT NULL DEFAULT 0,
    stops INTEGER NOT NULL DEFAULT 0,
    trips INTEGER NOT NULL DEFAULT 0,
    stop_times INTEGER NOT NULL DEFAULT 0,
    calendars INTEGER NOT NULL DEFAULT 0,
    calendar_dates INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (hash, url)
);`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating feed table: %w", err)
	}

	s := &SQLiteStorage{
		sqlStorage:   sqlStorage{db: db, bind: bindQuestion},
		SQLiteConfig: config,
	}

	err = s.createFeedTables()
	if err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *SQLiteStorage) GetWriter(hash string) (FeedWriter, error) {
	err := s.resetFeed(hash)
	if err != nil {
		return nil, err
	}

	return &SQLiteFeedWriter{
		sqlFeedWriter: sqlFeedWriter{db: s.db, bind: s.bind, hash: hash},
	}, nil
}

func (w *SQLiteFeedWriter) begin(query string) error {
	if w.tx != nil {
		return fmt.Errorf("transaction already in progress")
	}

	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}

	stmt, err := tx.Prepare(query)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("preparing statement: %w", err)
	}

	w.tx = tx
	w.stmt = stmt
	return nil
}

func (w *SQLiteFeedWriter) end() error {
	if w.tx == nil {
		return fmt.Errorf("no transaction in progress")
	}

	w.stmt.Close()
	err := w.tx.Commit()
	w.tx = nil
	w.stmt = nil
	if err != nil {
		return fmt.Errorf("committing: %w", err)
	}
	return nil
}

func (w *SQLiteFeedWriter) BeginTrips() error {
	return w.begin(`
INSERT INTO trips (hash, id, route_id, service_id, headsign, short_name, direction_id)
VALUES (?, ?, ?, ?, ?, ?, ?)`)
}

func (w *SQLiteFeedWriter) WriteTrip(trip *model.Trip) error {
	if w.stmt == nil {
		return fmt.Errorf("WriteTrip called before BeginTrips")
	}

	_, err := w.stmt.Exec(
		w.hash,
		trip.ID,
		trip.RouteID,
		trip.ServiceID,
		trip.Headsign,
		trip.ShortName,
		trip.DirectionID,
	)
	if err != nil {
		return fmt.Errorf("inserting trip: %w", err)
	}
	return nil
}

func (w *SQLiteFeedWriter) EndTrips() error {
	return w.end()
}

func (w *SQLiteFeedWriter) BeginStopTimes() error {
	return w.begin(`
INSERT INTO stop_times (hash, trip_id, stop_id, stop_sequence, arrival_time, departure_time, headsign)
VALUES (?, ?, ?, ?, ?, ?, ?)`)
}

func (w *SQLiteFeedWriter) WriteStopTime(stopTime *model.StopTime) error {
	if w.stmt == nil {
		return fmt.Errorf("WriteStopTime called before BeginStopTimes")
	}

	_, err := w.stmt.Exec(
		w.hash,
		stopTime.TripID,
		stopTime.StopID,
		stopTime.StopSequence,
		stopTime.Arrival,
		stopTime.Departure,
		stopTime.Headsign,
	)
	if err != nil {
		return fmt.Errorf("inserting stop_time: %w", err)
	}
	return nil
}

func (w *SQLiteFeedWriter) EndStopTimes() error {
	return w.end()
}

func (w *SQLiteFeedWriter) Close() error {
	if w.tx != nil {
		w.stmt.Close()
		w.tx.Rollback()
		w.tx = nil
		w.stmt = nil
		return fmt.Errorf("writer closed with transaction in progress")
	}
	return nil
}
