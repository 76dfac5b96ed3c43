package storage

import (
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"passages.dev/gtfs/model"
)

const (
	PSQLTripBatchSize     = 10000
	PSQLStopTimeBatchSize = 5000
)

type PSQLStorage struct {
	sqlStorage
}

// Buffers trips and stop_times and flushes them with COPY.
type PSQLFeedWriter struct {
	sqlFeedWriter

	tripBuf     []*model.Trip
	stopTimeBuf []*model.StopTime
}

// Creates a new Postgres Storage using the provided connection string.
//
// If clearDB is true, the database will be cleared on startup. You
// probably only want this for testing.
func NewPSQLStorage(connStr string, clearDB bool) (*PSQLStorage, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	err = db.Ping()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	if clearDB {
		_, err = db.Exec(`DROP TABLE IF EXISTS feed, feed_data`)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("dropping feed tables: %w", err)
		}
		for _, table := range feedTables {
			_, err = db.Exec(`DROP TABLE IF EXISTS ` + table.Name)
			if err != nil {
				db.Close()
				return nil, fmt.Errorf("dropping %s table: %w", table.Name, err)
			}
		}
	}

	_, err = db.Exec(`
CREATE TABLE IF NOT EXISTS feed (
    hash TEXT NOT NULL,
    url TEXT NOT NULL,
    retrieved_at TIMESTAMPTZ NOT NULL,
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

	s := &PSQLStorage{sqlStorage{db: db, bind: bindDollar}}

	err = s.createFeedTables()
	if err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *PSQLStorage) GetWriter(hash string) (FeedWriter, error) {
	err := s.resetFeed(hash)
	if err != nil {
		return nil, err
	}

	return &PSQLFeedWriter{
		sqlFeedWriter: sqlFeedWriter{db: s.db, bind: s.bind, hash: hash},
	}, nil
}

func (w *PSQLFeedWriter) BeginTrips() error {
	return nil
}

func (w *PSQLFeedWriter) WriteTrip(trip *model.Trip) error {
	w.tripBuf = append(w.tripBuf, trip)

	if len(w.tripBuf) >= PSQLTripBatchSize {
		err := w.flushTrips()
		if err != nil {
			return fmt.Errorf("flushing trips: %w", err)
		}
	}

	return nil
}

func (w *PSQLFeedWriter) EndTrips() error {
	if len(w.tripBuf) > 0 {
		err := w.flushTrips()
		if err != nil {
			return fmt.Errorf("flushing trips: %w", err)
		}
	}
	return nil
}

func (w *PSQLFeedWriter) flushTrips() error {
	rows := make([][]interface{}, 0, len(w.tripBuf))
	for _, trip := range w.tripBuf {
		rows = append(rows, []interface{}{
			w.hash, trip.ID, trip.RouteID, trip.ServiceID, trip.Headsign, trip.ShortName, trip.DirectionID,
		})
	}

	err := w.copyIn(
		rows,
		"trips", "hash", "id", "route_id", "service_id", "headsign", "short_name", "direction_id",
	)
	if err != nil {
		return err
	}

	w.tripBuf = nil
	return nil
}

func (w *PSQLFeedWriter) BeginStopTimes() error {
	return nil
}

func (w *PSQLFeedWriter) WriteStopTime(stopTime *model.StopTime) error {
	w.stopTimeBuf = append(w.stopTimeBuf, stopTime)

	if len(w.stopTimeBuf) >= PSQLStopTimeBatchSize {
		err := w.flushStopTimes()
		if err != nil {
			return fmt.Errorf("flushing stop_times: %w", err)
		}
	}

	return nil
}

func (w *PSQLFeedWriter) EndStopTimes() error {
	if len(w.stopTimeBuf) > 0 {
		err := w.flushStopTimes()
		if err != nil {
			return fmt.Errorf("flushing stop_times: %w", err)
		}
	}
	return nil
}

func (w *PSQLFeedWriter) flushStopTimes() error {
	rows := make([][]interface{}, 0, len(w.stopTimeBuf))
	for _, st := range w.stopTimeBuf {
		rows = append(rows, []interface{}{
			w.hash, st.TripID, st.StopID, st.StopSequence, st.Arrival, st.Departure, st.Headsign,
		})
	}

	err := w.copyIn(
		rows,
		"stop_times", "hash", "trip_id", "stop_id", "stop_sequence", "arrival_time", "departure_time", "headsign",
	)
	if err != nil {
		return err
	}

	w.stopTimeBuf = nil
	return nil
}

func (w *PSQLFeedWriter) copyIn(rows [][]interface{}, table string, columns ...string) error {
	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(pq.CopyIn(table, columns...))
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		_, err = stmt.Exec(row...)
		if err != nil {
			return fmt.Errorf("COPY %s: %w", table, err)
		}
	}

	_, err = stmt.Exec()
	if err != nil {
		return fmt.Errorf("executing statement: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("committing: %w", err)
	}

	return nil
}

func (w *PSQLFeedWriter) Close() error {
	_, err := w.db.Exec(`ANALYZE`)
	if err != nil {
		return fmt.Errorf("analyzing: %w", err)
	}
	return nil
}
