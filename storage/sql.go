package storage

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"passages.dev/gtfs/model"
)

// Shared by the SQLite and Postgres backends. All feed records live
// in the same tables, keyed by feed hash.

var feedTables = []struct {
	Name   string
	Schema string
}{
	{"agency", `
CREATE TABLE IF NOT EXISTS agency (
    hash TEXT NOT NULL,
    id TEXT NOT NULL,
    name TEXT NOT NULL,
    url TEXT NOT NULL,
    timezone TEXT NOT NULL,
    PRIMARY KEY (hash, id)
);`},
	{"stops", `
CREATE TABLE IF NOT EXISTS stops (
    hash TEXT NOT NULL,
    id TEXT NOT NULL,
    code TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT NOT NULL,
    lat DOUBLE PRECISION NOT NULL,
    lon DOUBLE PRECISION NOT NULL,
    url TEXT NOT NULL,
    location_type INTEGER NOT NULL,
    parent_station TEXT NOT NULL,
    platform_code TEXT NOT NULL,
    PRIMARY KEY (hash, id)
);`},
	{"routes", `
CREATE TABLE IF NOT EXISTS routes (
    hash TEXT NOT NULL,
    id TEXT NOT NULL,
    agency_id TEXT NOT NULL,
    short_name TEXT NOT NULL,
    long_name TEXT NOT NULL,
    description TEXT NOT NULL,
    type INTEGER NOT NULL,
    url TEXT NOT NULL,
    color TEXT NOT NULL,
    text_color TEXT NOT NULL,
    PRIMARY KEY (hash, id)
);`},
	{"trips", `
CREATE TABLE IF NOT EXISTS trips (
    hash TEXT NOT NULL,
    id TEXT NOT NULL,
    route_id TEXT NOT NULL,
    service_id TEXT NOT NULL,
    headsign TEXT NOT NULL,
    short_name TEXT NOT NULL,
    direction_id INTEGER NOT NULL,
    PRIMARY KEY (hash, id)
);`},
	{"stop_times", `
CREATE TABLE IF NOT EXISTS stop_times (
    hash TEXT NOT NULL,
    trip_id TEXT NOT NULL,
    stop_id TEXT NOT NULL,
    stop_sequence INTEGER NOT NULL,
    arrival_time TEXT NOT NULL,
    departure_time TEXT NOT NULL,
    headsign TEXT NOT NULL,
    PRIMARY KEY (hash, trip_id, stop_sequence)
);`},
	{"calendar", `
CREATE TABLE IF NOT EXISTS calendar (
    hash TEXT NOT NULL,
    service_id TEXT NOT NULL,
    start_date TEXT NOT NULL,
    end_date TEXT NOT NULL,
    weekday INTEGER NOT NULL,
    PRIMARY KEY (hash, service_id)
);`},
	{"calendar_dates", `
CREATE TABLE IF NOT EXISTS calendar_dates (
    hash TEXT NOT NULL,
    service_id TEXT NOT NULL,
    date TEXT NOT NULL,
    exception_type INTEGER NOT NULL,
    PRIMARY KEY (hash, service_id, date)
);`},
}

// Rewrites ? placeholders as $1, $2, ...
func bindDollar(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func bindQuestion(query string) string {
	return query
}

type sqlStorage struct {
	db   *sql.DB
	bind func(string) string
}

func (s *sqlStorage) createFeedTables() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS feed_data (
    hash TEXT NOT NULL,
    PRIMARY KEY (hash)
);`)
	if err != nil {
		return fmt.Errorf("creating feed_data table: %w", err)
	}

	for _, table := range feedTables {
		_, err := s.db.Exec(table.Schema)
		if err != nil {
			return fmt.Errorf("creating %s table: %w", table.Name, err)
		}
	}
	return nil
}

// Removes all records of a feed, in case it's being rewritten, and
// marks the feed as present.
func (s *sqlStorage) resetFeed(hash string) error {
	for _, table := range feedTables {
		_, err := s.db.Exec(s.bind(`DELETE FROM `+table.Name+` WHERE hash = ?`), hash)
		if err != nil {
			return fmt.Errorf("deleting %s records: %w", table.Name, err)
		}
	}

	_, err := s.db.Exec(s.bind(`
INSERT INTO feed_data (hash) VALUES (?)
ON CONFLICT (hash) DO NOTHING`), hash)
	if err != nil {
		return fmt.Errorf("marking feed: %w", err)
	}

	return nil
}

func (s *sqlStorage) ListFeeds(filter ListFeedsFilter) ([]*FeedMetadata, error) {
	query := `
SELECT
    hash,
    url,
    retrieved_at,
    calendar_start,
    calendar_end,
    timezone,
    max_departure,
    agencies,
    routes,
    stops,
    trips,
    stop_times,
    calendars,
    calendar_dates
FROM feed`

	conditions := []string{}
	params := []interface{}{}
	if filter.URL != "" {
		conditions = append(conditions, "url = ?")
		params = append(params, filter.URL)
	}
	if filter.Hash != "" {
		conditions = append(conditions, "hash = ?")
		params = append(params, filter.Hash)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY retrieved_at DESC"

	rows, err := s.db.Query(s.bind(query), params...)
	if err != nil {
		return nil, fmt.Errorf("listing feeds: %w", err)
	}
	defer rows.Close()

	feeds := []*FeedMetadata{}
	for rows.Next() {
		feed := &FeedMetadata{}
		err := rows.Scan(
			&feed.Hash,
			&feed.URL,
			&feed.RetrievedAt,
			&feed.CalendarStartDate,
			&feed.CalendarEndDate,
			&feed.Timezone,
			&feed.MaxDeparture,
			&feed.Counts.Agencies,
			&feed.Counts.Routes,
			&feed.Counts.Stops,
			&feed.Counts.Trips,
			&feed.Counts.StopTimes,
			&feed.Counts.Calendars,
			&feed.Counts.CalendarDates,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning feed: %w", err)
		}
		feed.RetrievedAt = feed.RetrievedAt.UTC()
		feeds = append(feeds, feed)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating feeds: %w", err)
	}

	return feeds, nil
}

func (s *sqlStorage) WriteFeedMetadata(feed *FeedMetadata) error {
	_, err := s.db.Exec(s.bind(`
INSERT INTO feed (
    hash, url, retrieved_at, calendar_start, calendar_end, timezone, max_departure,
    agencies, routes, stops, trips, stop_times, calendars, calendar_dates
)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (hash, url) DO UPDATE SET
    retrieved_at = excluded.retrieved_at,
    calendar_start = excluded.calendar_start,
    calendar_end = excluded.calendar_end,
    timezone = excluded.timezone,
    max_departure = excluded.max_departure,
    agencies = excluded.agencies,
    routes = excluded.routes,
    stops = excluded.stops,
    trips = excluded.trips,
    stop_times = excluded.stop_times,
    calendars = excluded.calendars,
    calendar_dates = excluded.calendar_dates`),
		feed.Hash,
		feed.URL,
		feed.RetrievedAt.UTC(),
		feed.CalendarStartDate,
		feed.CalendarEndDate,
		feed.Timezone,
		feed.MaxDeparture,
		feed.Counts.Agencies,
		feed.Counts.Routes,
		feed.Counts.Stops,
		feed.Counts.Trips,
		feed.Counts.StopTimes,
		feed.Counts.Calendars,
		feed.Counts.CalendarDates,
	)
	if err != nil {
		return fmt.Errorf("writing feed metadata: %w", err)
	}
	return nil
}

func (s *sqlStorage) GetReader(hash string) (FeedReader, error) {
	var count int
	err := s.db.QueryRow(s.bind(`SELECT COUNT(*) FROM feed_data WHERE hash = ?`), hash).Scan(&count)
	if err != nil {
		return nil, fmt.Errorf("looking up feed: %w", err)
	}
	if count == 0 {
		return nil, fmt.Errorf("feed %s not found", hash)
	}

	return &sqlFeedReader{db: s.db, bind: s.bind, hash: hash}, nil
}

func (s *sqlStorage) Close() error {
	err := s.db.Close()
	if err != nil {
		return fmt.Errorf("closing db: %w", err)
	}
	return nil
}

type sqlFeedReader struct {
	db   *sql.DB
	bind func(string) string
	hash string
}

// Runs query with the feed hash as sole parameter, calling scan once
// per row.
func (r *sqlFeedReader) each(query string, scan func(*sql.Rows) error) error {
	rows, err := r.db.Query(r.bind(query), r.hash)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (r *sqlFeedReader) Agencies() ([]*model.Agency, error) {
	agencies := []*model.Agency{}
	err := r.each(`
SELECT id, name, url, timezone
FROM agency WHERE hash = ? ORDER BY id`, func(rows *sql.Rows) error {
		a := &model.Agency{}
		if err := rows.Scan(&a.ID, &a.Name, &a.URL, &a.Timezone); err != nil {
			return err
		}
		agencies = append(agencies, a)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading agencies: %w", err)
	}
	return agencies, nil
}

func (r *sqlFeedReader) Stops() ([]*model.Stop, error) {
	stops := []*model.Stop{}
	err := r.each(`
SELECT id, code, name, description, lat, lon, url, location_type, parent_station, platform_code
FROM stops WHERE hash = ? ORDER BY id`, func(rows *sql.Rows) error {
		s := &model.Stop{}
		err := rows.Scan(
			&s.ID,
			&s.Code,
			&s.Name,
			&s.Desc,
			&s.Lat,
			&s.Lon,
			&s.URL,
			&s.LocationType,
			&s.ParentStation,
			&s.PlatformCode,
		)
		if err != nil {
			return err
		}
		stops = append(stops, s)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading stops: %w", err)
	}
	return stops, nil
}

func (r *sqlFeedReader) Routes() ([]*model.Route, error) {
	routes := []*model.Route{}
	err := r.each(`
SELECT id, agency_id, short_name, long_name, description, type, url, color, text_color
FROM routes WHERE hash = ? ORDER BY id`, func(rows *sql.Rows) error {
		route := &model.Route{}
		err := rows.Scan(
			&route.ID,
			&route.AgencyID,
			&route.ShortName,
			&route.LongName,
			&route.Desc,
			&route.Type,
			&route.URL,
			&route.Color,
			&route.TextColor,
		)
		if err != nil {
			return err
		}
		routes = append(routes, route)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading routes: %w", err)
	}
	return routes, nil
}

func (r *sqlFeedReader) Trips() ([]*model.Trip, error) {
	trips := []*model.Trip{}
	err := r.each(`
SELECT id, route_id, service_id, headsign, short_name, direction_id
FROM trips WHERE hash = ? ORDER BY id`, func(rows *sql.Rows) error {
		t := &model.Trip{}
		err := rows.Scan(&t.ID, &t.RouteID, &t.ServiceID, &t.Headsign, &t.ShortName, &t.DirectionID)
		if err != nil {
			return err
		}
		trips = append(trips, t)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading trips: %w", err)
	}
	return trips, nil
}

func (r *sqlFeedReader) StopTimes() ([]*model.StopTime, error) {
	stopTimes := []*model.StopTime{}
	err := r.each(`
SELECT trip_id, stop_id, stop_sequence, arrival_time, departure_time, headsign
FROM stop_times WHERE hash = ? ORDER BY trip_id, stop_sequence`, func(rows *sql.Rows) error {
		st := &model.StopTime{}
		err := rows.Scan(&st.TripID, &st.StopID, &st.StopSequence, &st.Arrival, &st.Departure, &st.Headsign)
		if err != nil {
			return err
		}
		stopTimes = append(stopTimes, st)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading stop_times: %w", err)
	}
	return stopTimes, nil
}

func (r *sqlFeedReader) Calendars() ([]*model.Calendar, error) {
	calendars := []*model.Calendar{}
	err := r.each(`
SELECT service_id, start_date, end_date, weekday
FROM calendar WHERE hash = ? ORDER BY service_id`, func(rows *sql.Rows) error {
		c := &model.Calendar{}
		if err := rows.Scan(&c.ServiceID, &c.StartDate, &c.EndDate, &c.Weekday); err != nil {
			return err
		}
		calendars = append(calendars, c)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading calendar: %w", err)
	}
	return calendars, nil
}

func (r *sqlFeedReader) CalendarDates() ([]*model.CalendarDate, error) {
	calendarDates := []*model.CalendarDate{}
	err := r.each(`
SELECT service_id, date, exception_type
FROM calendar_dates WHERE hash = ? ORDER BY date, service_id`, func(rows *sql.Rows) error {
		cd := &model.CalendarDate{}
		if err := rows.Scan(&cd.ServiceID, &cd.Date, &cd.ExceptionType); err != nil {
			return err
		}
		calendarDates = append(calendarDates, cd)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading calendar_dates: %w", err)
	}
	return calendarDates, nil
}

// Writes the small tables row by row. Trips and stop_times are left
// to the backends, which batch them.
type sqlFeedWriter struct {
	db   *sql.DB
	bind func(string) string
	hash string
}

func (w *sqlFeedWriter) WriteAgency(a *model.Agency) error {
	_, err := w.db.Exec(w.bind(`
INSERT INTO agency (hash, id, name, url, timezone)
VALUES (?, ?, ?, ?, ?)`),
		w.hash,
		a.ID,
		a.Name,
		a.URL,
		a.Timezone,
	)
	if err != nil {
		return fmt.Errorf("inserting agency: %w", err)
	}
	return nil
}

func (w *sqlFeedWriter) WriteStop(stop *model.Stop) error {
	_, err := w.db.Exec(w.bind(`
INSERT INTO stops (hash, id, code, name, description, lat, lon, url, location_type, parent_station, platform_code)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		w.hash,
		stop.ID,
		stop.Code,
		stop.Name,
		stop.Desc,
		stop.Lat,
		stop.Lon,
		stop.URL,
		stop.LocationType,
		stop.ParentStation,
		stop.PlatformCode,
	)
	if err != nil {
		return fmt.Errorf("inserting stop: %w", err)
	}
	return nil
}

func (w *sqlFeedWriter) WriteRoute(route *model.Route) error {
	_, err := w.db.Exec(w.bind(`
INSERT INTO routes (hash, id, agency_id, short_name, long_name, description, type, url, color, text_color)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		w.hash,
		route.ID,
		route.AgencyID,
		route.ShortName,
		route.LongName,
		route.Desc,
		route.Type,
		route.URL,
		route.Color,
		route.TextColor,
	)
	if err != nil {
		return fmt.Errorf("inserting route: %w", err)
	}
	return nil
}

func (w *sqlFeedWriter) WriteCalendar(cal *model.Calendar) error {
	_, err := w.db.Exec(w.bind(`
INSERT INTO calendar (hash, service_id, start_date, end_date, weekday)
VALUES (?, ?, ?, ?, ?)`),
		w.hash,
		cal.ServiceID,
		cal.StartDate,
		cal.EndDate,
		cal.Weekday,
	)
	if err != nil {
		return fmt.Errorf("inserting calendar: %w", err)
	}
	return nil
}

func (w *sqlFeedWriter) WriteCalendarDate(cd *model.CalendarDate) error {
	_, err := w.db.Exec(w.bind(`
INSERT INTO calendar_dates (hash, service_id, date, exception_type)
VALUES (?, ?, ?, ?)`),
		w.hash,
		cd.ServiceID,
		cd.Date,
		cd.ExceptionType,
	)
	if err != nil {
		return fmt.Errorf("inserting calendar date: %w", err)
	}
	return nil
}
