package storage

import (
	"time"

	"passages.dev/gtfs/model"
)

// Persists parsed static feeds. Each feed is identified by the hash
// of its archive, and may have been retrieved from several URLs.
type Storage interface {
	// Retrieves all feed metadata records matching the given
	// filter, most recently retrieved first.
	ListFeeds(filter ListFeedsFilter) ([]*FeedMetadata, error)

	// Writes a FeedMetadata record. If a record with the same URL
	// and hash exists, it is updated.
	WriteFeedMetadata(metadata *FeedMetadata) error

	// Gets a reader for the feed with the given hash.
	GetReader(feed string) (FeedReader, error)

	// Gets a writer for the feed with the given hash.
	GetWriter(feed string) (FeedWriter, error)

	Close() error
}

type ListFeedsFilter struct {
	// If set, only include feeds with the given URL.
	URL string

	// If set, only include feeds with the given hash.
	Hash string
}

// Metadata for a downloaded static GTFS feed. The parsed data can be
// accessed via FeedReader.
type FeedMetadata struct {
	URL               string
	Hash              string
	RetrievedAt       time.Time
	Timezone          string
	CalendarStartDate string
	CalendarEndDate   string
	MaxDeparture      string

	// Rows parsed per file.
	Counts FeedCounts
}

// Number of records read from each file of a feed.
type FeedCounts struct {
	Agencies      int
	Routes        int
	Stops         int
	Trips         int
	StopTimes     int
	Calendars     int
	CalendarDates int
}

// Counts keyed by GTFS file name.
func (c FeedCounts) ByFile() map[string]int {
	return map[string]int{
		"agency.txt":         c.Agencies,
		"routes.txt":         c.Routes,
		"stops.txt":          c.Stops,
		"trips.txt":          c.Trips,
		"stop_times.txt":     c.StopTimes,
		"calendar.txt":       c.Calendars,
		"calendar_dates.txt": c.CalendarDates,
	}
}

// Writes GTFS records for a single feed.
//
// As stop_times.txt tends to be very large, BeginStopTimes() and
// EndStopTimes() are called before and after all calls to
// WriteStopTime(), allowing transactions/batching/whathaveyou.
type FeedWriter interface {
	WriteAgency(agency *model.Agency) error
	WriteStop(stop *model.Stop) error
	WriteRoute(route *model.Route) error
	WriteTrip(trip *model.Trip) error
	BeginTrips() error
	EndTrips() error
	WriteCalendar(cal *model.Calendar) error
	WriteCalendarDate(caldate *model.CalendarDate) error
	WriteStopTime(stopTime *model.StopTime) error
	BeginStopTimes() error
	EndStopTimes() error
	Close() error
}

// Reads back all records of a single feed. Records are returned in a
// stable order.
type FeedReader interface {
	Agencies() ([]*model.Agency, error)
	Stops() ([]*model.Stop, error)
	Routes() ([]*model.Route, error)
	Trips() ([]*model.Trip, error)
	StopTimes() ([]*model.StopTime, error)
	Calendars() ([]*model.Calendar, error)
	CalendarDates() ([]*model.CalendarDate, error)
}
