package schedule

import (
	"errors"
	"regexp"
	"strconv"
	"time"
)

var gtfsTimeRegex = regexp.MustCompile(`^(\d+):(\d{2}):(\d{2})$`)

// Largest hour accepted in a GTFS time: a year of service days past
// the service day itself.
const maxServiceHours = 24 * 366

// A departure row with its absolute departure time.
type TimedDeparture struct {
	DepartureRow
	Time time.Time
}

// Splits a GTFS H:MM:SS time into day offset and wall clock
// components. Hours may exceed 23, so "25:03:00" is 01:03:00 one day
// after the service day, up to maxServiceHours. Surrounding
// whitespace is rejected; loaders trim fields before storing them.
func ParseTime(raw string) (days, h, m, s int, err error) {
	match := gtfsTimeRegex.FindStringSubmatch(raw)
	if match == nil {
		return 0, 0, 0, 0, &ParseError{Value: raw, Reason: "not on H:MM:SS form"}
	}

	hours, err := strconv.Atoi(match[1])
	if err != nil || hours > maxServiceHours {
		return 0, 0, 0, 0, &ParseError{Value: raw, Reason: "hour out of range"}
	}
	m, _ = strconv.Atoi(match[2])
	s, _ = strconv.Atoi(match[3])

	if m > 59 {
		return 0, 0, 0, 0, &ParseError{Value: raw, Reason: "invalid minute"}
	}
	if s > 59 {
		return 0, 0, 0, 0, &ParseError{Value: raw, Reason: "invalid second"}
	}

	return hours / 24, hours % 24, m, s, nil
}

// Converts a raw GTFS time on the service day date into an absolute
// instant. The result is wall clock h:MM:SS in loc, on date plus
// H/24 days. Wall clock times skipped or repeated by a DST change
// resolve the way time.Date resolves them.
//
// Only the year, month and day of date are used.
func NormalizeTime(raw string, date time.Time, loc *time.Location) (time.Time, error) {
	days, h, m, s, err := ParseTime(raw)
	if err != nil {
		return time.Time{}, err
	}
	if loc == nil {
		loc = time.UTC
	}

	y, mo, d := date.Date()
	return time.Date(y, mo, d+days, h, m, s, 0, loc), nil
}

// Normalizes departure times for a batch of rows. Rows with
// malformed times are left out of the result and reported in the
// returned ParseErrors, one per row. The caller decides whether
// these are fatal.
func NormalizeDepartures(
	rows []DepartureRow,
	date time.Time,
	loc *time.Location,
) ([]TimedDeparture, ParseErrors) {
	timed := make([]TimedDeparture, 0, len(rows))
	var errs ParseErrors

	for _, row := range rows {
		t, err := NormalizeTime(row.DepartureRaw, date, loc)
		if err != nil {
			errs = append(errs, rowError(row, err))
			continue
		}
		timed = append(timed, TimedDeparture{DepartureRow: row, Time: t})
	}

	return timed, errs
}

// Attributes a normalization error to the row it came from.
func rowError(row DepartureRow, err error) *ParseError {
	var pe *ParseError
	if !errors.As(err, &pe) {
		pe = &ParseError{Value: row.DepartureRaw, Reason: err.Error()}
	}
	pe.TripID = row.TripID
	pe.StopSequence = row.StopSequence
	return pe
}
