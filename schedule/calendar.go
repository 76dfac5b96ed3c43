package schedule

import (
	"time"

	"passages.dev/gtfs/model"
)

// Returns the set of service IDs active on date.
//
// A calendar row contributes its service when date falls within
// [start_date, end_date] and the row's flag for date's weekday is
// set. Exceptions dated on date are then applied: added inserts the
// service, removed deletes it. Applying either twice is a no-op.
//
// Only the year, month and day of date are used, in date's own
// location. An empty set is a valid result. Any calendar row with
// start_date after end_date yields a *RangeError.
func ActiveServices(
	calendars []*model.Calendar,
	exceptions []*model.CalendarDate,
	date time.Time,
) (map[string]bool, error) {
	for _, c := range calendars {
		if c.StartDate > c.EndDate {
			return nil, &RangeError{
				ServiceID: c.ServiceID,
				StartDate: c.StartDate,
				EndDate:   c.EndDate,
			}
		}
	}

	day := date.Format(model.DateFormat)
	weekday := date.Weekday()

	active := map[string]bool{}
	for _, c := range calendars {
		if c.StartDate > day || c.EndDate < day {
			continue
		}
		if !c.RunsOn(weekday) {
			continue
		}
		active[c.ServiceID] = true
	}

	for _, cd := range exceptions {
		if cd.Date != day {
			continue
		}
		switch cd.ExceptionType {
		case model.ExceptionTypeAdded:
			active[cd.ServiceID] = true
		case model.ExceptionTypeRemoved:
			delete(active, cd.ServiceID)
		}
	}

	return active, nil
}
