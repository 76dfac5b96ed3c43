package schedule

import (
	"fmt"
	"strings"
)

// NotFoundError is returned when a stop name or id resolves to no
// stops in the feed.
type NotFoundError struct {
	Kind  string
	Query string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: '%s'", e.Kind, e.Query)
}

// ParseError reports a departure_time that isn't on H:MM:SS form.
//
// TripID and StopSequence are set when the error refers to a
// specific stop_times row.
type ParseError struct {
	Value        string
	Reason       string
	TripID       string
	StopSequence uint32
}

func (e *ParseError) Error() string {
	if e.TripID != "" {
		return fmt.Sprintf("trip '%s' seq %d: invalid time '%s': %s", e.TripID, e.StopSequence, e.Value, e.Reason)
	}
	return fmt.Sprintf("invalid time '%s': %s", e.Value, e.Reason)
}

// RangeError is returned for calendar rows with start_date after
// end_date. This means the feed is corrupt.
type RangeError struct {
	ServiceID string
	StartDate string
	EndDate   string
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("service '%s': start_date %s is after end_date %s", e.ServiceID, e.StartDate, e.EndDate)
}

// ParseErrors collects per-row ParseErrors. A nil or empty
// ParseErrors is not an error.
type ParseErrors []*ParseError

func (pe ParseErrors) Error() string {
	msgs := make([]string, 0, len(pe))
	for _, e := range pe {
		msgs = append(msgs, e.Error())
	}
	return fmt.Sprintf("%d malformed departure times: %s", len(pe), strings.Join(msgs, "; "))
}
