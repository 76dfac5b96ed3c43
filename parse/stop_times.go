package parse

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"

	"passages.dev/gtfs/model"
	"passages.dev/gtfs/storage"
)

type StopTimeCSV struct {
	TripID        string `csv:"trip_id"`
	StopID        string `csv:"stop_id"`
	StopSequence  uint32 `csv:"stop_sequence"`
	ArrivalTime   string `csv:"arrival_time"`
	DepartureTime string `csv:"departure_time"`
	Headsign      string `csv:"stop_headsign"`
}

// Seconds since the start of the service day, or false if s isn't
// H:MM:SS. Only used to track the feed's latest departure; times are
// validated when queried.
func serviceDaySeconds(s string) (int, bool) {
	split := strings.Split(s, ":")
	if len(split) != 3 {
		return 0, false
	}

	hms := [3]int{}
	for i, str := range split {
		j, err := strconv.Atoi(str)
		if err != nil || j < 0 {
			return 0, false
		}
		hms[i] = j
	}

	if hms[1] > 59 || hms[2] > 59 {
		return 0, false
	}

	return hms[0]*3600 + hms[1]*60 + hms[2], true
}

// Writes all stop times, keeping arrival and departure times as
// they appear in the file. Returns the latest well-formed departure
// time and the number of rows written.
func ParseStopTimes(
	writer storage.FeedWriter,
	data io.Reader,
	trips map[string]bool,
	stops map[string]bool,
) (string, int, error) {

	stopSeq := map[string]map[uint32]bool{}

	maxDeparture := ""
	maxSeconds := -1

	i := -1
	err := gocsv.UnmarshalToCallbackWithError(data, func(st *StopTimeCSV) error {
		i += 1
		if !trips[st.TripID] {
			return fmt.Errorf("unknown trip_id: '%s' (row %d)", st.TripID, i+1)
		}
		if st.StopID == "" {
			return fmt.Errorf("missing stop_id (row %d)", i+1)
		}
		if !stops[st.StopID] {
			return fmt.Errorf("unknown stop_id: '%s' (row %d)", st.StopID, i+1)
		}

		if stopSeq[st.TripID] == nil {
			stopSeq[st.TripID] = map[uint32]bool{}
		}
		if stopSeq[st.TripID][st.StopSequence] {
			return fmt.Errorf(
				"duplicate stop_sequence %d for trip_id '%s' (row %d)",
				st.StopSequence, st.TripID, i+1,
			)
		}
		stopSeq[st.TripID][st.StopSequence] = true

		arrival := strings.TrimSpace(st.ArrivalTime)
		departure := strings.TrimSpace(st.DepartureTime)

		if seconds, ok := serviceDaySeconds(departure); ok && seconds > maxSeconds {
			maxSeconds = seconds
			maxDeparture = departure
		}

		err := writer.WriteStopTime(&model.StopTime{
			TripID:       st.TripID,
			StopID:       st.StopID,
			Headsign:     st.Headsign,
			StopSequence: st.StopSequence,
			Arrival:      arrival,
			Departure:    departure,
		})
		if err != nil {
			return errors.Wrapf(err, "writing stop_time (row %d)", i+1)
		}

		return nil
	})

	if err != nil {
		return "", 0, errors.Wrap(err, "unmarshaling stop_times csv")
	}

	return maxDeparture, i + 1, nil
}
