package schedule

import (
	"sort"

	"passages.dev/gtfs/model"
)

// Returns the stops a trip serves after fromSequence, in
// stop_sequence order. stopTimes must all belong to the same trip.
//
// Stops missing from the stops table are returned with their ID as
// name. Departing from the last stop yields an empty list.
func RemainingStops(
	stopTimes []*model.StopTime,
	fromSequence uint32,
	stops map[string]*model.Stop,
) []model.Stop {
	after := []*model.StopTime{}
	for _, st := range stopTimes {
		if st.StopSequence > fromSequence {
			after = append(after, st)
		}
	}

	sort.Slice(after, func(i, j int) bool {
		return after[i].StopSequence < after[j].StopSequence
	})

	remaining := make([]model.Stop, 0, len(after))
	for _, st := range after {
		if stop, found := stops[st.StopID]; found {
			remaining = append(remaining, *stop)
		} else {
			remaining = append(remaining, model.Stop{ID: st.StopID, Name: st.StopID})
		}
	}

	return remaining
}
