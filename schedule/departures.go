package schedule

import (
	"passages.dev/gtfs/model"
)

// A stop_times row at one of the target stops, joined with its trip.
type DepartureRow struct {
	TripID       string
	RouteID      string
	StopID       string
	StopSequence uint32
	DepartureRaw string
	DirectionID  int8
	Headsign     string
}

// Groups departures heading the same way. Headsign is only used when
// the trip has no direction_id.
type DirectionKey struct {
	DirectionID int8
	Headsign    string
}

func (r DepartureRow) Direction() DirectionKey {
	if r.DirectionID == model.DirectionNone {
		return DirectionKey{DirectionID: model.DirectionNone, Headsign: r.Headsign}
	}
	return DirectionKey{DirectionID: r.DirectionID}
}

// Selects all stop times at one of stopIDs belonging to one of
// tripIDs, joined with trips for direction and headsign. A
// stop_headsign on the stop time overrides the trip's headsign.
//
// Rows come out in the order of stopTimes. Duplicate (trip, stop)
// pairs are kept as is.
func EnumerateDepartures(
	stopTimes []*model.StopTime,
	stopIDs map[string]bool,
	tripIDs []string,
	trips map[string]*model.Trip,
) []DepartureRow {
	wanted := make(map[string]*model.Trip, len(tripIDs))
	for _, id := range tripIDs {
		if t, found := trips[id]; found {
			wanted[id] = t
		}
	}

	rows := []DepartureRow{}
	for _, st := range stopTimes {
		if !stopIDs[st.StopID] {
			continue
		}
		trip, found := wanted[st.TripID]
		if !found {
			continue
		}

		headsign := st.Headsign
		if headsign == "" {
			headsign = trip.Headsign
		}

		rows = append(rows, DepartureRow{
			TripID:       st.TripID,
			RouteID:      trip.RouteID,
			StopID:       st.StopID,
			StopSequence: st.StopSequence,
			DepartureRaw: st.Departure,
			DirectionID:  trip.DirectionID,
			Headsign:     headsign,
		})
	}

	return rows
}
