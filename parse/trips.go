package parse

import (
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"

	"passages.dev/gtfs/model"
	"passages.dev/gtfs/storage"
)

type TripCSV struct {
	ID          string `csv:"trip_id"`
	RouteID     string `csv:"route_id"`
	ServiceID   string `csv:"service_id"`
	Headsign    string `csv:"trip_headsign"`
	ShortName   string `csv:"trip_short_name"`
	DirectionID string `csv:"direction_id"`
	// BlockID              string `csv:"block_id"`
	// ShapeID              string `csv:"shape_id"`
	// WheelchairAccessible int8   `csv:"wheelchair_accessible"`
	// BikesAllowed         int8   `csv:"bikes_allowed"`
}

// direction_id is optional. An empty value maps to
// model.DirectionNone.
func parseDirectionID(s string) (int8, error) {
	switch strings.TrimSpace(s) {
	case "":
		return model.DirectionNone, nil
	case "0":
		return 0, nil
	case "1":
		return 1, nil
	}
	return 0, fmt.Errorf("invalid direction_id '%s'", s)
}

func ParseTrips(
	writer storage.FeedWriter,
	data io.Reader,
	routes map[string]bool,
	services map[string]bool,
) (map[string]bool, error) {
	tripCsv := []*TripCSV{}
	if err := gocsv.Unmarshal(data, &tripCsv); err != nil {
		return nil, fmt.Errorf("unmarshaling trips csv: %w", err)
	}

	trips := map[string]bool{}
	for _, t := range tripCsv {
		if trips[t.ID] {
			return nil, fmt.Errorf("repeated trip_id '%s'", t.ID)
		}
		trips[t.ID] = true

		if t.ID == "" {
			return nil, fmt.Errorf("empty trip_id")
		}
		if t.RouteID == "" {
			return nil, fmt.Errorf("empty route_id")
		}

		if !routes[t.RouteID] {
			return nil, fmt.Errorf("unknown route_id '%s'", t.RouteID)
		}
		if !services[t.ServiceID] {
			return nil, fmt.Errorf("unknown service_id '%s'", t.ServiceID)
		}

		directionID, err := parseDirectionID(t.DirectionID)
		if err != nil {
			return nil, fmt.Errorf("trip_id '%s': %w", t.ID, err)
		}

		err = writer.WriteTrip(&model.Trip{
			ID:          t.ID,
			RouteID:     t.RouteID,
			ServiceID:   t.ServiceID,
			Headsign:    t.Headsign,
			ShortName:   t.ShortName,
			DirectionID: directionID,
		})
		if err != nil {
			return nil, fmt.Errorf("writing trip: %w", err)
		}
	}

	return trips, nil
}
