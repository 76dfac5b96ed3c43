package parse

import (
	"fmt"
	"io"

	"github.com/gocarina/gocsv"

	"passages.dev/gtfs/model"
	"passages.dev/gtfs/storage"
)

type StopCSV struct {
	ID            string  `csv:"stop_id"`
	Code          string  `csv:"stop_code"`
	Name          string  `csv:"stop_name"`
	Desc          string  `csv:"stop_desc"`
	Lat           float64 `csv:"stop_lat"`
	Lon           float64 `csv:"stop_lon"`
	URL           string  `csv:"stop_url"`
	LocationType  int8    `csv:"location_type"`
	ParentStation string  `csv:"parent_station"`
	PlatformCode  string  `csv:"platform_code"`
}

func (st *StopCSV) locationType() model.LocationType {
	return model.LocationType(st.LocationType)
}

// Name and coordinates are optional for generic nodes and boarding
// areas only.
func (st *StopCSV) validate() error {
	if st.ID == "" {
		return fmt.Errorf("empty stop_id")
	}

	switch st.locationType() {
	case model.LocationTypeGenericNode, model.LocationTypeBoardingArea:
		return nil
	case model.LocationTypeStation:
		if st.ParentStation != "" {
			return fmt.Errorf("station '%s' has parent_station '%s'", st.ID, st.ParentStation)
		}
	}

	if st.Name == "" {
		return fmt.Errorf("empty stop_name for stop_id '%s'", st.ID)
	}
	if st.Lat == 0 || st.Lon == 0 {
		return fmt.Errorf("empty stop_lat or stop_lon for stop_id '%s'", st.ID)
	}
	return nil
}

func (st *StopCSV) model() *model.Stop {
	return &model.Stop{
		ID:            st.ID,
		Code:          st.Code,
		Name:          st.Name,
		Desc:          st.Desc,
		Lat:           st.Lat,
		Lon:           st.Lon,
		URL:           st.URL,
		LocationType:  st.locationType(),
		ParentStation: st.ParentStation,
		PlatformCode:  st.PlatformCode,
	}
}

// Writes all stops. Returns the set of stop IDs.
//
// parent_station must name a stop in the same file. Stops, entrances
// and generic nodes can only have a station as parent, since station
// expansion at query time follows these links. Boarding areas may
// also hang off a platform.
func ParseStops(writer storage.FeedWriter, data io.Reader) (map[string]bool, error) {
	rows := []*StopCSV{}
	if err := gocsv.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("unmarshaling stops csv: %w", err)
	}

	types := make(map[string]model.LocationType, len(rows))
	for _, st := range rows {
		if _, seen := types[st.ID]; seen {
			return nil, fmt.Errorf("repeated stop_id '%s'", st.ID)
		}
		if err := st.validate(); err != nil {
			return nil, err
		}
		types[st.ID] = st.locationType()

		err := writer.WriteStop(st.model())
		if err != nil {
			return nil, fmt.Errorf("writing stop '%s': %w", st.ID, err)
		}
	}

	for _, st := range rows {
		if st.ParentStation == "" {
			continue
		}
		parentType, found := types[st.ParentStation]
		if !found {
			return nil, fmt.Errorf("stop '%s' references unknown parent_station '%s'", st.ID, st.ParentStation)
		}
		if parentType == model.LocationTypeStation {
			continue
		}
		if st.locationType() == model.LocationTypeBoardingArea && parentType == model.LocationTypeStop {
			continue
		}
		return nil, fmt.Errorf("stop '%s' has parent_station '%s' which is not a station", st.ID, st.ParentStation)
	}

	stopIDs := make(map[string]bool, len(types))
	for id := range types {
		stopIDs[id] = true
	}
	return stopIDs, nil
}
