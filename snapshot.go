package gtfs

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"passages.dev/gtfs/model"
	"passages.dev/gtfs/schedule"
	"passages.dev/gtfs/storage"
)

// The feed tables a Snapshot is built from.
type Tables struct {
	Agencies      []*model.Agency
	Stops         []*model.Stop
	Routes        []*model.Route
	Trips         []*model.Trip
	StopTimes     []*model.StopTime
	Calendars     []*model.Calendar
	CalendarDates []*model.CalendarDate
}

// Snapshot is an immutable, indexed copy of one version of a feed.
// It is safe for concurrent use, and a refresh never modifies a
// Snapshot already handed out.
type Snapshot struct {
	tables   Tables
	version  string
	location *time.Location

	stopByID        map[string]*model.Stop
	stopsByParent   map[string][]*model.Stop
	routeByID       map[string]*model.Route
	tripByID        map[string]*model.Trip
	stopTimesByTrip map[string][]*model.StopTime
}

// Selects departures for a single service day.
type Query struct {
	// Service day. Only year, month and day are used.
	Date time.Time

	// Routes to include. A zero selector includes all routes.
	Route schedule.RouteSelector

	// Stops to include.
	StopIDs []string

	// Replaces stations in StopIDs with their child stops. Stop
	// times reference platforms, so a station ID alone matches
	// nothing unless this is set.
	ExpandStations bool

	// Overrides the feed timezone when set.
	Location *time.Location
}

type Result struct {
	// Departures ordered by time.
	Departures []schedule.TimedDeparture

	// Rows left out due to malformed departure times.
	ParseErrors schedule.ParseErrors
}

// First and last departure of a service day.
type Summary struct {
	ByDirection map[int8]schedule.Span
	ByHeadsign  map[string]schedule.Span
	ParseErrors schedule.ParseErrors
}

// Summary of the service day Date.
type DaySummary struct {
	Date time.Time
	*Summary
}

// Builds a Snapshot from tables. The tables must not be modified
// afterwards. A nil location means UTC.
func NewSnapshot(tables Tables, version string, location *time.Location) *Snapshot {
	if location == nil {
		location = time.UTC
	}

	s := &Snapshot{
		tables:          tables,
		version:         version,
		location:        location,
		stopByID:        make(map[string]*model.Stop, len(tables.Stops)),
		stopsByParent:   map[string][]*model.Stop{},
		routeByID:       make(map[string]*model.Route, len(tables.Routes)),
		tripByID:        make(map[string]*model.Trip, len(tables.Trips)),
		stopTimesByTrip: make(map[string][]*model.StopTime, len(tables.Trips)),
	}

	for _, stop := range tables.Stops {
		s.stopByID[stop.ID] = stop
		if stop.ParentStation != "" {
			s.stopsByParent[stop.ParentStation] = append(s.stopsByParent[stop.ParentStation], stop)
		}
	}
	for _, route := range tables.Routes {
		s.routeByID[route.ID] = route
	}
	for _, trip := range tables.Trips {
		s.tripByID[trip.ID] = trip
	}
	for _, st := range tables.StopTimes {
		s.stopTimesByTrip[st.TripID] = append(s.stopTimesByTrip[st.TripID], st)
	}
	for _, sts := range s.stopTimesByTrip {
		sort.SliceStable(sts, func(i, j int) bool {
			return sts[i].StopSequence < sts[j].StopSequence
		})
	}

	return s
}

// Reads all tables of a stored feed into a Snapshot. The feed hash
// becomes the snapshot version.
func LoadSnapshot(reader storage.FeedReader, metadata *storage.FeedMetadata) (*Snapshot, error) {
	location, err := time.LoadLocation(metadata.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone: %w", err)
	}

	tables := Tables{}
	if tables.Agencies, err = reader.Agencies(); err != nil {
		return nil, fmt.Errorf("loading agencies: %w", err)
	}
	if tables.Stops, err = reader.Stops(); err != nil {
		return nil, fmt.Errorf("loading stops: %w", err)
	}
	if tables.Routes, err = reader.Routes(); err != nil {
		return nil, fmt.Errorf("loading routes: %w", err)
	}
	if tables.Trips, err = reader.Trips(); err != nil {
		return nil, fmt.Errorf("loading trips: %w", err)
	}
	if tables.StopTimes, err = reader.StopTimes(); err != nil {
		return nil, fmt.Errorf("loading stop times: %w", err)
	}
	if tables.Calendars, err = reader.Calendars(); err != nil {
		return nil, fmt.Errorf("loading calendar: %w", err)
	}
	if tables.CalendarDates, err = reader.CalendarDates(); err != nil {
		return nil, fmt.Errorf("loading calendar dates: %w", err)
	}

	return NewSnapshot(tables, metadata.Hash, location), nil
}

func (s *Snapshot) Version() string {
	return s.version
}

func (s *Snapshot) Location() *time.Location {
	return s.location
}

// Returns a Snapshot sharing the same tables, but resolving times in
// location.
func (s *Snapshot) In(location *time.Location) *Snapshot {
	c := *s
	c.location = location
	return &c
}

func (s *Snapshot) Stop(id string) (*model.Stop, bool) {
	stop, found := s.stopByID[id]
	return stop, found
}

func (s *Snapshot) Route(id string) (*model.Route, bool) {
	route, found := s.routeByID[id]
	return route, found
}

func (s *Snapshot) Trip(id string) (*model.Trip, bool) {
	trip, found := s.tripByID[id]
	return trip, found
}

// Number of trips and stop times.
func (s *Snapshot) Size() (int, int) {
	return len(s.tables.Trips), len(s.tables.StopTimes)
}

// Service IDs active on date.
func (s *Snapshot) ActiveServices(date time.Time) (map[string]bool, error) {
	return schedule.ActiveServices(s.tables.Calendars, s.tables.CalendarDates, date)
}

// Stops whose name contains name, ignoring case. Sorted by name and
// then ID. Returns a *schedule.NotFoundError if there are none.
func (s *Snapshot) FindStops(name string) ([]*model.Stop, error) {
	needle := strings.ToLower(strings.TrimSpace(name))

	stops := []*model.Stop{}
	if needle != "" {
		for _, stop := range s.tables.Stops {
			if strings.Contains(strings.ToLower(stop.Name), needle) {
				stops = append(stops, stop)
			}
		}
	}

	if len(stops) == 0 {
		return nil, &schedule.NotFoundError{Kind: "stop", Query: name}
	}

	sort.SliceStable(stops, func(i, j int) bool {
		if stops[i].Name != stops[j].Name {
			return stops[i].Name < stops[j].Name
		}
		return stops[i].ID < stops[j].ID
	})

	return stops, nil
}

// Checks that all ids exist, and returns them as a set. With
// expandStations, the children of any station are included as
// well. Returns a *schedule.NotFoundError for the first unknown id,
// or if ids is empty.
func (s *Snapshot) ResolveStops(ids []string, expandStations bool) (map[string]bool, error) {
	if len(ids) == 0 {
		return nil, &schedule.NotFoundError{Kind: "stop", Query: ""}
	}

	resolved := map[string]bool{}
	for _, id := range ids {
		stop, found := s.stopByID[id]
		if !found {
			return nil, &schedule.NotFoundError{Kind: "stop", Query: id}
		}
		resolved[id] = true

		if expandStations && stop.LocationType == model.LocationTypeStation {
			for _, child := range s.stopsByParent[id] {
				resolved[child.ID] = true
			}
		}
	}

	return resolved, nil
}

// Routes matched by sel, sorted by ID. Route IDs in sel that aren't
// in the feed are left out.
func (s *Snapshot) FindRoutes(sel schedule.RouteSelector) []*model.Route {
	routes := []*model.Route{}
	for id := range schedule.MatchRoutes(s.tables.Routes, sel) {
		if route, found := s.routeByID[id]; found {
			routes = append(routes, route)
		}
	}
	sort.Slice(routes, func(i, j int) bool {
		return routes[i].ID < routes[j].ID
	})
	return routes
}

func (s *Snapshot) routeIDs(sel schedule.RouteSelector) map[string]bool {
	if !sel.IsZero() {
		return schedule.MatchRoutes(s.tables.Routes, sel)
	}
	all := make(map[string]bool, len(s.tables.Routes))
	for _, r := range s.tables.Routes {
		all[r.ID] = true
	}
	return all
}

func (s *Snapshot) queryLocation(q Query) *time.Location {
	if q.Location != nil {
		return q.Location
	}
	return s.location
}

// All departures of the query's service day, ordered by time.
//
// Zero matches is not an error. Unknown stop IDs are, in the form of
// a *schedule.NotFoundError. Rows with malformed departure times
// are reported in Result.ParseErrors.
func (s *Snapshot) Departures(q Query) (*Result, error) {
	location := s.queryLocation(q)
	y, m, d := q.Date.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, location)

	stopIDs, err := s.ResolveStops(q.StopIDs, q.ExpandStations)
	if err != nil {
		return nil, err
	}

	services, err := s.ActiveServices(day)
	if err != nil {
		return nil, err
	}

	tripIDs := schedule.MatchTrips(s.tables.Trips, s.routeIDs(q.Route), services)

	// Only the stop times of matched trips need to be scanned.
	stopTimes := []*model.StopTime{}
	for _, id := range tripIDs {
		stopTimes = append(stopTimes, s.stopTimesByTrip[id]...)
	}

	rows := schedule.EnumerateDepartures(stopTimes, stopIDs, tripIDs, s.tripByID)
	timed, parseErrs := schedule.NormalizeDepartures(rows, day, location)

	return &Result{
		Departures:  schedule.Ordered(timed),
		ParseErrors: parseErrs,
	}, nil
}

// First and last departures of the query's service day, per
// direction and per headsign.
func (s *Snapshot) FirstLast(q Query) (*Summary, error) {
	result, err := s.Departures(q)
	if err != nil {
		return nil, err
	}

	return &Summary{
		ByDirection: schedule.FirstLast(result.Departures),
		ByHeadsign:  schedule.FirstLastByHeadsign(result.Departures),
		ParseErrors: result.ParseErrors,
	}, nil
}

// First and last departures on the next weekday, Saturday and
// Sunday, counting q.Date itself. Each day is resolved against the
// calendar like any other, so a holiday weekday shows its holiday
// service.
func (s *Snapshot) FirstLastByDayType(q Query) (map[schedule.DayType]*DaySummary, error) {
	week := make(map[schedule.DayType]*DaySummary, len(schedule.DayTypes))
	for _, dayType := range schedule.DayTypes {
		dq := q
		dq.Date = schedule.NextDayOfType(q.Date, dayType)

		summary, err := s.FirstLast(dq)
		if err != nil {
			return nil, err
		}
		week[dayType] = &DaySummary{Date: dq.Date, Summary: summary}
	}
	return week, nil
}

// Stops on trips of the query's routes that call at one of the
// query's stops, on any service day, including the query stops
// themselves. Sorted by name, then ID. q.Date is ignored.
func (s *Snapshot) ServedStops(q Query) ([]*model.Stop, error) {
	stopIDs, err := s.ResolveStops(q.StopIDs, q.ExpandStations)
	if err != nil {
		return nil, err
	}
	routeIDs := s.routeIDs(q.Route)

	served := map[string]bool{}
	for _, trip := range s.tables.Trips {
		if !routeIDs[trip.RouteID] {
			continue
		}
		stopTimes := s.stopTimesByTrip[trip.ID]
		calls := false
		for _, st := range stopTimes {
			if stopIDs[st.StopID] {
				calls = true
				break
			}
		}
		if !calls {
			continue
		}
		for _, st := range stopTimes {
			served[st.StopID] = true
		}
	}

	stops := make([]*model.Stop, 0, len(served))
	for id := range served {
		if stop, found := s.stopByID[id]; found {
			stops = append(stops, stop)
		}
	}
	sort.Slice(stops, func(i, j int) bool {
		if stops[i].Name != stops[j].Name {
			return stops[i].Name < stops[j].Name
		}
		return stops[i].ID < stops[j].ID
	})
	return stops, nil
}

// The next n departures per direction at or after now. q.Date is
// ignored.
//
// Trips of the previous service day may still be running past
// midnight, and a late now may have no departures left today, so
// the service days before and after now's are inspected too.
func (s *Snapshot) NextDepartures(q Query, now time.Time, n int) (*Result, error) {
	location := s.queryLocation(q)
	local := now.In(location)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, location)

	all := []schedule.TimedDeparture{}
	var parseErrs schedule.ParseErrors
	for offset := -1; offset <= 1; offset++ {
		dq := q
		dq.Date = today.AddDate(0, 0, offset)
		dq.Location = location

		result, err := s.Departures(dq)
		if err != nil {
			return nil, err
		}
		all = append(all, result.Departures...)
		parseErrs = append(parseErrs, result.ParseErrors...)
	}

	return &Result{
		Departures:  schedule.NextN(schedule.Ordered(all), now, n),
		ParseErrors: parseErrs,
	}, nil
}

// Stops visited by tripID after fromSequence, in order. Returns a
// *schedule.NotFoundError for unknown trips.
func (s *Snapshot) RemainingStops(tripID string, fromSequence uint32) ([]model.Stop, error) {
	if _, found := s.tripByID[tripID]; !found {
		return nil, &schedule.NotFoundError{Kind: "trip", Query: tripID}
	}
	return schedule.RemainingStops(s.stopTimesByTrip[tripID], fromSequence, s.stopByID), nil
}
