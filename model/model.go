package model

import (
	"time"
)

// Holds all external facing types and constants.

type LocationType int

const (
	LocationTypeStop LocationType = iota
	LocationTypeStation
	LocationTypeEntranceExit
	LocationTypeGenericNode
	LocationTypeBoardingArea
)

type RouteType int

const (
	RouteTypeTram       RouteType = 0
	RouteTypeSubway     RouteType = 1
	RouteTypeRail       RouteType = 2
	RouteTypeBus        RouteType = 3
	RouteTypeFerry      RouteType = 4
	RouteTypeCable      RouteType = 5
	RouteTypeAerial     RouteType = 6
	RouteTypeFunicular  RouteType = 7
	RouteTypeTrolleybus RouteType = 11
	RouteTypeMonorail   RouteType = 12
)

type ExceptionType int8

const (
	ExceptionTypeAdded   ExceptionType = 1
	ExceptionTypeRemoved ExceptionType = 2
)

func (e ExceptionType) String() string {
	switch e {
	case ExceptionTypeAdded:
		return "added"
	case ExceptionTypeRemoved:
		return "removed"
	}
	return "unknown"
}

// DirectionNone marks a trip without direction_id.
const DirectionNone int8 = -1

// DateFormat is the GTFS YYYYMMDD date layout. Dates in this format
// sort lexicographically.
const DateFormat = "20060102"

type Agency struct {
	ID       string
	Name     string
	URL      string
	Timezone string
}

// Weekly service pattern. Weekday is a bitmask with bit
// (1 << time.Weekday) set for each day the service runs.
type Calendar struct {
	ServiceID string
	StartDate string
	EndDate   string
	Weekday   int8
}

func (c *Calendar) RunsOn(day time.Weekday) bool {
	return c.Weekday&(1<<day) != 0
}

type CalendarDate struct {
	ServiceID     string
	Date          string
	ExceptionType ExceptionType
}

type Stop struct {
	ID            string
	Code          string
	Name          string
	Desc          string
	Lat           float64
	Lon           float64
	URL           string
	LocationType  LocationType
	ParentStation string
	PlatformCode  string
}

type Trip struct {
	ID          string
	RouteID     string
	ServiceID   string
	Headsign    string
	ShortName   string
	DirectionID int8
}

type Route struct {
	ID        string
	AgencyID  string
	ShortName string
	LongName  string
	Desc      string
	Type      RouteType
	URL       string
	Color     string
	TextColor string
}

// Arrival and Departure hold the raw H:MM:SS strings from
// stop_times.txt. Hours may exceed 23.
type StopTime struct {
	TripID       string
	StopID       string
	Headsign     string
	StopSequence uint32
	Arrival      string
	Departure    string
}
