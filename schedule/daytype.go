package schedule

import "time"

// Kind of service day: weekdays share a timetable, Saturdays and
// Sundays usually have their own.
type DayType int8

const (
	Weekday DayType = iota
	Saturday
	Sunday
)

var DayTypes = []DayType{Weekday, Saturday, Sunday}

func (d DayType) String() string {
	switch d {
	case Weekday:
		return "weekday"
	case Saturday:
		return "saturday"
	case Sunday:
		return "sunday"
	}
	return "unknown"
}

func DayTypeOf(date time.Time) DayType {
	switch date.Weekday() {
	case time.Saturday:
		return Saturday
	case time.Sunday:
		return Sunday
	}
	return Weekday
}

// First date on or after from, at most six days later, of type d.
// Only year, month and day of the result are meaningful.
func NextDayOfType(from time.Time, d DayType) time.Time {
	for offset := 0; ; offset++ {
		date := from.AddDate(0, 0, offset)
		if DayTypeOf(date) == d {
			return date
		}
	}
}
