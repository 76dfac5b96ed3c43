package schedule

import (
	"sort"
	"time"
)

// Earliest and latest departure of a group.
type Span struct {
	First time.Time
	Last  time.Time
}

func (s *Span) add(t time.Time) {
	if s.First.IsZero() || t.Before(s.First) {
		s.First = t
	}
	if s.Last.IsZero() || t.After(s.Last) {
		s.Last = t
	}
}

// First and last departure per direction_id. Directions without
// departures are absent from the map. Trips lacking direction_id are
// grouped under model.DirectionNone.
func FirstLast(rows []TimedDeparture) map[int8]Span {
	spans := map[int8]Span{}
	for _, r := range rows {
		span := spans[r.DirectionID]
		span.add(r.Time)
		spans[r.DirectionID] = span
	}
	return spans
}

// First and last departure per headsign.
func FirstLastByHeadsign(rows []TimedDeparture) map[string]Span {
	spans := map[string]Span{}
	for _, r := range rows {
		span := spans[r.Headsign]
		span.add(r.Time)
		spans[r.Headsign] = span
	}
	return spans
}

// Returns a sorted copy of rows: ascending by time, ties broken by
// trip ID, stop ID and stop sequence.
func Ordered(rows []TimedDeparture) []TimedDeparture {
	sorted := make([]TimedDeparture, len(rows))
	copy(sorted, rows)

	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.Time.Equal(b.Time) {
			return a.Time.Before(b.Time)
		}
		if a.TripID != b.TripID {
			return a.TripID < b.TripID
		}
		if a.StopID != b.StopID {
			return a.StopID < b.StopID
		}
		return a.StopSequence < b.StopSequence
	})

	return sorted
}

// Returns departures at or after now in ascending order, keeping at
// most n per direction. Pass n < 0 for no limit.
func NextN(rows []TimedDeparture, now time.Time, n int) []TimedDeparture {
	next := []TimedDeparture{}
	if n == 0 {
		return next
	}

	count := map[DirectionKey]int{}
	for _, r := range Ordered(rows) {
		if r.Time.Before(now) {
			continue
		}
		key := r.Direction()
		if n > 0 && count[key] >= n {
			continue
		}
		count[key]++
		next = append(next, r)
	}

	return next
}

// Splits departures by direction, preserving order within each
// group.
func GroupByDirection(rows []TimedDeparture) map[DirectionKey][]TimedDeparture {
	groups := map[DirectionKey][]TimedDeparture{}
	for _, r := range rows {
		key := r.Direction()
		groups[key] = append(groups[key], r)
	}
	return groups
}
