package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"passages.dev/gtfs/model"
)

func timed(t *testing.T, date time.Time, tripID string, direction int8, headsign string, raw string) TimedDeparture {
	row := DepartureRow{
		TripID:       tripID,
		StopID:       "s",
		DepartureRaw: raw,
		DirectionID:  direction,
		Headsign:     headsign,
	}
	when, err := NormalizeTime(raw, date, time.UTC)
	require.NoError(t, err)
	return TimedDeparture{DepartureRow: row, Time: when}
}

func tripIDsOf(rows []TimedDeparture) []string {
	ids := []string{}
	for _, r := range rows {
		ids = append(ids, r.TripID)
	}
	return ids
}

func TestFirstLast(t *testing.T) {
	day := time.Date(2025, 7, 8, 0, 0, 0, 0, time.UTC)

	rows := []TimedDeparture{
		timed(t, day, "a", 0, "Paris", "05:12:00"),
		timed(t, day, "b", 0, "Paris", "24:30:00"),
		timed(t, day, "c", 0, "Paris", "12:00:00"),
		timed(t, day, "d", 1, "Boissy", "05:30:00"),
	}

	spans := FirstLast(rows)
	require.Len(t, spans, 2)

	assert.True(t, time.Date(2025, 7, 8, 5, 12, 0, 0, time.UTC).Equal(spans[0].First))
	assert.True(t, time.Date(2025, 7, 9, 0, 30, 0, 0, time.UTC).Equal(spans[0].Last))
	assert.True(t, spans[1].First.Equal(spans[1].Last))

	// No departures, no entries.
	assert.Empty(t, FirstLast(nil))

	byHeadsign := FirstLastByHeadsign(rows)
	assert.Len(t, byHeadsign, 2)
	assert.True(t, spans[0].Last.Equal(byHeadsign["Paris"].Last))
}

func TestOrderedCrossMidnight(t *testing.T) {
	day := time.Date(2025, 7, 8, 0, 0, 0, 0, time.UTC)

	// As strings, "24:12:00" < "9:00:00". As instants it's the
	// other way around.
	rows := []TimedDeparture{
		timed(t, day, "late", 0, "", "24:12:00"),
		timed(t, day, "early", 0, "", "23:58:00"),
		timed(t, day, "morning", 0, "", "9:00:00"),
	}

	ordered := Ordered(rows)
	assert.Equal(t, []string{"morning", "early", "late"}, tripIDsOf(ordered))
	assert.True(t, ordered[1].Time.Before(ordered[2].Time))
	assert.Equal(t, 9, ordered[2].Time.Day())

	// Input is untouched.
	assert.Equal(t, "late", rows[0].TripID)
}

func TestOrderedTieBreakAndIdempotence(t *testing.T) {
	day := time.Date(2025, 7, 8, 0, 0, 0, 0, time.UTC)

	rows := []TimedDeparture{
		timed(t, day, "z", 0, "", "08:00:00"),
		timed(t, day, "b", 1, "", "08:00:00"),
		timed(t, day, "a", 0, "", "08:00:00"),
		timed(t, day, "c", 0, "", "07:00:00"),
	}

	once := Ordered(rows)
	assert.Equal(t, []string{"c", "a", "b", "z"}, tripIDsOf(once))

	twice := Ordered(once)
	assert.Equal(t, once, twice)

	for i := 1; i < len(once); i++ {
		assert.False(t, once[i].Time.Before(once[i-1].Time))
	}
}

func TestNextN(t *testing.T) {
	day := time.Date(2025, 7, 8, 0, 0, 0, 0, time.UTC)

	rows := []TimedDeparture{
		timed(t, day, "p1", 0, "Paris", "07:00:00"),
		timed(t, day, "p2", 0, "Paris", "08:00:00"),
		timed(t, day, "p3", 0, "Paris", "08:10:00"),
		timed(t, day, "p4", 0, "Paris", "08:20:00"),
		timed(t, day, "b1", 1, "Boissy", "08:05:00"),
		timed(t, day, "b2", 1, "Boissy", "08:25:00"),
		timed(t, day, "x1", model.DirectionNone, "Torcy", "08:01:00"),
		timed(t, day, "x2", model.DirectionNone, "Torcy", "08:02:00"),
		timed(t, day, "y1", model.DirectionNone, "Chessy", "08:03:00"),
	}

	now := time.Date(2025, 7, 8, 8, 0, 0, 0, time.UTC)

	// Departures at exactly now are included. Missing direction
	// falls back to headsign.
	next := NextN(rows, now, 1)
	assert.Equal(t, []string{"p2", "x1", "y1", "b1"}, tripIDsOf(next))

	next = NextN(rows, now, 2)
	assert.Equal(t, []string{"p2", "x1", "x2", "y1", "b1", "p3", "b2"}, tripIDsOf(next))

	next = NextN(rows, now, -1)
	assert.Len(t, next, 8)

	assert.Empty(t, NextN(rows, now, 0))
	assert.Empty(t, NextN(rows, now.Add(24*time.Hour), 4))
}

func TestGroupByDirection(t *testing.T) {
	day := time.Date(2025, 7, 8, 0, 0, 0, 0, time.UTC)

	rows := Ordered([]TimedDeparture{
		timed(t, day, "p2", 0, "Paris", "08:00:00"),
		timed(t, day, "p1", 0, "Paris", "07:00:00"),
		timed(t, day, "b1", 1, "Boissy", "08:05:00"),
	})

	groups := GroupByDirection(rows)
	require.Len(t, groups, 2)
	assert.Equal(t, []string{"p1", "p2"}, tripIDsOf(groups[DirectionKey{DirectionID: 0}]))
	assert.Equal(t, []string{"b1"}, tripIDsOf(groups[DirectionKey{DirectionID: 1}]))
}
