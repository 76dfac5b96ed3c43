package schedule

import (
	"strings"

	"passages.dev/gtfs/model"
)

// Selects routes. A route matches if its ID is one of RouteIDs, if
// its short name equals ShortName (ignoring case), or if Pattern is
// a case-insensitive substring of its short or long name. Blank
// fields are ignored. An all blank selector matches nothing.
type RouteSelector struct {
	RouteIDs  []string
	ShortName string
	Pattern   string
}

func (sel RouteSelector) IsZero() bool {
	return len(sel.RouteIDs) == 0 && sel.ShortName == "" && sel.Pattern == ""
}

func (sel RouteSelector) String() string {
	parts := []string{}
	if len(sel.RouteIDs) > 0 {
		parts = append(parts, "id="+strings.Join(sel.RouteIDs, ","))
	}
	if sel.ShortName != "" {
		parts = append(parts, "short_name="+sel.ShortName)
	}
	if sel.Pattern != "" {
		parts = append(parts, "pattern="+sel.Pattern)
	}
	return strings.Join(parts, " ")
}

// Resolves a selector into a set of route IDs. Route IDs given
// explicitly are included even when absent from routes, in which
// case they simply won't match any trip.
func MatchRoutes(routes []*model.Route, sel RouteSelector) map[string]bool {
	matched := map[string]bool{}
	for _, id := range sel.RouteIDs {
		matched[id] = true
	}

	if sel.ShortName == "" && sel.Pattern == "" {
		return matched
	}

	pattern := strings.ToLower(sel.Pattern)
	for _, r := range routes {
		if sel.ShortName != "" && strings.EqualFold(r.ShortName, sel.ShortName) {
			matched[r.ID] = true
			continue
		}
		if pattern != "" {
			if strings.Contains(strings.ToLower(r.ShortName), pattern) ||
				strings.Contains(strings.ToLower(r.LongName), pattern) {
				matched[r.ID] = true
			}
		}
	}

	return matched
}

// Returns IDs of all trips on one of routeIDs running one of the
// active services. Each trip ID appears once, in the order of trips.
func MatchTrips(
	trips []*model.Trip,
	routeIDs map[string]bool,
	activeServices map[string]bool,
) []string {
	matched := []string{}
	seen := map[string]bool{}
	for _, t := range trips {
		if !routeIDs[t.RouteID] || !activeServices[t.ServiceID] {
			continue
		}
		if seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		matched = append(matched, t.ID)
	}
	return matched
}
