package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"passages.dev/gtfs"
	"passages.dev/gtfs/model"
	"passages.dev/gtfs/schedule"
)

// Flags selecting routes, stops and date, shared by the query
// commands.
type queryFlags struct {
	date           string
	routeIDs       []string
	route          string
	routePattern   string
	stopIDs        []string
	stopName       string
	expandStations bool
}

func (f *queryFlags) register(cmd *cobra.Command, withDate bool) {
	if withDate {
		cmd.Flags().StringVarP(&f.date, "date", "d", "", "Service day, YYYY-MM-DD (default today)")
	}
	cmd.Flags().StringVarP(&f.route, "route", "r", "", "Route short name")
	cmd.Flags().StringSliceVarP(&f.routeIDs, "route-id", "", []string{}, "Route ID")
	cmd.Flags().StringVarP(&f.routePattern, "route-match", "", "", "Substring of route short or long name")
	cmd.Flags().StringSliceVarP(&f.stopIDs, "stop", "s", []string{}, "Stop or station ID")
	cmd.Flags().StringVarP(&f.stopName, "stop-name", "", "", "Substring of stop name")
	cmd.Flags().BoolVarP(&f.expandStations, "expand-stations", "", false, "Include child stops of stations given with --stop")
}

func (f *queryFlags) build(s *gtfs.Snapshot, now time.Time) (gtfs.Query, error) {
	q := gtfs.Query{
		Route: schedule.RouteSelector{
			RouteIDs:  f.routeIDs,
			ShortName: f.route,
			Pattern:   f.routePattern,
		},
		StopIDs:        append([]string{}, f.stopIDs...),
		ExpandStations: f.expandStations,
	}

	if f.stopName != "" {
		stops, err := s.FindStops(f.stopName)
		if err != nil {
			return q, err
		}
		for _, stop := range stops {
			q.StopIDs = append(q.StopIDs, stop.ID)
		}
	}
	if len(q.StopIDs) == 0 {
		return q, fmt.Errorf("--stop or --stop-name is required")
	}

	q.Date = now.In(s.Location())
	if f.date != "" {
		date, err := time.ParseInLocation("2006-01-02", f.date, s.Location())
		if err != nil {
			return q, fmt.Errorf("invalid date: %w", err)
		}
		q.Date = date
	}

	return q, nil
}

func directionLabel(id int8) string {
	if id == model.DirectionNone {
		return "-"
	}
	return fmt.Sprintf("%d", id)
}

func sortedDirections(spans map[int8]schedule.Span) []int8 {
	dirs := make([]int8, 0, len(spans))
	for d := range spans {
		dirs = append(dirs, d)
	}
	sort.Slice(dirs, func(i, j int) bool { return dirs[i] < dirs[j] })
	return dirs
}

func sortedHeadsigns(spans map[string]schedule.Span) []string {
	headsigns := make([]string, 0, len(spans))
	for h := range spans {
		headsigns = append(headsigns, h)
	}
	sort.Strings(headsigns)
	return headsigns
}

func clock(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("15:04")
}

func routeName(s *gtfs.Snapshot, id string) string {
	route, found := s.Route(id)
	if !found || route.ShortName == "" {
		return id
	}
	return route.ShortName
}
