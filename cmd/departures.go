package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"passages.dev/gtfs"
	"passages.dev/gtfs/schedule"
)

var departuresCmd = &cobra.Command{
	Use:   "departures",
	Short: "Lists all departures of a service day, with remaining stops",
	Args:  cobra.NoArgs,
	RunE:  departures,
}

var (
	departuresQuery queryFlags
	departuresJSON  string
)

func init() {
	departuresQuery.register(departuresCmd, true)
	departuresCmd.Flags().StringVarP(&departuresJSON, "json", "j", "", "Write departures as JSON to this file")
	rootCmd.AddCommand(departuresCmd)
}

type departureJSON struct {
	Time           time.Time `json:"time"`
	TripID         string    `json:"trip_id"`
	RouteID        string    `json:"route_id"`
	StopID         string    `json:"stop_id"`
	DirectionID    int8      `json:"direction_id"`
	Headsign       string    `json:"headsign"`
	RemainingStops []string  `json:"remaining_stops"`
}

func toDepartureJSON(s *gtfs.Snapshot, d schedule.TimedDeparture) (departureJSON, error) {
	remaining, err := s.RemainingStops(d.TripID, d.StopSequence)
	if err != nil {
		return departureJSON{}, err
	}

	names := make([]string, 0, len(remaining))
	for _, stop := range remaining {
		names = append(names, stop.Name)
	}

	return departureJSON{
		Time:           d.Time,
		TripID:         d.TripID,
		RouteID:        d.RouteID,
		StopID:         d.StopID,
		DirectionID:    d.DirectionID,
		Headsign:       d.Headsign,
		RemainingStops: names,
	}, nil
}

func departures(cmd *cobra.Command, args []string) error {
	snapshot, closer, err := loadSnapshot(cmd)
	if err != nil {
		return err
	}
	defer closer()

	q, err := departuresQuery.build(snapshot, time.Now())
	if err != nil {
		return err
	}

	result, err := snapshot.Departures(q)
	if err != nil {
		return err
	}

	out := make([]departureJSON, 0, len(result.Departures))
	for _, d := range result.Departures {
		dj, err := toDepartureJSON(snapshot, d)
		if err != nil {
			return err
		}
		out = append(out, dj)
	}

	loc := snapshot.Location()
	for _, d := range out {
		fmt.Printf(
			"%s %-4s %-2s %s: %s\n",
			clock(d.Time, loc),
			routeName(snapshot, d.RouteID),
			directionLabel(d.DirectionID),
			d.Headsign,
			strings.Join(d.RemainingStops, ", "),
		)
	}
	if len(result.ParseErrors) > 0 {
		fmt.Fprintf(os.Stderr, "%d rows skipped: %s\n", len(result.ParseErrors), result.ParseErrors.Error())
	}

	if departuresJSON != "" {
		buf, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("marshalling: %w", err)
		}
		err = os.WriteFile(departuresJSON, buf, 0644)
		if err != nil {
			return fmt.Errorf("writing %s: %w", departuresJSON, err)
		}
	}

	return nil
}
