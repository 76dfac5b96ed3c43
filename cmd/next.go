package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Lists the next departures in each direction",
	Args:  cobra.NoArgs,
	RunE:  next,
}

var (
	nextQuery queryFlags
	nextLimit int
)

func init() {
	nextQuery.register(nextCmd, false)
	nextCmd.Flags().IntVarP(&nextLimit, "limit", "n", 4, "Departures per direction")
	rootCmd.AddCommand(nextCmd)
}

func next(cmd *cobra.Command, args []string) error {
	snapshot, closer, err := loadSnapshot(cmd)
	if err != nil {
		return err
	}
	defer closer()

	now := time.Now()
	q, err := nextQuery.build(snapshot, now)
	if err != nil {
		return err
	}

	result, err := snapshot.NextDepartures(q, now, nextLimit)
	if err != nil {
		return err
	}

	loc := snapshot.Location()
	for _, d := range result.Departures {
		fmt.Printf(
			"%s (%d min) %s %s %s\n",
			clock(d.Time, loc),
			int(d.Time.Sub(now).Minutes()),
			routeName(snapshot, d.RouteID),
			directionLabel(d.DirectionID),
			d.Headsign,
		)
	}

	return nil
}
