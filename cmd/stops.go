package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"passages.dev/gtfs/model"
)

var stopsCmd = &cobra.Command{
	Use:   "stops <name>",
	Short: "Lists stops whose name contains <name>",
	Args:  cobra.MinimumNArgs(1),
	RunE:  stops,
}

func init() {
	rootCmd.AddCommand(stopsCmd)
}

func stops(cmd *cobra.Command, args []string) error {
	snapshot, closer, err := loadSnapshot(cmd)
	if err != nil {
		return err
	}
	defer closer()

	stops, err := snapshot.FindStops(strings.Join(args, " "))
	if err != nil {
		return err
	}

	for _, stop := range stops {
		switch {
		case stop.LocationType == model.LocationTypeStation:
			fmt.Printf("%s: %s (station)\n", stop.ID, stop.Name)
		case stop.ParentStation != "":
			fmt.Printf("%s: %s (in %s)\n", stop.ID, stop.Name, stop.ParentStation)
		default:
			fmt.Printf("%s: %s\n", stop.ID, stop.Name)
		}
	}

	return nil
}
