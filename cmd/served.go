package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"passages.dev/gtfs"
)

var servedCmd = &cobra.Command{
	Use:   "served",
	Short: "Lists stops reachable on the selected routes from a stop",
	Args:  cobra.NoArgs,
	RunE:  served,
}

var (
	servedQuery queryFlags
	servedJSON  bool
)

func init() {
	servedQuery.register(servedCmd, false)
	servedCmd.Flags().BoolVarP(&servedJSON, "json", "j", false, "Print JSON")
	rootCmd.AddCommand(servedCmd)
}

type stopJSON struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func servedStops(snapshot *gtfs.Snapshot, q gtfs.Query) ([]stopJSON, error) {
	stops, err := snapshot.ServedStops(q)
	if err != nil {
		return nil, err
	}
	out := make([]stopJSON, 0, len(stops))
	for _, stop := range stops {
		out = append(out, stopJSON{ID: stop.ID, Name: stop.Name})
	}
	return out, nil
}

func served(cmd *cobra.Command, args []string) error {
	snapshot, closer, err := loadSnapshot(cmd)
	if err != nil {
		return err
	}
	defer closer()

	q, err := servedQuery.build(snapshot, time.Now())
	if err != nil {
		return err
	}

	stops, err := servedStops(snapshot, q)
	if err != nil {
		return err
	}
	if servedJSON {
		return printJSON(stops)
	}
	for _, stop := range stops {
		fmt.Printf("%s: %s\n", stop.ID, stop.Name)
	}
	return nil
}
