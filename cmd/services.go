package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"
)

var servicesCmd = &cobra.Command{
	Use:   "services",
	Short: "Lists service IDs active on a date",
	Args:  cobra.NoArgs,
	RunE:  services,
}

var servicesDate string

func init() {
	servicesCmd.Flags().StringVarP(&servicesDate, "date", "d", "", "Service day, YYYY-MM-DD (default today)")
	rootCmd.AddCommand(servicesCmd)
}

func services(cmd *cobra.Command, args []string) error {
	snapshot, closer, err := loadSnapshot(cmd)
	if err != nil {
		return err
	}
	defer closer()

	date := time.Now().In(snapshot.Location())
	if servicesDate != "" {
		date, err = time.ParseInLocation("2006-01-02", servicesDate, snapshot.Location())
		if err != nil {
			return fmt.Errorf("invalid date: %w", err)
		}
	}

	active, err := snapshot.ActiveServices(date)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(active))
	for id := range active {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		fmt.Println(id)
	}

	return nil
}
