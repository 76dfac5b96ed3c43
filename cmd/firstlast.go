package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"passages.dev/gtfs"
	"passages.dev/gtfs/schedule"
)

var firstLastCmd = &cobra.Command{
	Use:   "firstlast",
	Short: "Shows first and last departures of a service day",
	Args:  cobra.NoArgs,
	RunE:  firstLast,
}

var (
	firstLastQuery queryFlags
	firstLastJSON  bool
	firstLastWeek  bool
)

func init() {
	firstLastQuery.register(firstLastCmd, true)
	firstLastCmd.Flags().BoolVarP(&firstLastJSON, "json", "j", false, "Print JSON")
	firstLastCmd.Flags().BoolVarP(&firstLastWeek, "week", "w", false, "Show the next weekday, Saturday and Sunday")
	rootCmd.AddCommand(firstLastCmd)
}

type spanJSON struct {
	DirectionID *int8     `json:"direction_id,omitempty"`
	Headsign    string    `json:"headsign,omitempty"`
	First       time.Time `json:"first"`
	Last        time.Time `json:"last"`
}

type firstLastOutput struct {
	Date        string     `json:"date"`
	Directions  []spanJSON `json:"directions"`
	Headsigns   []spanJSON `json:"headsigns"`
	ParseErrors int        `json:"parse_errors"`
}

func newFirstLastOutput(date time.Time, summary *gtfs.Summary) firstLastOutput {
	out := firstLastOutput{
		Date:        date.Format("2006-01-02"),
		Directions:  []spanJSON{},
		Headsigns:   []spanJSON{},
		ParseErrors: len(summary.ParseErrors),
	}
	for _, d := range sortedDirections(summary.ByDirection) {
		d := d
		span := summary.ByDirection[d]
		out.Directions = append(out.Directions, spanJSON{DirectionID: &d, First: span.First, Last: span.Last})
	}
	for _, h := range sortedHeadsigns(summary.ByHeadsign) {
		span := summary.ByHeadsign[h]
		out.Headsigns = append(out.Headsigns, spanJSON{Headsign: h, First: span.First, Last: span.Last})
	}

	return out
}

type dayTypeOutput struct {
	DayType string `json:"day_type"`
	firstLastOutput
}

func newWeekOutput(week map[schedule.DayType]*gtfs.DaySummary) []dayTypeOutput {
	out := make([]dayTypeOutput, 0, len(week))
	for _, dayType := range schedule.DayTypes {
		day, found := week[dayType]
		if !found {
			continue
		}
		out = append(out, dayTypeOutput{
			DayType:         dayType.String(),
			firstLastOutput: newFirstLastOutput(day.Date, day.Summary),
		})
	}
	return out
}

func printFirstLast(out firstLastOutput, loc *time.Location, indent string) {
	if len(out.Directions) == 0 {
		fmt.Printf("%sNo departures on %s\n", indent, out.Date)
		return
	}
	fmt.Printf("%s%s\n", indent, out.Date)
	for _, d := range out.Directions {
		fmt.Printf("%s  direction %s: first %s, last %s\n", indent, directionLabel(*d.DirectionID), clock(d.First, loc), clock(d.Last, loc))
	}
	for _, h := range out.Headsigns {
		fmt.Printf("%s  to %s: first %s, last %s\n", indent, h.Headsign, clock(h.First, loc), clock(h.Last, loc))
	}
	if out.ParseErrors > 0 {
		fmt.Printf("%s  (%d rows skipped)\n", indent, out.ParseErrors)
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func firstLast(cmd *cobra.Command, args []string) error {
	snapshot, closer, err := loadSnapshot(cmd)
	if err != nil {
		return err
	}
	defer closer()

	q, err := firstLastQuery.build(snapshot, time.Now())
	if err != nil {
		return err
	}

	if firstLastWeek {
		week, err := snapshot.FirstLastByDayType(q)
		if err != nil {
			return err
		}
		out := newWeekOutput(week)
		if firstLastJSON {
			return printJSON(out)
		}
		for _, day := range out {
			fmt.Printf("%s:\n", day.DayType)
			printFirstLast(day.firstLastOutput, snapshot.Location(), "  ")
		}
		return nil
	}

	summary, err := snapshot.FirstLast(q)
	if err != nil {
		return err
	}

	out := newFirstLastOutput(q.Date, summary)
	if firstLastJSON {
		return printJSON(out)
	}
	printFirstLast(out, snapshot.Location(), "")
	if out.ParseErrors > 0 {
		fmt.Printf("  %s\n", summary.ParseErrors.Error())
	}

	return nil
}
