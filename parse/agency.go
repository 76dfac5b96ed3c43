package parse

import (
	"fmt"
	"io"
	"time"

	"github.com/gocarina/gocsv"

	"passages.dev/gtfs/model"
	"passages.dev/gtfs/storage"
)

type AgencyCSV struct {
	ID       string `csv:"agency_id"`
	Name     string `csv:"agency_name"`
	URL      string `csv:"agency_url"`
	Timezone string `csv:"agency_timezone"`
}

// Agencies of a feed and the timezone they share.
type AgencySet struct {
	IDs      map[string]bool
	Timezone string
}

func (a *AgencyCSV) validate() error {
	if a.Name == "" {
		return fmt.Errorf("agency '%s': missing agency_name", a.ID)
	}
	if a.URL == "" {
		return fmt.Errorf("agency '%s': missing agency_url", a.ID)
	}
	return nil
}

// All agencies must agree on agency_timezone, and it must be a
// loadable IANA zone.
func feedTimezone(agencies []*AgencyCSV) (string, error) {
	tz := agencies[0].Timezone
	for _, a := range agencies[1:] {
		if a.Timezone != tz {
			return "", fmt.Errorf("multiple agency_timezone: '%s' and '%s'", tz, a.Timezone)
		}
	}
	if tz == "" {
		return "", fmt.Errorf("missing agency_timezone")
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return "", fmt.Errorf("agency_timezone '%s' is invalid: %w", tz, err)
	}
	return tz, nil
}

func ParseAgency(writer storage.FeedWriter, data io.Reader) (*AgencySet, error) {
	rows := []*AgencyCSV{}
	if err := gocsv.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("unmarshaling agency csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no agency record found")
	}

	tz, err := feedTimezone(rows)
	if err != nil {
		return nil, err
	}

	set := &AgencySet{IDs: map[string]bool{}, Timezone: tz}
	for _, a := range rows {
		if set.IDs[a.ID] {
			return nil, fmt.Errorf("duplicated agency_id: '%s'", a.ID)
		}
		set.IDs[a.ID] = true

		if err := a.validate(); err != nil {
			return nil, err
		}

		err := writer.WriteAgency(&model.Agency{
			ID:       a.ID,
			Name:     a.Name,
			URL:      a.URL,
			Timezone: tz,
		})
		if err != nil {
			return nil, fmt.Errorf("writing agency: %w", err)
		}
	}

	return set, nil
}
