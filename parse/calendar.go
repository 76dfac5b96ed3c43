package parse

import (
	"fmt"
	"io"
	"time"

	"github.com/gocarina/gocsv"

	"passages.dev/gtfs/model"
	"passages.dev/gtfs/storage"
)

type CalendarCSV struct {
	ServiceID string `csv:"service_id"`
	StartDate string `csv:"start_date"`
	EndDate   string `csv:"end_date"`
	Monday    int8   `csv:"monday"`
	Tuesday   int8   `csv:"tuesday"`
	Wednesday int8   `csv:"wednesday"`
	Thursday  int8   `csv:"thursday"`
	Friday    int8   `csv:"friday"`
	Saturday  int8   `csv:"saturday"`
	Sunday    int8   `csv:"sunday"`
}

// Service IDs seen in calendar.txt or calendar_dates.txt, and the
// range of dates they cover. Dates are YYYYMMDD, so they compare as
// strings.
type Services struct {
	IDs   map[string]bool
	Start string
	End   string

	// Rows read from the file.
	Rows int
}

func newServices() *Services {
	return &Services{IDs: map[string]bool{}}
}

func (s *Services) cover(start, end string) {
	if s.Start == "" || start < s.Start {
		s.Start = start
	}
	if s.End == "" || end > s.End {
		s.End = end
	}
}

// Adds the IDs and range of o.
func (s *Services) merge(o *Services) {
	for id := range o.IDs {
		s.IDs[id] = true
	}
	if o.Start != "" {
		s.cover(o.Start, o.End)
	}
}

// Weekday bitmask, bit n set for time.Weekday n.
func (c *CalendarCSV) weekdays() (int8, error) {
	var mask int8
	for day, flag := range map[time.Weekday]int8{
		time.Sunday:    c.Sunday,
		time.Monday:    c.Monday,
		time.Tuesday:   c.Tuesday,
		time.Wednesday: c.Wednesday,
		time.Thursday:  c.Thursday,
		time.Friday:    c.Friday,
		time.Saturday:  c.Saturday,
	} {
		switch flag {
		case 0:
		case 1:
			mask |= 1 << day
		default:
			return 0, fmt.Errorf("invalid %s value '%d'", day, flag)
		}
	}
	return mask, nil
}

func parseDate(field, value string) error {
	_, err := time.ParseInLocation(model.DateFormat, value, time.UTC)
	if err != nil {
		return fmt.Errorf("parsing %s '%s': %w", field, value, err)
	}
	return nil
}

// Writes all calendars. Returns the services they define.
func ParseCalendar(writer storage.FeedWriter, data io.Reader) (*Services, error) {
	rows := []*CalendarCSV{}
	if err := gocsv.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("unmarshaling csv: %w", err)
	}

	services := newServices()
	for _, c := range rows {
		if c.ServiceID == "" {
			return nil, fmt.Errorf("empty service_id")
		}
		if services.IDs[c.ServiceID] {
			return nil, fmt.Errorf("repeated service_id '%s'", c.ServiceID)
		}
		services.IDs[c.ServiceID] = true
		services.Rows++

		weekday, err := c.weekdays()
		if err != nil {
			return nil, fmt.Errorf("service_id '%s': %w", c.ServiceID, err)
		}

		if err := parseDate("start_date", c.StartDate); err != nil {
			return nil, err
		}
		if err := parseDate("end_date", c.EndDate); err != nil {
			return nil, err
		}
		if c.StartDate > c.EndDate {
			return nil, fmt.Errorf("service_id '%s' ends before it starts", c.ServiceID)
		}
		services.cover(c.StartDate, c.EndDate)

		err = writer.WriteCalendar(&model.Calendar{
			ServiceID: c.ServiceID,
			StartDate: c.StartDate,
			EndDate:   c.EndDate,
			Weekday:   weekday,
		})
		if err != nil {
			return nil, fmt.Errorf("writing calendar: %w", err)
		}
	}

	return services, nil
}
