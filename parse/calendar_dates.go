package parse

import (
	"fmt"
	"io"

	"github.com/gocarina/gocsv"

	"passages.dev/gtfs/model"
	"passages.dev/gtfs/storage"
)

type CalendarDateCSV struct {
	ServiceID     string `csv:"service_id"`
	Date          string `csv:"date"`
	ExceptionType int8   `csv:"exception_type"`
}

// Writes all calendar exceptions. Returns the services they mention,
// which may include services absent from calendar.txt.
func ParseCalendarDates(writer storage.FeedWriter, data io.Reader) (*Services, error) {
	rows := []*CalendarDateCSV{}
	if err := gocsv.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("unmarshaling calendar_dates csv: %w", err)
	}

	type serviceDate struct{ service, date string }
	seen := map[serviceDate]bool{}

	services := newServices()
	for _, cd := range rows {
		exception := model.ExceptionType(cd.ExceptionType)
		if exception != model.ExceptionTypeAdded && exception != model.ExceptionTypeRemoved {
			return nil, fmt.Errorf("illegal exception_type: '%d'", cd.ExceptionType)
		}

		if err := parseDate("date", cd.Date); err != nil {
			return nil, err
		}

		key := serviceDate{cd.ServiceID, cd.Date}
		if seen[key] {
			return nil, fmt.Errorf("duplicate service/date: '%s' on %s", cd.ServiceID, cd.Date)
		}
		seen[key] = true

		services.IDs[cd.ServiceID] = true
		services.Rows++
		services.cover(cd.Date, cd.Date)

		err := writer.WriteCalendarDate(&model.CalendarDate{
			ServiceID:     cd.ServiceID,
			Date:          cd.Date,
			ExceptionType: exception,
		})
		if err != nil {
			return nil, fmt.Errorf("writing calendar date: %w", err)
		}
	}

	return services, nil
}
