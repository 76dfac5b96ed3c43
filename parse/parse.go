package parse

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"

	"github.com/gocarina/gocsv"
	"github.com/spkg/bom"

	"passages.dev/gtfs/storage"
)

var requiredFiles = []string{"agency.txt", "routes.txt", "stops.txt", "trips.txt", "stop_times.txt"}

// Files of a GTFS zip archive, keyed by base name. Unknown files are
// ignored. Some agencies nest everything in a subdirectory, so only
// the base name counts.
type archive struct {
	files map[string]*zip.File
	open  []io.Closer
}

func openArchive(buf []byte) (*archive, error) {
	r, err := zip.NewReader(bytes.NewReader(buf), int64(len(buf)))
	if err != nil {
		return nil, fmt.Errorf("unzipping: %w", err)
	}

	a := &archive{files: map[string]*zip.File{}}
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		a.files[path.Base(f.Name)] = f
	}

	if !a.has("calendar.txt") && !a.has("calendar_dates.txt") {
		return nil, fmt.Errorf("missing calendar.txt and calendar_dates.txt")
	}
	for _, name := range requiredFiles {
		if !a.has(name) {
			return nil, fmt.Errorf("missing %s", name)
		}
	}

	return a, nil
}

func (a *archive) has(name string) bool {
	return a.files[name] != nil
}

// Opens name for reading. Closed by Close.
func (a *archive) reader(name string) (io.Reader, error) {
	rc, err := a.files[name].Open()
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", name, err)
	}
	a.open = append(a.open, rc)
	return rc, nil
}

func (a *archive) Close() {
	for _, c := range a.open {
		c.Close()
	}
}

// Runs parse over the named file of the archive, prefixing errors
// with the file name.
func (a *archive) parse(name string, parse func(io.Reader) error) error {
	r, err := a.reader(name)
	if err != nil {
		return err
	}
	if err := parse(r); err != nil {
		return fmt.Errorf("parsing %s: %w", name, err)
	}
	return nil
}

// Parses a GTFS zip archive into writer. Either of calendar.txt and
// calendar_dates.txt may be missing, but not both.
//
// The returned metadata only holds what can be learned from the
// archive itself, including row counts per file. URL, hash and
// retrieval time are left to the caller.
func ParseStatic(writer storage.FeedWriter, buf []byte) (*storage.FeedMetadata, error) {
	a, err := openArchive(buf)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	// LazyCSVReader required (at least) to survive sloppy use of
	// quotes. The BOM reader strips unicode BOMs if present.
	gocsv.SetCSVReader(func(in io.Reader) gocsv.CSVReader {
		return gocsv.LazyCSVReader(bom.NewReader(in))
	})

	metadata := &storage.FeedMetadata{}
	counts := &metadata.Counts

	var agency *AgencySet
	err = a.parse("agency.txt", func(r io.Reader) (err error) {
		agency, err = ParseAgency(writer, r)
		return err
	})
	if err != nil {
		return nil, err
	}
	metadata.Timezone = agency.Timezone
	counts.Agencies = len(agency.IDs)

	var routes map[string]bool
	err = a.parse("routes.txt", func(r io.Reader) (err error) {
		routes, err = ParseRoutes(writer, r, agency.IDs)
		return err
	})
	if err != nil {
		return nil, err
	}
	counts.Routes = len(routes)

	services := newServices()
	if a.has("calendar.txt") {
		err = a.parse("calendar.txt", func(r io.Reader) error {
			calendar, err := ParseCalendar(writer, r)
			if err != nil {
				return err
			}
			services.merge(calendar)
			counts.Calendars = calendar.Rows
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	if a.has("calendar_dates.txt") {
		err = a.parse("calendar_dates.txt", func(r io.Reader) error {
			exceptions, err := ParseCalendarDates(writer, r)
			if err != nil {
				return err
			}
			services.merge(exceptions)
			counts.CalendarDates = exceptions.Rows
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	metadata.CalendarStartDate = services.Start
	metadata.CalendarEndDate = services.End

	err = writer.BeginTrips()
	if err != nil {
		return nil, fmt.Errorf("beginning trips: %w", err)
	}
	var trips map[string]bool
	err = a.parse("trips.txt", func(r io.Reader) (err error) {
		trips, err = ParseTrips(writer, r, routes, services.IDs)
		return err
	})
	if err != nil {
		return nil, err
	}
	err = writer.EndTrips()
	if err != nil {
		return nil, fmt.Errorf("ending trips: %w", err)
	}
	counts.Trips = len(trips)

	var stops map[string]bool
	err = a.parse("stops.txt", func(r io.Reader) (err error) {
		stops, err = ParseStops(writer, r)
		return err
	})
	if err != nil {
		return nil, err
	}
	counts.Stops = len(stops)

	err = writer.BeginStopTimes()
	if err != nil {
		return nil, fmt.Errorf("beginning stop_times: %w", err)
	}
	err = a.parse("stop_times.txt", func(r io.Reader) (err error) {
		metadata.MaxDeparture, counts.StopTimes, err = ParseStopTimes(writer, r, trips, stops)
		return err
	})
	if err != nil {
		return nil, err
	}
	err = writer.EndStopTimes()
	if err != nil {
		return nil, fmt.Errorf("ending stop_times: %w", err)
	}

	err = writer.Close()
	if err != nil {
		return nil, fmt.Errorf("closing feed writer: %w", err)
	}

	return metadata, nil
}
