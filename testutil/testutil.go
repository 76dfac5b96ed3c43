package testutil

// Helpers and configuration for tests.

import (
	"archive/zip"
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"passages.dev/gtfs"
	"passages.dev/gtfs/parse"
	"passages.dev/gtfs/storage"
)

// Storage backends available to tests. Postgres is included when
// GTFS_TEST_POSTGRES holds a connection string.
func Backends() []string {
	backends := []string{"memory", "sqlite"}
	if os.Getenv("GTFS_TEST_POSTGRES") != "" {
		backends = append(backends, "postgres")
	}
	return backends
}

func BuildStorage(t testing.TB, backend string) storage.Storage {
	var s storage.Storage
	var err error
	switch backend {
	case "memory":
		s = storage.NewMemoryStorage()
	case "sqlite":
		s, err = storage.NewSQLiteStorage()
		require.NoError(t, err)
	case "postgres":
		s, err = storage.NewPSQLStorage(os.Getenv("GTFS_TEST_POSTGRES"), true)
		require.NoError(t, err)
	}
	require.NotNil(t, s, "unknown backend %q", backend)

	t.Cleanup(func() { s.Close() })

	return s
}

// Parses a zipped feed into the given backend and loads it as a
// Snapshot.
func LoadSnapshot(t testing.TB, backend string, buf []byte) *gtfs.Snapshot {
	s := BuildStorage(t, backend)

	feedWriter, err := s.GetWriter("test")
	require.NoError(t, err)

	metadata, err := parse.ParseStatic(feedWriter, buf)
	require.NoError(t, err)
	metadata.Hash = "test"

	reader, err := s.GetReader("test")
	require.NoError(t, err)

	snapshot, err := gtfs.LoadSnapshot(reader, metadata)
	require.NoError(t, err)

	return snapshot
}

// Builds a Snapshot from CSV file contents, keyed by file name.
// Missing files are filled in with (mostly blank) dummy data.
func BuildSnapshot(
	t testing.TB,
	backend string,
	files map[string][]string,
) *gtfs.Snapshot {

	if files["agency.txt"] == nil {
		files["agency.txt"] = []string{"agency_timezone,agency_name,agency_url", "UTC,FooAgency,http://example.com"}
	}
	if files["calendar.txt"] == nil && files["calendar_dates.txt"] == nil {
		files["calendar.txt"] = []string{"service_id"}
	}
	if files["routes.txt"] == nil {
		files["routes.txt"] = []string{"route_id"}
	}
	if files["trips.txt"] == nil {
		files["trips.txt"] = []string{"trip_id"}
	}
	if files["stops.txt"] == nil {
		files["stops.txt"] = []string{"stop_id"}
	}
	if files["stop_times.txt"] == nil {
		files["stop_times.txt"] = []string{"stop_id"}
	}

	return LoadSnapshot(t, backend, BuildZip(t, files))
}

func BuildZip(
	t testing.TB,
	files map[string][]string,
) []byte {

	buf := &bytes.Buffer{}
	w := zip.NewWriter(buf)
	for filename, content := range files {
		f, err := w.Create(filename)
		require.NoError(t, err)
		_, err = f.Write([]byte(strings.Join(content, "\n")))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	return buf.Bytes()
}
