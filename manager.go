package gtfs

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"passages.dev/gtfs/downloader"
	"passages.dev/gtfs/metrics"
	"passages.dev/gtfs/model"
	"passages.dev/gtfs/parse"
	"passages.dev/gtfs/storage"
)

const (
	DefaultStaticRefreshInterval = 12 * time.Hour
	DefaultStaticTimeout         = 60 * time.Second
	DefaultStaticMaxSize         = 800 << 20 // 800 MB
)

var ErrNoSnapshot = errors.New("no feed loaded")

// Manager keeps a Snapshot of the feed at URL up to date.
//
// Snapshots are swapped atomically. Callers holding a Snapshot keep
// using it undisturbed while a newer one is loaded.
type Manager struct {
	URL                   string
	Headers               map[string]string
	StaticTimeout         time.Duration
	StaticMaxSize         int
	StaticRefreshInterval time.Duration
	Downloader            downloader.Downloader

	// Lets the Downloader serve a cached archive younger than
	// this. Zero disables caching.
	StaticCacheTTL time.Duration

	// Overrides the feed's agency timezone when set.
	Location *time.Location

	// Optional.
	Logger  *slog.Logger
	Metrics *metrics.Collector

	storage storage.Storage
	current atomic.Pointer[Snapshot]

	// Serializes refreshes.
	mutex sync.Mutex

	TimeNow func() time.Time
}

// Creates a new Manager of the feed at url, on top of the given
// storage.
func NewManager(s storage.Storage, url string, headers map[string]string) *Manager {
	return &Manager{
		URL:                   url,
		Headers:               headers,
		StaticTimeout:         DefaultStaticTimeout,
		StaticMaxSize:         DefaultStaticMaxSize,
		StaticRefreshInterval: DefaultStaticRefreshInterval,

		Downloader: downloader.NewMemoryDownloader(),

		storage: s,
		TimeNow: time.Now,
	}
}

func (m *Manager) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}

// Returns the current Snapshot, or ErrNoSnapshot if no feed has been
// loaded yet.
func (m *Manager) Snapshot() (*Snapshot, error) {
	s := m.current.Load()
	if s == nil {
		return nil, ErrNoSnapshot
	}
	return s, nil
}

// Loads the most recently retrieved feed for URL that is active
// now, if storage has one. Lets a restarted process serve queries
// before the first download completes. Returns ErrNoSnapshot if
// there is no such feed.
func (m *Manager) LoadStored() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	feeds, err := m.storage.ListFeeds(storage.ListFeedsFilter{URL: m.URL})
	if err != nil {
		return fmt.Errorf("listing feeds: %w", err)
	}

	sort.SliceStable(feeds, func(i, j int) bool {
		return feeds[i].RetrievedAt.After(feeds[j].RetrievedAt)
	})

	for _, feed := range feeds {
		ok, err := feedActive(feed, m.TimeNow())
		if err != nil {
			return fmt.Errorf("checking if feed is active: %w", err)
		}
		if !ok {
			continue
		}
		return m.load(feed)
	}

	return ErrNoSnapshot
}

// Downloads the feed and makes it the current Snapshot. Feeds are
// identified by the sha256 of the archive: a feed already in storage
// isn't parsed again, and an unchanged feed leaves the current
// Snapshot in place.
func (m *Manager) Refresh(ctx context.Context) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	start := m.TimeNow()
	result, err := m.refresh(ctx)
	if m.Metrics != nil {
		m.Metrics.Refreshes.WithLabelValues(result).Inc()
		m.Metrics.RefreshDuration.Observe(m.TimeNow().Sub(start).Seconds())
	}
	if err != nil {
		m.logger().Error("refresh failed", "url", m.URL, "err", err)
		return err
	}
	return nil
}

func (m *Manager) refresh(ctx context.Context) (string, error) {
	log := m.logger()

	body, err := m.Downloader.Get(
		ctx,
		m.URL,
		m.Headers,
		downloader.GetOptions{
			Cache:    m.StaticCacheTTL > 0,
			CacheTTL: m.StaticCacheTTL,
			Timeout:  m.StaticTimeout,
			MaxSize:  m.StaticMaxSize,
		},
	)
	if err != nil {
		return metrics.RefreshFailed, fmt.Errorf("downloading feed at %s: %w", m.URL, err)
	}
	hash := fmt.Sprintf("%x", sha256.Sum256(body))
	if m.Metrics != nil {
		m.Metrics.FeedBytes.Set(float64(len(body)))
	}

	if current := m.current.Load(); current != nil && current.Version() == hash {
		log.Info("feed unchanged", "url", m.URL, "hash", hash)
		return metrics.RefreshUnchanged, nil
	}

	// The data we just downloaded may already exist in storage.
	feeds, err := m.storage.ListFeeds(storage.ListFeedsFilter{Hash: hash})
	if err != nil {
		return metrics.RefreshFailed, fmt.Errorf("listing feeds: %w", err)
	}

	var metadata *storage.FeedMetadata
	if len(feeds) > 0 {
		// It's in storage, possibly for a different URL.
		// Record this retrieval.
		metadata = feeds[0]
		metadata.URL = m.URL
		metadata.RetrievedAt = m.TimeNow().UTC()
		log.Info("feed found in storage", "url", m.URL, "hash", hash)
	} else {
		log.Info("parsing feed", "url", m.URL, "hash", hash, "bytes", len(body))

		writer, err := m.storage.GetWriter(hash)
		if err != nil {
			return metrics.RefreshFailed, fmt.Errorf("getting writer: %w", err)
		}

		metadata, err = parse.ParseStatic(writer, body)
		if err != nil {
			// Rolls back any transaction left open.
			writer.Close()
			return metrics.RefreshFailed, fmt.Errorf("parsing: %w", err)
		}

		metadata.Hash = hash
		metadata.URL = m.URL
		metadata.RetrievedAt = m.TimeNow().UTC()
	}

	err = m.storage.WriteFeedMetadata(metadata)
	if err != nil {
		return metrics.RefreshFailed, fmt.Errorf("writing metadata: %w", err)
	}

	err = m.load(metadata)
	if err != nil {
		return metrics.RefreshFailed, err
	}

	return metrics.RefreshLoaded, nil
}

// Reads a stored feed into a Snapshot and swaps it in.
func (m *Manager) load(metadata *storage.FeedMetadata) error {
	reader, err := m.storage.GetReader(metadata.Hash)
	if err != nil {
		return fmt.Errorf("getting reader: %w", err)
	}

	snapshot, err := LoadSnapshot(reader, metadata)
	if err != nil {
		return fmt.Errorf("loading snapshot: %w", err)
	}
	if m.Location != nil {
		snapshot = snapshot.In(m.Location)
	}

	m.current.Store(snapshot)

	trips, stopTimes := snapshot.Size()
	m.logger().Info(
		"snapshot loaded",
		"hash", metadata.Hash,
		"timezone", snapshot.Location().String(),
		"calendar_start", metadata.CalendarStartDate,
		"calendar_end", metadata.CalendarEndDate,
		"trips", trips,
		"stop_times", stopTimes,
		"stops", metadata.Counts.Stops,
		"routes", metadata.Counts.Routes,
	)
	if m.Metrics != nil {
		m.Metrics.SnapshotLoadedAt.Set(float64(m.TimeNow().Unix()))
		m.Metrics.SnapshotTrips.Set(float64(trips))
		m.Metrics.SnapshotStopTimes.Set(float64(stopTimes))
		for file, rows := range metadata.Counts.ByFile() {
			m.Metrics.FeedRows.WithLabelValues(file).Set(float64(rows))
		}
	}

	return nil
}

// Refreshes the feed every StaticRefreshInterval until ctx is
// cancelled. Failed refreshes are logged and retried on the next
// tick. Returns ctx.Err().
func (m *Manager) Run(ctx context.Context) error {
	interval := m.StaticRefreshInterval
	if interval <= 0 {
		interval = DefaultStaticRefreshInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			// Errors are logged by Refresh.
			_ = m.Refresh(ctx)
		}
	}
}

func feedActive(feed *storage.FeedMetadata, now time.Time) (bool, error) {
	feedTz, err := time.LoadLocation(feed.Timezone)
	if err != nil {
		return false, fmt.Errorf("loading timezone: %w", err)
	}

	todayThere := now.In(feedTz).Format(model.DateFormat)

	if feed.CalendarStartDate > todayThere {
		return false, nil
	}
	if feed.CalendarEndDate < todayThere {
		return false, nil
	}

	return true, nil
}
