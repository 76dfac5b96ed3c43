package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"passages.dev/gtfs"
	"passages.dev/gtfs/config"
	"passages.dev/gtfs/downloader"
	"passages.dev/gtfs/storage"
)

var rootCmd = &cobra.Command{
	Use:          "passages",
	Short:        "GTFS schedule tool",
	Long:         "Resolves first, last and upcoming departures from a GTFS feed",
	SilenceUsage: true,
}

var (
	configPath string
	feedURL    string
	headers    []string
	backend    string
	timezone   string
	verbose    bool
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")
	rootCmd.PersistentFlags().StringVarP(&feedURL, "url", "", "", "GTFS Static URL")
	rootCmd.PersistentFlags().StringSliceVarP(
		&headers,
		"header",
		"",
		[]string{},
		"GTFS HTTP header, on form <key>:<value>",
	)
	rootCmd.PersistentFlags().StringVarP(&backend, "storage", "", "", "Storage backend (memory, sqlite, postgres)")
	rootCmd.PersistentFlags().StringVarP(&timezone, "timezone", "", "", "Timezone departures are resolved in")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func parseHeaders(headers []string) (map[string]string, error) {
	parsed := map[string]string{}
	for _, header := range headers {
		parts := strings.SplitN(header, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("'%s' is not on form <key>:<value>", header)
		}
		parsed[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return parsed, nil
}

// Loads config, with command line flags taking precedence. Validation
// runs once, after the flags are applied.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Read(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("url") {
		cfg.Feed.URL = feedURL
	}
	if flags.Changed("storage") {
		cfg.Storage.Backend = backend
	}
	if flags.Changed("timezone") {
		cfg.Timezone = timezone
	}

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

func openStorage(cfg *config.Config) (storage.Storage, error) {
	switch cfg.Storage.Backend {
	case "memory":
		return storage.NewMemoryStorage(), nil
	case "sqlite":
		if cfg.Storage.Directory == "" {
			return storage.NewSQLiteStorage()
		}
		return storage.NewSQLiteStorage(storage.SQLiteConfig{
			OnDisk:    true,
			Directory: cfg.Storage.Directory,
		})
	case "postgres":
		return storage.NewPSQLStorage(cfg.Storage.DatabaseURL, false)
	}
	return nil, fmt.Errorf("unknown storage backend '%s'", cfg.Storage.Backend)
}

func newDownloader(cfg *config.Config, log *slog.Logger) (downloader.Downloader, error) {
	var d downloader.Downloader
	if cfg.Feed.CacheFile != "" {
		fs, err := downloader.NewFilesystem(cfg.Feed.CacheFile)
		if err != nil {
			return nil, fmt.Errorf("creating feed cache: %w", err)
		}
		fs.Logger = log
		d = fs
	} else {
		md := downloader.NewMemoryDownloader()
		md.Logger = log
		d = md
	}

	if cfg.Feed.ProxyWorker != "" {
		d = downloader.NewProxy(cfg.Feed.ProxyWorker, d)
	}

	return d, nil
}

// Builds a Manager for the configured feed. The caller closes the
// returned storage.
func newManager(cmd *cobra.Command, log *slog.Logger) (*gtfs.Manager, storage.Storage, *config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, nil, err
	}

	extra, err := parseHeaders(headers)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("invalid header: %w", err)
	}
	h := cfg.Feed.Headers()
	if h == nil {
		h = map[string]string{}
	}
	for k, v := range extra {
		h[k] = v
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, nil, nil, err
	}

	s, err := openStorage(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening storage: %w", err)
	}

	d, err := newDownloader(cfg, log)
	if err != nil {
		s.Close()
		return nil, nil, nil, err
	}

	m := gtfs.NewManager(s, cfg.Feed.URL, h)
	m.Downloader = d
	m.StaticTimeout = cfg.Feed.Timeout
	m.StaticMaxSize = cfg.Feed.MaxSize
	m.StaticRefreshInterval = cfg.Feed.RefreshInterval
	if cfg.Feed.CacheFile != "" {
		m.StaticCacheTTL = cfg.Feed.CacheTTL
	}
	m.Location = loc
	m.Logger = log

	return m, s, cfg, nil
}

// Loads a Snapshot for one-off commands: from storage if an active
// feed is there, otherwise from the feed URL.
func loadSnapshot(cmd *cobra.Command) (*gtfs.Snapshot, func(), error) {
	log := newLogger()

	m, s, _, err := newManager(cmd, log)
	if err != nil {
		return nil, nil, err
	}
	closer := func() { s.Close() }

	err = m.LoadStored()
	if errors.Is(err, gtfs.ErrNoSnapshot) {
		err = m.Refresh(context.Background())
	}
	if err != nil {
		closer()
		return nil, nil, err
	}

	snapshot, err := m.Snapshot()
	if err != nil {
		closer()
		return nil, nil, err
	}

	return snapshot, closer, nil
}
