package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultFeedURL         = "https://prim.iledefrance-mobilites.fr/marketplace/offer-horaires-tc-gtfs-idfm"
	DefaultRefreshInterval = 12 * time.Hour
	DefaultTimeout         = 60 * time.Second
	DefaultMaxSize         = 800 << 20 // 800 MB
)

type Config struct {
	Feed    FeedConfig    `yaml:"feed"`
	Storage StorageConfig `yaml:"storage"`
	Metrics MetricsConfig `yaml:"metrics"`

	// IANA zone departures are resolved in. Blank means the
	// feed's agency_timezone.
	Timezone string `yaml:"timezone" validate:"omitempty,timezone"`
}

type FeedConfig struct {
	URL             string        `yaml:"url" validate:"required,url"`
	APIKey          string        `yaml:"api_key"`
	ProxyWorker     string        `yaml:"proxy_worker" validate:"omitempty,url"`
	RefreshInterval time.Duration `yaml:"refresh_interval" validate:"gt=0"`
	Timeout         time.Duration `yaml:"timeout" validate:"gt=0"`
	MaxSize         int           `yaml:"max_size" validate:"gt=0"`

	// Archive cache file used by the CLI. Blank disables it.
	CacheFile string        `yaml:"cache_file"`
	CacheTTL  time.Duration `yaml:"cache_ttl" validate:"gte=0"`
}

type StorageConfig struct {
	Backend string `yaml:"backend" validate:"oneof=memory sqlite postgres"`

	// SQLite database directory. Blank keeps the database in
	// memory.
	Directory string `yaml:"directory"`

	DatabaseURL string `yaml:"database_url" validate:"required_if=Backend postgres"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr" validate:"omitempty,hostname_port"`
}

// Headers sent with each feed request.
func (f FeedConfig) Headers() map[string]string {
	if f.APIKey == "" {
		return nil
	}
	return map[string]string{"apikey": f.APIKey}
}

func Default() *Config {
	return &Config{
		Feed: FeedConfig{
			URL:             DefaultFeedURL,
			RefreshInterval: DefaultRefreshInterval,
			Timeout:         DefaultTimeout,
			MaxSize:         DefaultMaxSize,
			CacheTTL:        24 * time.Hour,
		},
		Storage: StorageConfig{
			Backend: "memory",
		},
	}
}

// Loads configuration from the YAML file at path and validates it.
// See Read.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// Reads configuration from the YAML file at path, on top of
// Default(). A blank path skips the file. Environment variables,
// including those in a .env file of the working directory, override
// the file. The result is not validated, so callers can layer more
// overrides before calling Validate.
func Read(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		err = yaml.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	// Missing .env is fine.
	err := godotenv.Load()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg.applyEnv(os.LookupEnv)

	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	for name, field := range map[string]*string{
		"GTFS_URL":      &c.Feed.URL,
		"IDFM_APIKEY":   &c.Feed.APIKey,
		"PROXY_WORKER":  &c.Feed.ProxyWorker,
		"GTFS_TIMEZONE": &c.Timezone,
		"GTFS_STORAGE":  &c.Storage.Backend,
		"DATABASE_URL":  &c.Storage.DatabaseURL,
		"METRICS_ADDR":  &c.Metrics.Addr,
	} {
		if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
			*field = strings.TrimSpace(v)
		}
	}
}

func (c *Config) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validating config: %w", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed '%s'", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, ", "))
}

// Location of Timezone, or nil when it's blank.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return nil, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone: %w", err)
	}
	return loc, nil
}
