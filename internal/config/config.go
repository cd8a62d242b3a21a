package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Default feed endpoints, overridable per source via <FEED>_URL.
const (
	defaultUSGSURL      = "https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary/all_hour.geojson"
	defaultNASAURL      = "https://firms.modaps.eosdis.nasa.gov/api/area/csv"
	defaultFEMAURL      = "https://www.fema.gov/api/open/v2/DisasterDeclarationsSummaries"
	defaultSFFDURL      = "https://data.sfgov.org/resource/nuek-vuh3.json"
	defaultKonturURL    = "https://api.kontur.io/risks/v1/events"
	defaultReliefWebURL = "https://api.reliefweb.int/v1/reports"
)

// Feed holds the per-source fetch settings.
type Feed struct {
	URL          string        `env:"URL"`
	SecondaryURL string        `env:"FALLBACK_URL"`
	APIKey       string        `env:"API_KEY"`
	Timeout      time.Duration `env:"TIMEOUT" envDefault:"10s"`
	PageSize     int           `env:"PAGE_SIZE" envDefault:"100"`
	Interval     time.Duration `env:"INTERVAL" envDefault:"5m"`
}

// Config holds all service settings, populated from environment variables.
type Config struct {
	UseMockData     bool          `env:"USE_MOCK_DATA" envDefault:"false"`
	HTTPAddr        string        `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"json"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// Broker settings. An empty broker list disables the broker entirely;
	// fan-out then degrades to local-only delivery.
	KafkaBrokers     []string      `env:"KAFKA_BROKERS"`
	KafkaTopicPrefix string        `env:"KAFKA_TOPIC_PREFIX"`
	KafkaGroupID     string        `env:"KAFKA_GROUP_ID" envDefault:"crisis-ingest"`
	KafkaBridge      bool          `env:"KAFKA_BRIDGE" envDefault:"false"`
	PublishTimeout   time.Duration `env:"PUBLISH_TIMEOUT" envDefault:"3s"`

	// DatabasePath points at the SQLite sink. Empty means no durable store;
	// the core runs in cache/fixture mode.
	DatabasePath string `env:"DATABASE_PATH"`

	// PredictionsInterval controls how often the prediction summaries are
	// refreshed from the store.
	PredictionsInterval time.Duration `env:"PREDICTIONS_INTERVAL" envDefault:"10m"`

	// Bootstrap snapshot policy.
	SnapshotLimit     int    `env:"SNAPSHOT_LIMIT" envDefault:"100"`
	MinDensityRegions int    `env:"MIN_DENSITY_REGIONS" envDefault:"4"`
	EventFloorSource  string `env:"EVENT_FLOOR_SOURCE" envDefault:"usgs"`
	EventFloorCount   int    `env:"EVENT_FLOOR_COUNT" envDefault:"10"`

	USGS      Feed `envPrefix:"USGS_"`
	NASA      Feed `envPrefix:"NASA_FIRMS_"`
	FEMA      Feed `envPrefix:"FEMA_"`
	SFFD      Feed `envPrefix:"SFFD_"`
	Social    Feed `envPrefix:"SOCIAL_MENTIONS_"`
	Kontur    Feed `envPrefix:"KONTUR_"`
	ReliefWeb Feed `envPrefix:"RELIEFWEB_"`
	Census    Feed `envPrefix:"CENSUS_"`
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	applyEndpointDefaults(cfg)

	if cfg.ShutdownTimeout <= 0 {
		return nil, errors.New("SHUTDOWN_TIMEOUT must be positive")
	}
	if cfg.PublishTimeout <= 0 {
		return nil, errors.New("PUBLISH_TIMEOUT must be positive")
	}
	if cfg.PredictionsInterval <= 0 {
		return nil, errors.New("PREDICTIONS_INTERVAL must be positive")
	}
	if cfg.SnapshotLimit <= 0 || cfg.SnapshotLimit > 1000 {
		return nil, errors.New("SNAPSHOT_LIMIT must be in (0, 1000]")
	}
	if cfg.MinDensityRegions < 0 {
		return nil, errors.New("MIN_DENSITY_REGIONS must not be negative")
	}
	if cfg.EventFloorCount < 0 {
		return nil, errors.New("EVENT_FLOOR_COUNT must not be negative")
	}
	if cfg.EventFloorCount > cfg.SnapshotLimit {
		return nil, errors.New("EVENT_FLOOR_COUNT must not exceed SNAPSHOT_LIMIT")
	}
	if cfg.KafkaBridge && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BRIDGE requires KAFKA_BROKERS")
	}
	for _, feed := range []struct {
		name string
		f    Feed
	}{
		{"USGS", cfg.USGS}, {"NASA_FIRMS", cfg.NASA}, {"FEMA", cfg.FEMA},
		{"SFFD", cfg.SFFD}, {"SOCIAL_MENTIONS", cfg.Social},
		{"KONTUR", cfg.Kontur}, {"RELIEFWEB", cfg.ReliefWeb},
		{"CENSUS", cfg.Census},
	} {
		if feed.f.Timeout <= 0 {
			return nil, fmt.Errorf("%s_TIMEOUT must be positive", feed.name)
		}
		if feed.f.Interval <= 0 {
			return nil, fmt.Errorf("%s_INTERVAL must be positive", feed.name)
		}
		if feed.f.PageSize <= 0 {
			return nil, fmt.Errorf("%s_PAGE_SIZE must be positive", feed.name)
		}
	}

	return cfg, nil
}

// BrokerEnabled reports whether fan-out should mirror payloads to Kafka.
func (c *Config) BrokerEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// StoreEnabled reports whether a durable store is configured.
func (c *Config) StoreEnabled() bool {
	return c.DatabasePath != ""
}

func applyEndpointDefaults(cfg *Config) {
	if cfg.USGS.URL == "" {
		cfg.USGS.URL = defaultUSGSURL
	}
	if cfg.NASA.URL == "" {
		cfg.NASA.URL = defaultNASAURL
	}
	if cfg.FEMA.URL == "" {
		cfg.FEMA.URL = defaultFEMAURL
	}
	if cfg.SFFD.URL == "" {
		cfg.SFFD.URL = defaultSFFDURL
	}
	if cfg.Kontur.URL == "" {
		cfg.Kontur.URL = defaultKonturURL
	}
	if cfg.ReliefWeb.URL == "" {
		cfg.ReliefWeb.URL = defaultReliefWebURL
	}
	// The social monitor and the census refresh have no default endpoints;
	// those adapters skip live fetches until their URL is set.
}
