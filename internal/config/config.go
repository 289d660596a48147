package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/couchcryptid/traffic-congestion-etl/internal/domain"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Kafka publishing. BatchSize and BatchFlushInterval tune the writer.
	KafkaEnabled       bool
	KafkaBrokers       []string
	KafkaSegmentsTopic string
	KafkaSummaryTopic  string
	BatchSize          int
	BatchFlushInterval time.Duration

	// Analysis parameters.
	BBox             domain.BBox
	MaxMatchDistance float64 // metres
	Thresholds       domain.Thresholds
	RefreshInterval  time.Duration
	Location         *time.Location

	// Live feed.
	FeedEnabled   bool
	FeedURL       string
	FeedTimeout   time.Duration
	FeedRoadType  int
	FeedCacheSize int

	// Synthetic fallback.
	ForceSynthetic  bool
	SyntheticPoints int
	SyntheticSeed   int64

	// Road network source. DatabaseURL takes precedence over RoadNetworkPath.
	RoadNetworkPath        string
	DatabaseURL            string
	NetworkRefreshInterval time.Duration

	// Parquet archive on S3-compatible storage (Cloudflare R2).
	ArchiveEnabled    bool
	R2Endpoint        string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2Bucket          string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	bbox, err := domain.ParseBBox(sharedcfg.EnvOrDefault("BBOX", "139.7194,35.6606,139.8094,35.7506"))
	if err != nil {
		return nil, fmt.Errorf("invalid BBOX: %w", err)
	}

	maxDistance, err := parseFloat("MAX_MATCH_DISTANCE_M", "200")
	if err != nil {
		return nil, err
	}
	highSpeed, err := parseFloat("CONGESTION_HIGH_SPEED", "30")
	if err != nil {
		return nil, err
	}
	mediumSpeed, err := parseFloat("CONGESTION_MEDIUM_SPEED", "20")
	if err != nil {
		return nil, err
	}

	refreshInterval, err := parseDuration("REFRESH_INTERVAL", "5m")
	if err != nil {
		return nil, err
	}
	feedTimeout, err := parseDuration("FEED_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	networkRefresh, err := parseDuration("NETWORK_REFRESH_INTERVAL", "1h")
	if err != nil {
		return nil, err
	}

	loc, err := time.LoadLocation(sharedcfg.EnvOrDefault("TIMEZONE", "Asia/Tokyo"))
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}

	roadType, err := parseInt("FEED_ROAD_TYPE", "3")
	if err != nil {
		return nil, err
	}
	syntheticPoints, err := parseInt("SYNTHETIC_POINTS", "200")
	if err != nil {
		return nil, err
	}
	seed, err := strconv.ParseInt(sharedcfg.EnvOrDefault("SYNTHETIC_SEED", "42"), 10, 64)
	if err != nil {
		return nil, errors.New("invalid SYNTHETIC_SEED")
	}

	r2Endpoint := os.Getenv("R2_ENDPOINT")
	r2Key := os.Getenv("R2_ACCESS_KEY_ID")
	r2Secret := os.Getenv("R2_SECRET_ACCESS_KEY")

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		KafkaEnabled:       parseBool("KAFKA_ENABLED", true),
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSegmentsTopic: sharedcfg.EnvOrDefault("KAFKA_SEGMENTS_TOPIC", "traffic-congestion-segments"),
		KafkaSummaryTopic:  sharedcfg.EnvOrDefault("KAFKA_SUMMARY_TOPIC", "traffic-congestion-summary"),
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		BBox:             bbox,
		MaxMatchDistance: maxDistance,
		Thresholds:       domain.Thresholds{HighSpeed: highSpeed, MediumSpeed: mediumSpeed},
		RefreshInterval:  refreshInterval,
		Location:         loc,

		FeedEnabled:   parseBool("FEED_ENABLED", true),
		FeedURL:       sharedcfg.EnvOrDefault("FEED_URL", "https://api.jartic-open-traffic.org/geoserver"),
		FeedTimeout:   feedTimeout,
		FeedRoadType:  roadType,
		FeedCacheSize: parseFeedCacheSize(),

		ForceSynthetic:  parseBool("FORCE_SYNTHETIC", false),
		SyntheticPoints: syntheticPoints,
		SyntheticSeed:   seed,

		RoadNetworkPath:        sharedcfg.EnvOrDefault("ROAD_NETWORK_PATH", "data/roads.geojson"),
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		NetworkRefreshInterval: networkRefresh,

		ArchiveEnabled:    r2Endpoint != "" && r2Key != "" && r2Secret != "",
		R2Endpoint:        r2Endpoint,
		R2AccessKeyID:     r2Key,
		R2SecretAccessKey: r2Secret,
		R2Bucket:          sharedcfg.EnvOrDefault("R2_BUCKET", "traffic-congestion"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.MaxMatchDistance < 0 {
		return errors.New("MAX_MATCH_DISTANCE_M must not be negative")
	}
	if err := c.Thresholds.Validate(); err != nil {
		return fmt.Errorf("invalid CONGESTION_HIGH_SPEED/CONGESTION_MEDIUM_SPEED: %w", err)
	}
	if c.RefreshInterval <= 0 {
		return errors.New("REFRESH_INTERVAL must be positive")
	}
	if c.FeedTimeout <= 0 {
		return errors.New("FEED_TIMEOUT must be positive")
	}
	if c.NetworkRefreshInterval < 0 {
		return errors.New("NETWORK_REFRESH_INTERVAL must not be negative")
	}
	if c.SyntheticPoints <= 0 {
		return errors.New("SYNTHETIC_POINTS must be positive")
	}
	if c.KafkaEnabled {
		if len(c.KafkaBrokers) == 0 {
			return errors.New("KAFKA_BROKERS is required")
		}
		if c.KafkaSegmentsTopic == "" {
			return errors.New("KAFKA_SEGMENTS_TOPIC is required")
		}
		if c.KafkaSummaryTopic == "" {
			return errors.New("KAFKA_SUMMARY_TOPIC is required")
		}
	}
	if c.FeedEnabled && c.FeedURL == "" {
		return errors.New("FEED_URL is required when FEED_ENABLED is true")
	}
	if c.DatabaseURL == "" && c.RoadNetworkPath == "" {
		return errors.New("ROAD_NETWORK_PATH or DATABASE_URL is required")
	}
	return nil
}

func parseFloat(key, def string) (float64, error) {
	v, err := strconv.ParseFloat(sharedcfg.EnvOrDefault(key, def), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func parseInt(key, def string) (int, error) {
	v, err := strconv.Atoi(sharedcfg.EnvOrDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func parseDuration(key, def string) (time.Duration, error) {
	v, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func parseBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true"
	}
	return def
}

func parseFeedCacheSize() int {
	if s := os.Getenv("FEED_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 64
}
