package config

import (
	"fmt"
	"net/url"
	"regexp"
	"time"
	_ "time/tzdata"

	"github.com/caarlos0/env/v6"

	"valuemap/server/internal/pipeline"
)

type Config struct {
	Server struct {
		Port string `env:"SERVER_PORT" envDefault:"8080"`

		// Origins allowed by the CORS middleware
		AllowedOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://localhost:5173"`
	}

	Database struct {
		// sqlite or postgres
		Driver string `env:"DB_DRIVER" envDefault:"sqlite"`
		DSN    string `env:"DB_DSN" envDefault:"data/valuemap.db"`
	}

	// BatchProcessing configuration
	BatchProcessing struct {
		// Number of records written per transaction
		MaxBatchSize int `env:"BATCH_MAX_SIZE" envDefault:"100"`

		// Number of batches the queue holds before Push reports it full
		QueueSize int `env:"BATCH_QUEUE_SIZE" envDefault:"1000"`

		// Number of concurrent batch processors
		ProcessorCount int `env:"BATCH_PROCESSOR_COUNT" envDefault:"2"`

		// Maximum number of retries for failed batches
		MaxRetries int `env:"BATCH_MAX_RETRIES" envDefault:"3"`

		// Delay between retries in seconds
		RetryDelay int `env:"BATCH_RETRY_DELAY" envDefault:"5"`
	}

	// Slider sentinels. A bound at its sentinel disables that side of the filter.
	Filter struct {
		PriceMax float64 `env:"FILTER_PRICE_MAX" envDefault:"50000000"`
		ErrorMin float64 `env:"FILTER_ERROR_MIN" envDefault:"-30"`
		ErrorMax float64 `env:"FILTER_ERROR_MAX" envDefault:"30"`
	}

	Ingest struct {
		// Time zone used for dates without an offset
		TimeZone       string `env:"INGEST_TIMEZONE" envDefault:"Asia/Taipei"`
		MaxUploadBytes int64  `env:"INGEST_MAX_UPLOAD_BYTES" envDefault:"33554432"`
	}

	// Removal of datasets whose ingestion never completed
	Sweeper struct {
		// Minutes between sweeps
		Interval int `env:"SWEEP_INTERVAL" envDefault:"1"`

		// Minutes an incomplete dataset may wait before it is removed
		StaleAfter int `env:"STALE_DATASET_MINUTES" envDefault:"30"`
	}

	DefaultCity string `env:"DEFAULT_CITY" envDefault:"taipei"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.BatchProcessing.MaxBatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.BatchProcessing.MaxBatchSize)
	}
	if c.BatchProcessing.QueueSize <= 0 {
		return fmt.Errorf("queue size must be positive, got %d", c.BatchProcessing.QueueSize)
	}
	if c.BatchProcessing.ProcessorCount <= 0 {
		return fmt.Errorf("processor count must be positive, got %d", c.BatchProcessing.ProcessorCount)
	}
	if c.BatchProcessing.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative, got %d", c.BatchProcessing.MaxRetries)
	}
	if c.BatchProcessing.RetryDelay < 0 {
		return fmt.Errorf("retry delay must not be negative, got %d", c.BatchProcessing.RetryDelay)
	}
	if c.Sweeper.Interval <= 0 || c.Sweeper.StaleAfter <= 0 {
		return fmt.Errorf("sweeper interval and stale age must be positive")
	}
	if c.Filter.ErrorMin >= c.Filter.ErrorMax {
		return fmt.Errorf("error sentinels out of order: %v >= %v", c.Filter.ErrorMin, c.Filter.ErrorMax)
	}
	if c.Filter.PriceMax <= 0 {
		return fmt.Errorf("price sentinel must be positive, got %v", c.Filter.PriceMax)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if GetCityByName(c.DefaultCity) == nil {
		return fmt.Errorf("unknown default city %q", c.DefaultCity)
	}
	return nil
}

// Limits returns the filter sentinels in the form the pipeline expects.
func (c *Config) Limits() pipeline.Limits {
	return pipeline.Limits{
		PriceMax: c.Filter.PriceMax,
		ErrorMin: c.Filter.ErrorMin,
		ErrorMax: c.Filter.ErrorMax,
	}
}

func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Ingest.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid ingest time zone %q: %w", c.Ingest.TimeZone, err)
	}
	return loc, nil
}

func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.BatchProcessing.RetryDelay) * time.Second
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Sweeper.Interval) * time.Minute
}

func (c *Config) StaleAfter() time.Duration {
	return time.Duration(c.Sweeper.StaleAfter) * time.Minute
}

var dsnPassword = regexp.MustCompile(`(?i)(password\s*=\s*)('[^']*'|\S+)`)

// RedactedDSN is the database DSN with any password masked, safe to log.
func (c *Config) RedactedDSN() string {
	dsn := c.Database.DSN
	if u, err := url.Parse(dsn); err == nil && u.User != nil {
		return u.Redacted()
	}
	return dsnPassword.ReplaceAllString(dsn, "${1}xxxxx")
}
