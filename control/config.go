// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Relay configuration: defaults, then an optional YAML file, then
// environment overrides, then validation.

package control

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// CacheConfig tunes the unread cache.
type CacheConfig struct {
	Capacity      int           `yaml:"capacity"`
	Lifetime      time.Duration `yaml:"lifetime"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// LogConfig selects log level and encoding.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console" or "json"
}

// OpsConfig configures the operational HTTP endpoint. Empty disables it.
type OpsConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// S3Config locates the archive bucket.
type S3Config struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
	Region string `yaml:"region"`
}

// ArchiveConfig selects where undelivered messages go.
type ArchiveConfig struct {
	Type          string        `yaml:"type"` // "none", "log" or "s3"
	QueueSize     int           `yaml:"queue_size"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	S3            S3Config      `yaml:"s3"`
}

// Config is the complete relay configuration.
type Config struct {
	ListenAddr     string        `yaml:"listen_addr"`
	ReadBufferSize int           `yaml:"read_buffer_size"`
	EventCapacity  int           `yaml:"event_capacity"`
	AnnounceToken  bool          `yaml:"announce_token"`
	LoopCPU        int           `yaml:"loop_cpu"` // -1 leaves the loop unpinned
	Cache          CacheConfig   `yaml:"cache"`
	Log            LogConfig     `yaml:"log"`
	Ops            OpsConfig     `yaml:"ops"`
	Archive        ArchiveConfig `yaml:"archive"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:     "127.0.0.1:2203",
		ReadBufferSize: 1024,
		EventCapacity:  1024,
		AnnounceToken:  true,
		LoopCPU:        -1,
		Cache: CacheConfig{
			Capacity:      100,
			Lifetime:      300 * time.Second,
			SweepInterval: 30 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "console"},
		Archive: ArchiveConfig{
			Type:          "none",
			QueueSize:     1024,
			BatchSize:     100,
			FlushInterval: 5 * time.Second,
			S3:            S3Config{Prefix: "miki/archive/"},
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path
// (skipped when path is empty) and the environment.
func Load(path string, logger zerolog.Logger) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		logger.Debug().Str("path", path).Msg("config file loaded")
	}
	if err := ApplyEnvOverrides(cfg, logger); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides overlays MIKI_* environment variables onto cfg.
func ApplyEnvOverrides(cfg *Config, logger zerolog.Logger) error {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			logger.Debug().Str("key", key).Str("source", "env").Msg("overriding config value")
			*dst = v
		}
	}
	str("MIKI_LISTEN_ADDR", &cfg.ListenAddr)
	str("MIKI_OPS_ADDR", &cfg.Ops.ListenAddr)
	str("MIKI_LOG_LEVEL", &cfg.Log.Level)
	str("MIKI_LOG_FORMAT", &cfg.Log.Format)
	str("MIKI_ARCHIVE_TYPE", &cfg.Archive.Type)
	str("MIKI_ARCHIVE_S3_BUCKET", &cfg.Archive.S3.Bucket)

	if v := os.Getenv("MIKI_CACHE_CAPACITY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MIKI_CACHE_CAPACITY: %w", err)
		}
		cfg.Cache.Capacity = n
	}
	if v := os.Getenv("MIKI_CACHE_LIFETIME"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("MIKI_CACHE_LIFETIME: %w", err)
		}
		cfg.Cache.Lifetime = d
	}
	return nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.ListenAddr == "" {
		errs = append(errs, errors.New("listen_addr is empty"))
	}
	if c.ReadBufferSize <= 0 {
		errs = append(errs, errors.New("read_buffer_size must be positive"))
	}
	if c.EventCapacity <= 0 {
		errs = append(errs, errors.New("event_capacity must be positive"))
	}
	if c.LoopCPU < -1 {
		errs = append(errs, errors.New("loop_cpu must be -1 or a cpu index"))
	}
	if c.Cache.Capacity <= 0 {
		errs = append(errs, errors.New("cache.capacity must be positive"))
	}
	if c.Cache.Lifetime <= 0 {
		errs = append(errs, errors.New("cache.lifetime must be positive"))
	}
	if c.Cache.SweepInterval <= 0 {
		errs = append(errs, errors.New("cache.sweep_interval must be positive"))
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format %q: want console or json", c.Log.Format))
	}
	if c.Ops.ListenAddr != "" && c.Ops.ListenAddr == c.ListenAddr {
		errs = append(errs, errors.New("ops.listen_addr must differ from listen_addr"))
	}
	switch c.Archive.Type {
	case "none", "log":
	case "s3":
		if c.Archive.S3.Bucket == "" {
			errs = append(errs, errors.New("archive.s3.bucket is required for s3 archive"))
		}
	default:
		errs = append(errs, fmt.Errorf("archive.type %q: want none, log or s3", c.Archive.Type))
	}
	if c.Archive.QueueSize <= 0 || c.Archive.BatchSize <= 0 || c.Archive.FlushInterval <= 0 {
		errs = append(errs, errors.New("archive queue_size, batch_size and flush_interval must be positive"))
	}
	return errors.Join(errs...)
}
