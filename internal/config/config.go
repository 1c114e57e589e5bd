// Package config loads the cache subsystem's tuning knobs (spec.md §6) plus
// backend/metadata selection, the same way the teacher repo's pkg/config
// does: viper for layered env/file/default resolution into a typed struct.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// CacheConfig mirrors spec.md §6 "Configuration recognized by the cache".
type CacheConfig struct {
	Dir              string `mapstructure:"dir"`
	MaxSize          int64  `mapstructure:"max_size"`
	MaxEntries       int    `mapstructure:"max_entries"`
	UploadThreads    int    `mapstructure:"upload_threads"`
	DownloadThreads  int    `mapstructure:"download_threads"`
	RemovalQueueSize int    `mapstructure:"removal_queue_size"`
}

// BackendConfig selects and configures the BackendPool implementation.
type BackendConfig struct {
	Kind   string       `mapstructure:"kind"` // "s3" or "local"
	S3     S3Config     `mapstructure:"s3"`
	Local  LocalConfig  `mapstructure:"local"`
}

type S3Config struct {
	Bucket         string        `mapstructure:"bucket"`
	Region         string        `mapstructure:"region"`
	Endpoint       string        `mapstructure:"endpoint"`
	ForcePathStyle bool          `mapstructure:"force_path_style"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type LocalConfig struct {
	Path string `mapstructure:"path"`
}

// MetadataConfig selects and configures the metadata Store implementation.
type MetadataConfig struct {
	Driver string `mapstructure:"driver"` // "postgres" or "memory"
	DSN    string `mapstructure:"dsn"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type Config struct {
	Cache    CacheConfig    `mapstructure:"cache"`
	Backend  BackendConfig  `mapstructure:"backend"`
	Metadata MetadataConfig `mapstructure:"metadata"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// Default values, matching spec.md §6 exactly where the spec states one.
const (
	DefaultMaxEntries       = 768
	DefaultUploadThreads    = 1
	DefaultDownloadThreads  = 4
	DefaultRemovalQueueSize = 1000
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("cache.max_entries", DefaultMaxEntries)
	v.SetDefault("cache.upload_threads", DefaultUploadThreads)
	v.SetDefault("cache.download_threads", DefaultDownloadThreads)
	v.SetDefault("cache.removal_queue_size", DefaultRemovalQueueSize)
	v.SetDefault("backend.kind", "local")
	v.SetDefault("backend.s3.request_timeout", "30s")
	v.SetDefault("metadata.driver", "memory")
	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.format", "text")
}

// Load builds a Config from (in increasing priority) defaults, an optional
// config file, and S3QL_-prefixed environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("S3QL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only reaches Unmarshal for keys viper already knows, so
	// keys without a default are bound explicitly.
	for _, key := range []string{
		"cache.dir", "cache.max_size",
		"backend.s3.bucket", "backend.s3.region", "backend.s3.endpoint", "backend.s3.force_path_style",
		"backend.local.path", "metadata.dsn",
	} {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Cache.Dir == "" {
		return fmt.Errorf("config: cache.dir is required")
	}
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("config: cache.max_entries must be positive")
	}
	switch c.Backend.Kind {
	case "s3":
		if c.Backend.S3.Bucket == "" {
			return fmt.Errorf("config: backend.s3.bucket is required when backend.kind=s3")
		}
	case "local":
		if c.Backend.Local.Path == "" {
			return fmt.Errorf("config: backend.local.path is required when backend.kind=local")
		}
	default:
		return fmt.Errorf("config: unknown backend.kind %q", c.Backend.Kind)
	}
	switch c.Metadata.Driver {
	case "postgres":
		if c.Metadata.DSN == "" {
			return fmt.Errorf("config: metadata.dsn is required when metadata.driver=postgres")
		}
	case "memory":
	default:
		return fmt.Errorf("config: unknown metadata.driver %q", c.Metadata.Driver)
	}
	return nil
}
