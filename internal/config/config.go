package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/aryannaik/nubfinder/internal/feed"
)

// EnvPrefix namespaces environment overrides, e.g. NUBFINDER_REFRESH_INTERVAL_SECONDS.
const EnvPrefix = "NUBFINDER"

type Config struct {
	LogLevel string         `mapstructure:"log_level"`
	Feed     FeedConfig     `mapstructure:"feed"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
	Refresh  RefreshConfig  `mapstructure:"refresh"`
	Server   ServerConfig   `mapstructure:"server"`
	Search   SearchConfig   `mapstructure:"search"`
}

type FeedConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type SnapshotConfig struct {
	Path string `mapstructure:"path"`
}

type RefreshConfig struct {
	IntervalSeconds int `mapstructure:"interval_seconds"`
}

// Interval is the refresh cadence as a duration.
func (r RefreshConfig) Interval() time.Duration {
	return time.Duration(r.IntervalSeconds) * time.Second
}

type ServerConfig struct {
	Listen string `mapstructure:"listen"`
}

type SearchConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
	Workers int           `mapstructure:"workers"`
}

// Load reads .env (if present), then the config file at path, or the first
// nubfinder.{yaml,json,toml} found in . or ./config when path is empty.
// Environment variables override both. A missing default config file is
// fine; a missing explicit one is not.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("nubfinder")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("feed.endpoint", feed.DefaultEndpoint)
	v.SetDefault("feed.timeout", 30*time.Second)
	v.SetDefault("snapshot.path", "data/four.bin")
	v.SetDefault("refresh.interval_seconds", 300)
	v.SetDefault("server.listen", ":8990")
	v.SetDefault("search.timeout", 2*time.Second)
	v.SetDefault("search.workers", runtime.NumCPU())
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Feed.Endpoint) == "" {
		return errors.New("feed.endpoint is required")
	}
	if strings.TrimSpace(c.Snapshot.Path) == "" {
		return errors.New("snapshot.path is required")
	}
	if c.Refresh.IntervalSeconds <= 0 {
		return fmt.Errorf("refresh.interval_seconds must be > 0, got %d", c.Refresh.IntervalSeconds)
	}
	if c.Search.Timeout <= 0 {
		return errors.New("search.timeout must be > 0")
	}
	if c.Search.Workers <= 0 {
		return errors.New("search.workers must be > 0")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level %q is not one of debug, info, warn, error", c.LogLevel)
	}
	return nil
}
